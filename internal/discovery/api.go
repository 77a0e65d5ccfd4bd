package discovery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// APIBackend talks to the Docker Engine API.
type APIBackend struct {
	client *client.Client
}

var _ Backend = (*APIBackend)(nil)

func NewAPIBackend(host string) (*APIBackend, error) {
	opts := []client.Opt{
		client.WithAPIVersionNegotiation(),
	}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	} else {
		opts = append(opts, client.FromEnv)
	}

	c, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("discovery.NewAPIBackend: %w", err)
	}

	return &APIBackend{client: c}, nil
}

func (b *APIBackend) List(ctx context.Context, f Filter) ([]Container, error) {
	args := filters.NewArgs()
	if f.Ancestor != "" {
		args.Add("ancestor", f.Ancestor)
	}
	if f.Label != "" {
		args.Add("label", f.Label)
	}

	list, err := b.client.ContainerList(ctx, container.ListOptions{Filters: args})
	if err != nil {
		return nil, fmt.Errorf("discovery.APIBackend.List: %w", err)
	}

	out := make([]Container, 0, len(list))
	for _, c := range list {
		out = append(out, Container{
			ID:     c.ID,
			Names:  c.Names,
			Image:  c.Image,
			Labels: c.Labels,
		})
	}
	return out, nil
}

func (b *APIBackend) Exec(ctx context.Context, containerID string, cmd []string, stdout io.Writer) error {
	resp, err := b.client.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return fmt.Errorf("discovery.APIBackend.Exec: create: %w", err)
	}

	attach, err := b.client.ContainerExecAttach(ctx, resp.ID, container.ExecAttachOptions{})
	if err != nil {
		return fmt.Errorf("discovery.APIBackend.Exec: attach: %w", err)
	}
	defer attach.Close()

	var stderr bytes.Buffer
	if _, err = stdcopy.StdCopy(stdout, &stderr, attach.Reader); err != nil {
		return fmt.Errorf("discovery.APIBackend.Exec: read output: %w", err)
	}

	inspect, err := b.client.ContainerExecInspect(ctx, resp.ID)
	if err != nil {
		return fmt.Errorf("discovery.APIBackend.Exec: inspect: %w", err)
	}
	if inspect.ExitCode != 0 {
		return fmt.Errorf("discovery.APIBackend.Exec: exit code %d: %s", inspect.ExitCode, strings.TrimSpace(stderr.String()))
	}

	return nil
}

func (b *APIBackend) Close() error {
	if err := b.client.Close(); err != nil {
		return fmt.Errorf("discovery.APIBackend.Close: %w", err)
	}
	return nil
}
