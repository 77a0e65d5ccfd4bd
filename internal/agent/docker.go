package agent

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ContainerOptions configures a new agent container.
type ContainerOptions struct {
	Image       string
	Environment map[string]string
	Cmd         []string
}

// DockerRuntime manages the short-lived containers agent runs execute in.
type DockerRuntime struct {
	client   *client.Client
	cpuLimit string
	memLimit string
}

// NewDockerRuntime connects to host, or to the environment's daemon when
// host is empty.
func NewDockerRuntime(host, cpuLimit, memLimit string) (*DockerRuntime, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	} else {
		opts = append(opts, client.FromEnv)
	}

	c, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("agent.NewDockerRuntime: %w", err)
	}

	return &DockerRuntime{client: c, cpuLimit: cpuLimit, memLimit: memLimit}, nil
}

// CreateContainer creates a container with the configured resource limits.
func (d *DockerRuntime) CreateContainer(ctx context.Context, opts ContainerOptions) (string, error) {
	env := make([]string, 0, len(opts.Environment))
	for k, v := range opts.Environment {
		env = append(env, k+"="+v)
	}

	res, err := resourceLimits(d.cpuLimit, d.memLimit)
	if err != nil {
		return "", fmt.Errorf("agent.DockerRuntime.CreateContainer: %w", err)
	}

	cfg := &container.Config{
		Image: opts.Image,
		Env:   env,
		Cmd:   opts.Cmd,
	}
	hostCfg := &container.HostConfig{Resources: res}
	name := "trajlog-agent-" + uuid.NewString()[:8]

	resp, err := d.client.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	if err != nil {
		return "", fmt.Errorf("agent.DockerRuntime.CreateContainer: %w", err)
	}
	return resp.ID, nil
}

func (d *DockerRuntime) StartContainer(ctx context.Context, containerID string) error {
	if err := d.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("agent.DockerRuntime.StartContainer: %w", err)
	}
	return nil
}

// RemoveContainer force-removes a container, stopping it if still running.
func (d *DockerRuntime) RemoveContainer(ctx context.Context, containerID string) error {
	err := d.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil {
		return fmt.Errorf("agent.DockerRuntime.RemoveContainer: %w", err)
	}
	return nil
}

// StreamLogs returns the multiplexed stdout/stderr stream of a container.
func (d *DockerRuntime) StreamLogs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	reader, err := d.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("agent.DockerRuntime.StreamLogs: %w", err)
	}
	return reader, nil
}

// WaitContainer waits for the container to exit and returns its exit code.
func (d *DockerRuntime) WaitContainer(ctx context.Context, containerID string) (int64, error) {
	waitCh, errCh := d.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

	select {
	case result := <-waitCh:
		if result.Error != nil {
			return result.StatusCode, fmt.Errorf("agent.DockerRuntime.WaitContainer: %s", result.Error.Message)
		}
		return result.StatusCode, nil
	case err := <-errCh:
		return -1, fmt.Errorf("agent.DockerRuntime.WaitContainer: %w", err)
	case <-ctx.Done():
		return -1, fmt.Errorf("agent.DockerRuntime.WaitContainer: %w", ctx.Err())
	}
}

func (d *DockerRuntime) Close() error {
	if err := d.client.Close(); err != nil {
		return fmt.Errorf("agent.DockerRuntime.Close: %w", err)
	}
	return nil
}

// DockerRunner runs the agent CLI inside a container image that ships it.
type DockerRunner struct {
	runtime *DockerRuntime
	image   string
	passEnv []string
	opts    RunOptions
}

// NewDockerRunner returns a runner that copies the passEnv variables present
// in the host environment into the container.
func NewDockerRunner(runtime *DockerRuntime, image string, passEnv []string, opts RunOptions) *DockerRunner {
	return &DockerRunner{runtime: runtime, image: image, passEnv: passEnv, opts: opts}
}

func (r *DockerRunner) Run(ctx context.Context, prompt string, handle LineHandler) error {
	env := make(map[string]string, len(r.passEnv))
	for _, k := range r.passEnv {
		if v, ok := os.LookupEnv(k); ok {
			env[k] = v
		}
	}

	cmd := append([]string{"claude"}, claudeArgs(prompt, r.opts)...)
	id, err := r.runtime.CreateContainer(ctx, ContainerOptions{Image: r.image, Environment: env, Cmd: cmd})
	if err != nil {
		return fmt.Errorf("agent.DockerRunner.Run: %w", err)
	}
	defer func() {
		if rmErr := r.runtime.RemoveContainer(context.WithoutCancel(ctx), id); rmErr != nil {
			log.Error().Err(rmErr).Str("container_id", id).Msg("agent: failed to remove container")
		}
	}()

	if err := r.runtime.StartContainer(ctx, id); err != nil {
		return fmt.Errorf("agent.DockerRunner.Run: %w", err)
	}
	log.Debug().Str("container_id", id).Str("image", r.image).Msg("agent: container started")

	logs, err := r.runtime.StreamLogs(ctx, id)
	if err != nil {
		return fmt.Errorf("agent.DockerRunner.Run: %w", err)
	}
	defer logs.Close()

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()

	var g errgroup.Group
	g.Go(func() error {
		_, err := stdcopy.StdCopy(stdoutW, stderrW, logs)
		stdoutW.CloseWithError(err)
		stderrW.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		err := scanLines(ctx, stdoutR, handle)
		// Unblock the demultiplexer if scanning stopped early.
		stdoutR.CloseWithError(err)
		return err
	})
	g.Go(func() error { return logLines(stderrR, "stderr") })
	readErr := g.Wait()

	code, err := r.runtime.WaitContainer(ctx, id)
	if err != nil {
		return fmt.Errorf("agent.DockerRunner.Run: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("agent.DockerRunner.Run: container exited with code %d", code)
	}
	if readErr != nil {
		return fmt.Errorf("agent.DockerRunner.Run: read output: %w", readErr)
	}
	return nil
}
