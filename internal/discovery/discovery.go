// Package discovery locates the log-store container. Strategies are tried in
// order against a pluggable Backend that talks to the container runtime.
package discovery

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/trajlog/internal/domain"
)

// Container is the subset of runtime metadata discovery needs.
type Container struct {
	ID     string
	Names  []string
	Image  string
	Labels map[string]string
}

// Filter narrows a runtime listing. Empty fields do not filter.
type Filter struct {
	Ancestor string // image the container was created from
	Label    string // "key" or "key=value"
}

// Backend is the container runtime boundary.
type Backend interface {
	List(ctx context.Context, f Filter) ([]Container, error)
	// Exec runs cmd inside the container, streaming its stdout into stdout.
	// A non-zero exit status is an error carrying the command's stderr.
	Exec(ctx context.Context, containerID string, cmd []string, stdout io.Writer) error
	Close() error
}

// Strategy finds candidate containers in one particular way.
type Strategy interface {
	Name() string
	Find(ctx context.Context, b Backend) ([]Container, error)
}

type strategyFunc struct {
	name string
	find func(ctx context.Context, b Backend) ([]Container, error)
}

func (s strategyFunc) Name() string { return s.name }
func (s strategyFunc) Find(ctx context.Context, b Backend) ([]Container, error) {
	return s.find(ctx, b)
}

// ByAncestor matches containers created from image.
func ByAncestor(image string) Strategy {
	return strategyFunc{
		name: "ancestor=" + image,
		find: func(ctx context.Context, b Backend) ([]Container, error) {
			return b.List(ctx, Filter{Ancestor: image})
		},
	}
}

// ByLabel matches containers carrying label ("key" or "key=value").
func ByLabel(label string) Strategy {
	return strategyFunc{
		name: "label=" + label,
		find: func(ctx context.Context, b Backend) ([]Container, error) {
			return b.List(ctx, Filter{Label: label})
		},
	}
}

// ByName matches a container whose name equals ref or whose id starts with ref.
func ByName(ref string) Strategy {
	return strategyFunc{
		name: "name=" + ref,
		find: func(ctx context.Context, b Backend) ([]Container, error) {
			all, err := b.List(ctx, Filter{})
			if err != nil {
				return nil, err
			}
			var out []Container
			for _, c := range all {
				if strings.HasPrefix(c.ID, ref) || c.hasName(func(n string) bool { return n == ref }) {
					out = append(out, c)
				}
			}
			return out, nil
		},
	}
}

// ByNamePattern matches containers whose name contains pattern, ignoring case.
func ByNamePattern(pattern string) Strategy {
	lower := strings.ToLower(pattern)
	return strategyFunc{
		name: "name~" + pattern,
		find: func(ctx context.Context, b Backend) ([]Container, error) {
			all, err := b.List(ctx, Filter{})
			if err != nil {
				return nil, err
			}
			var out []Container
			for _, c := range all {
				if c.hasName(func(n string) bool { return strings.Contains(strings.ToLower(n), lower) }) {
					out = append(out, c)
				}
			}
			return out, nil
		},
	}
}

func (c *Container) hasName(match func(string) bool) bool {
	for _, n := range c.Names {
		if match(strings.TrimPrefix(n, "/")) {
			return true
		}
	}
	return false
}

// Discoverer runs strategies in order and returns the first match.
type Discoverer struct {
	backend    Backend
	strategies []Strategy
}

func NewDiscoverer(backend Backend, strategies ...Strategy) *Discoverer {
	return &Discoverer{backend: backend, strategies: strategies}
}

// Discover returns the first container of the first strategy that matches.
// Runtime errors abort immediately; both outcomes wrap domain.ErrDiscovery.
func (d *Discoverer) Discover(ctx context.Context) (Container, error) {
	for _, s := range d.strategies {
		found, err := s.Find(ctx, d.backend)
		if err != nil {
			return Container{}, fmt.Errorf("discovery.Discoverer.Discover(%s): %w: %w", s.Name(), domain.ErrDiscovery, err)
		}
		if len(found) == 0 {
			log.Debug().Str("strategy", s.Name()).Msg("discovery: no match")
			continue
		}
		if len(found) > 1 {
			log.Warn().Str("strategy", s.Name()).Int("matches", len(found)).Str("container_id", found[0].ID).
				Msg("discovery: several containers matched, using the first")
		}
		return found[0], nil
	}

	names := make([]string, 0, len(d.strategies))
	for _, s := range d.strategies {
		names = append(names, s.Name())
	}
	return Container{}, fmt.Errorf(
		"discovery.Discoverer.Discover: %w: no log-store container matched [%s]; is it running? try: docker ps",
		domain.ErrDiscovery, strings.Join(names, ", "),
	)
}
