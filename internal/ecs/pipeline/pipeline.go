package pipeline

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/loomweave/ecsruntime/internal/ecs"
)

// Config configures a Pipeline:
// Partitions defaults to available parallelism, MaxEvents defaults to
// 1000 and caps the per-Scribe in-flight batch count.
type Config struct {
	Partitions int
	MaxEvents  int
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{Partitions: runtime.GOMAXPROCS(0), MaxEvents: 1000}
}

func (c Config) withDefaults() Config {
	if c.Partitions <= 0 {
		c.Partitions = runtime.GOMAXPROCS(0)
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = 1000
	}
	return c
}

// Pipeline is one Herald plus P (Envoy, Scribe) partitions: the whole
// per-World dispatch topology.
type Pipeline struct {
	herald  *Herald
	envoys  []*Envoy
	scribes []*Scribe

	cancel context.CancelFunc
	group  *errgroup.Group
}

// New builds and starts a Pipeline. dispatcher resolves handler
// TypeIDs to their Definition (normally the World's Registry).
func New(cfg Config, dispatcher Dispatcher) *Pipeline {
	return NewWithReporter(cfg, dispatcher, nil)
}

// NewWithReporter is New plus a PanicReporter every Scribe notifies
// when a worker recovers a panicking handler (normally the World's
// Metrics collector).
func NewWithReporter(cfg Config, dispatcher Dispatcher, panics PanicReporter) *Pipeline {
	cfg = cfg.withDefaults()

	envoys := make([]*Envoy, cfg.Partitions)
	scribes := make([]*Scribe, cfg.Partitions)
	for i := range envoys {
		envoys[i] = NewEnvoy(cfg.MaxEvents)
		scribes[i] = NewScribeWithReporter(envoys[i], dispatcher, int64(cfg.MaxEvents), panics)
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	for _, s := range scribes {
		s := s
		group.Go(func() error {
			return s.Run(gctx)
		})
	}

	return &Pipeline{
		herald:  NewHerald(envoys),
		envoys:  envoys,
		scribes: scribes,
		cancel:  cancel,
		group:   group,
	}
}

// Send hands ev to the Herald, which routes it to its entity's
// partition.
func (p *Pipeline) Send(ev ecs.Event) {
	p.herald.Notify(ev)
}

// Close stops accepting new events and waits for every in-flight worker
// to finish. Callers must not call Send afterward.
func (p *Pipeline) Close() error {
	for _, e := range p.envoys {
		e.Close()
	}
	err := p.group.Wait()
	p.cancel()
	return err
}
