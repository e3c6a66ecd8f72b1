package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/loomweave/ecsruntime/internal/ecs"
)

// Dispatcher resolves a registered component type to its Definition.
// Satisfied by *ecs.Registry; kept as an interface so the pipeline
// doesn't need to import the concrete Registry type for tests.
type Dispatcher interface {
	Definition(typ ecs.TypeID) (ecs.Definition, bool)
}

// PanicReporter receives a notification when a worker goroutine
// recovers a panicking handler. Satisfied by ecs.Metrics' RecordCounter;
// kept as its own small interface so the pipeline package doesn't need
// to depend on the whole Metrics surface.
type PanicReporter interface {
	RecordCounter(name string, value float64)
}

// Scribe is the per-partition consumer that supervises transient
// per-batch workers. It bounds in-flight batches to
// maxDemand using a weighted semaphore, the Go-idiomatic reading of the
// spec's "Scribes subscribe to their Envoy with a max_demand".
type Scribe struct {
	envoy      *Envoy
	dispatcher Dispatcher
	sem        *semaphore.Weighted
	group      *errgroup.Group
	panics     PanicReporter
}

// NewScribe builds a Scribe bound to envoy, resolving handler
// definitions through dispatcher and admitting at most maxDemand
// concurrent in-flight batches.
func NewScribe(envoy *Envoy, dispatcher Dispatcher, maxDemand int64) *Scribe {
	return NewScribeWithReporter(envoy, dispatcher, maxDemand, nil)
}

// NewScribeWithReporter is NewScribe plus a PanicReporter notified every
// time a worker recovers a panicking handler.
func NewScribeWithReporter(envoy *Envoy, dispatcher Dispatcher, maxDemand int64, panics PanicReporter) *Scribe {
	group, _ := errgroup.WithContext(context.Background())
	return &Scribe{
		envoy:      envoy,
		dispatcher: dispatcher,
		sem:        semaphore.NewWeighted(maxDemand),
		group:      group,
		panics:     panics,
	}
}

// Run drains the Envoy's output channel until it closes, spawning one
// worker per batch and blocking the whole consumer loop once maxDemand
// workers are outstanding. It returns once every spawned worker has
// completed.
func (s *Scribe) Run(ctx context.Context) error {
	for batch := range s.envoy.Out() {
		batch := batch
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		s.group.Go(func() error {
			defer s.sem.Release(1)
			defer s.envoy.Ack(batch.Entity)
			s.runBatch(batch)
			return nil
		})
	}
	return s.group.Wait()
}

// runBatch recovers a panicking handler so it crashes only this worker,
// freeing the entity's lane (the Ack is delivered by the caller's defer
// regardless of how this returns). Other entities' lanes are untouched.
// Logging the crash is left to observability layers, not the core; the
// one thing the core does is surface it on the metrics path, when a
// PanicReporter was wired in.
func (s *Scribe) runBatch(batch Batch) {
	defer func() {
		if r := recover(); r != nil {
			if s.panics != nil {
				s.panics.RecordCounter("handler_panics", 1)
			}
		}
	}()
	s.process(batch)
}

// process iterates the batch's events in order and, for each, its
// registered handlers in order. A handler that
// returns Halt stops propagation to later handlers of that event only;
// the worker still proceeds to the next event in the batch.
func (s *Scribe) process(batch Batch) {
	for _, event := range batch.Events {
		s.dispatchOne(event)
	}
}

func (s *Scribe) dispatchOne(event ecs.Event) {
	current := event
	for _, handlerType := range event.Handlers {
		def, ok := s.dispatcher.Definition(handlerType)
		if !ok {
			ecs.Fatalf("unregistered component %q in dispatch batch", handlerType)
		}
		if def.HandleEvent == nil {
			continue
		}

		before := current
		decision, args := def.HandleEvent(current.Name, &current)
		current.Args = args

		ecs.CheckDrift(handlerType, before, current)

		if decision == ecs.Halt {
			return
		}
	}
}
