// Package integrator implements the one-tick force contract: a pure
// function from the GraphStore's current generation to a new one, with two
// interchangeable backends selected at startup — an accelerator-backed
// kernel and a pure-Go CPU reference/fallback.
package integrator

import (
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/rand"
	"go.uber.org/zap"

	"github.com/jjohare/logseqSpringThing-sub000/internal/graphstore"
	"github.com/jjohare/logseqSpringThing-sub000/internal/simproto"
)

// ErrBackendUnavailable is returned by an accelerator backend's constructor
// when initialization fails, or by Compute when the backend can no longer
// serve ticks.
var ErrBackendUnavailable = errors.New("integrator: backend unavailable")

// Backend computes one tick's forces for the whole node set.
type Backend interface {
	Name() string
	Compute(src graphstore.Generation, dst *graphstore.Buffer, params simproto.SimulationParams, rng *rand.Rand) error
}

// Integrator owns the GraphStore it mutates and the params snapshot it
// reads once per tick, and drives exactly one Backend at a time.
// SimulationParams is swapped atomically between ticks rather than mutated
// in place; the Integrator reads it once per Step call.
type Integrator struct {
	store   *graphstore.GraphStore
	params  atomic.Pointer[simproto.SimulationParams]
	rng     *rand.Rand
	log     *zap.Logger
	backend Backend

	fallbackOnce sync.Once
	backendName  atomic.Value // string, for metrics
}

// New builds an Integrator over store. primary is tried first; if it is
// nil, the CPU backend is used from the start and New itself logs nothing
// (the caller reports why no accelerator was available). If a call to Step
// returns ErrBackendUnavailable, the Integrator permanently falls back to
// cpu and logs once at warn level.
func New(store *graphstore.GraphStore, primary Backend, seed uint64, log *zap.Logger) *Integrator {
	it := &Integrator{
		store: store,
		rng:   rand.New(rand.NewSource(seed)),
		log:   log,
	}
	if primary != nil {
		it.backend = primary
	} else {
		it.backend = CPUBackend{}
	}
	it.backendName.Store(it.backend.Name())
	return it
}

// SetParams atomically installs the SimulationParams the next tick will use.
func (it *Integrator) SetParams(p simproto.SimulationParams) {
	cp := p
	it.params.Store(&cp)
}

// SetRandomizationEnabled toggles the jitter term without disturbing any
// other parameter, for the enableRandomization control message.
func (it *Integrator) SetRandomizationEnabled(enabled bool) {
	p := it.Params()
	p.RandomizationEnabled = enabled
	it.SetParams(p)
}

// Params returns the currently-installed SimulationParams.
func (it *Integrator) Params() simproto.SimulationParams {
	if p := it.params.Load(); p != nil {
		return *p
	}
	return simproto.DefaultSimulationParams()
}

// BackendName reports which backend last successfully ran a tick, for the
// accelerator-in-use metrics gauge.
func (it *Integrator) BackendName() string {
	if v, ok := it.backendName.Load().(string); ok {
		return v
	}
	return "unknown"
}

// Step drains queued overrides, runs exactly one tick of the active
// backend, writes the drained overrides over the backend's output, and
// commits the result to the GraphStore. It never blocks on network I/O.
func (it *Integrator) Step() error {
	src, scratch := it.store.Current()
	overrides := it.store.DrainOverrides()

	params := it.Params()

	err := it.backend.Compute(src, scratch, params, it.rng)
	if errors.Is(err, ErrBackendUnavailable) {
		it.fallbackOnce.Do(func() {
			if it.log != nil {
				it.log.Warn("accelerator backend unavailable, falling back to cpu",
					zap.String("failed_backend", it.backend.Name()), zap.Error(err))
			}
			it.backend = CPUBackend{}
			it.backendName.Store(it.backend.Name())
		})
		// Re-run this tick on the now-installed CPU backend so the commit
		// below publishes a valid generation instead of a half-written one.
		err = it.backend.Compute(src, scratch, params, it.rng)
	}
	if err != nil {
		// A per-tick error after fallback has already happened is fatal;
		// the caller (Scheduler) decides how to surface it.
		return err
	}

	// Overrides are applied after the backend has run, not before: a
	// backend integrates every node's position/velocity unconditionally
	// each tick, so writing an override into scratch first would just have
	// it overwritten by that same tick's physics. Writing it last makes the
	// override's value exact in the generation this Step commits.
	for _, ov := range overrides {
		graphstore.WriteOverride(scratch, ov)
	}

	it.backendName.Store(it.backend.Name())
	it.store.Commit(scratch)
	return nil
}
