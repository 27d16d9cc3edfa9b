// Package graphstore owns the authoritative graph state: per-node position,
// velocity, mass and flags, plus the edge list. It is mutated only by the
// Integrator and by validated user overrides.
package graphstore

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/rand"

	"github.com/jjohare/logseqSpringThing-sub000/internal/idmap"
	"github.com/jjohare/logseqSpringThing-sub000/internal/simproto"
)

// ErrUnknownIndex is returned when an override names an index outside [0,N).
var ErrUnknownIndex = errors.New("graphstore: unknown index")

// ErrQueueFull is returned when the override queue is saturated; the
// session layer counts it as a protocol violation like any other rejected
// override.
var ErrQueueFull = errors.New("graphstore: override queue full")

// seedRadius is the sphere radius new nodes without a provider-supplied
// position are scattered on.
const seedRadius = 20.0

// overrideQueueCapacity bounds the lock-free ingress queue; sized generously
// since overrides arrive at network rate, not tick rate, and only a couple
// of position/velocity records land per ingress frame.
const overrideQueueCapacity = 4096

// Override is a validated client position/velocity assignment, queued for
// application at the next tick start.
type Override struct {
	Index    uint32
	Position simproto.Vec3
	Velocity simproto.Vec3
}

// Buffer holds one generation's position/velocity arrays. The GraphStore
// keeps two of these and ping-pongs between them every tick so the
// Integrator's output never aliases the array the Broadcaster is reading.
type Buffer struct {
	Positions  []simproto.Vec3
	Velocities []simproto.Vec3
}

func newBuffer(n int) *Buffer {
	return &Buffer{
		Positions:  make([]simproto.Vec3, n),
		Velocities: make([]simproto.Vec3, n),
	}
}

// GraphStore is safe for concurrent use: one Integrator goroutine commits
// ticks, any number of readers take snapshots, and any number of producers
// enqueue overrides.
type GraphStore struct {
	ids *idmap.IdMap
	rng *rand.Rand

	// structMu guards mass/flags/edges and Buffer resize (node growth).
	// It is never held across a tick's force computation, only around the
	// O(1)-ish bookkeeping of adding a node or swapping the active pointer.
	structMu sync.Mutex
	mass     []uint8
	flags    []uint8
	edges    []simproto.Edge

	bufs     [2]*Buffer
	readIdx  int32 // atomic: index into bufs of the currently-committed, readable generation

	overrides chan Override
}

// New returns an empty GraphStore bound to ids for index<->external-id
// resolution. seed is a deterministic PRNG source so initial sphere
// placement is reproducible in tests.
func New(ids *idmap.IdMap, seed uint64) *GraphStore {
	return &GraphStore{
		ids:       ids,
		rng:       rand.New(rand.NewSource(seed)),
		bufs:      [2]*Buffer{newBuffer(0), newBuffer(0)},
		overrides: make(chan Override, overrideQueueCapacity),
	}
}

// NodeSeed is the provider-supplied (or absent) initial state for one node.
type NodeSeed struct {
	ExternalID string
	Position   *simproto.Vec3 // nil => scatter on the seed sphere
	Mass       uint8
	Flags      uint8
}

// Seed populates the store from a provider snapshot.
// It must be called before any tick or override; it is not safe to call
// concurrently with Integrator.Step or EnqueueOverride.
func (g *GraphStore) Seed(nodes []NodeSeed, edges []simproto.Edge) error {
	g.structMu.Lock()
	defer g.structMu.Unlock()

	n := len(nodes)
	buf := newBuffer(n)
	mass := make([]uint8, n)
	flags := make([]uint8, n)

	for _, ns := range nodes {
		idx, err := g.ids.Intern(ns.ExternalID)
		if err != nil {
			return err
		}
		if int(idx) >= n {
			// Defensive: Intern must yield dense indices starting at 0 for a
			// fresh IdMap seeded in id order; a mismatch indicates a reused map.
			return errors.New("graphstore: seed index out of range, idmap not freshly reset")
		}

		pos := ns.Position
		var p simproto.Vec3
		if pos != nil {
			p = *pos
		} else {
			p = g.randomSpherePoint()
		}
		buf.Positions[idx] = p
		buf.Velocities[idx] = simproto.Vec3{}

		m := ns.Mass
		if m == 0 {
			m = 128
		}
		mass[idx] = m

		fl := ns.Flags
		if fl == 0 {
			fl = simproto.FlagActive | simproto.FlagConnected
		}
		flags[idx] = fl
	}

	g.mass = mass
	g.flags = flags
	g.edges = append([]simproto.Edge(nil), edges...)
	g.bufs[0] = buf
	g.bufs[1] = newBuffer(n)
	copy(g.bufs[1].Positions, buf.Positions)
	copy(g.bufs[1].Velocities, buf.Velocities)
	atomic.StoreInt32(&g.readIdx, 0)
	return nil
}

// randomSpherePoint draws a uniform-ish point on a sphere of seedRadius
// using the deterministic PRNG, grounded in the sphere-scatter seeding
// convention used by force-directed layout engines (gonum/graph/layout).
func (g *GraphStore) randomSpherePoint() simproto.Vec3 {
	theta := g.rng.Float64() * 2 * math.Pi
	phi := math.Acos(2*g.rng.Float64() - 1)
	return simproto.Vec3{
		X: float32(seedRadius * math.Sin(phi) * math.Cos(theta)),
		Y: float32(seedRadius * math.Sin(phi) * math.Sin(theta)),
		Z: float32(seedRadius * math.Cos(phi)),
	}
}

// Reset clears node state and re-bases the IdMap, so the next Seed call
// re-populates the store starting at index 0. Typically called by a
// provider reload before re-seeding with a fresh snapshot.
func (g *GraphStore) Reset() {
	g.structMu.Lock()
	defer g.structMu.Unlock()
	g.mass = nil
	g.flags = nil
	g.edges = nil
	g.bufs[0] = newBuffer(0)
	g.bufs[1] = newBuffer(0)
	atomic.StoreInt32(&g.readIdx, 0)
	g.ids.Reset()
	// Drain any in-flight overrides targeting the old index space.
	for {
		select {
		case <-g.overrides:
		default:
			return
		}
	}
}

// Len returns the current dense node count N.
func (g *GraphStore) Len() int {
	g.structMu.Lock()
	defer g.structMu.Unlock()
	return len(g.mass)
}

// EnqueueOverride validates and queues a client position/velocity override
// for application at the start of the next tick. It never blocks the
// caller's goroutine on the Integrator: a full queue fails fast with
// ErrQueueFull rather than backing up the session.
func (g *GraphStore) EnqueueOverride(idx uint32, pos, vel simproto.Vec3) error {
	if !pos.Finite() || !vel.Finite() {
		return ErrUnknownIndex
	}
	if int(idx) >= g.Len() {
		return ErrUnknownIndex
	}
	select {
	case g.overrides <- Override{Index: idx, Position: pos, Velocity: vel}:
		return nil
	default:
		return ErrQueueFull
	}
}

// DrainOverrides atomically removes and returns all currently-queued
// overrides, keeping only the latest per index: a stale-then-fresh pair for
// the same index collapses to the fresh one, and applying the same override
// twice is harmless.
func (g *GraphStore) DrainOverrides() []Override {
	latest := make(map[uint32]Override)
	order := make([]uint32, 0)
	for {
		select {
		case ov := <-g.overrides:
			if _, seen := latest[ov.Index]; !seen {
				order = append(order, ov.Index)
			}
			latest[ov.Index] = ov
		default:
			out := make([]Override, 0, len(order))
			for _, idx := range order {
				out = append(out, latest[idx])
			}
			return out
		}
	}
}

// Generation is the read-only view of one committed tick's state, handed
// to the Integrator as input and to the Broadcaster/tests for snapshotting.
type Generation struct {
	Positions  []simproto.Vec3
	Velocities []simproto.Vec3
	Mass       []uint8
	Flags      []uint8
	Edges      []simproto.Edge
}

// Current returns the committed generation the Integrator should treat as
// this tick's input, and the scratch generation it should write its output
// into. Readers (Snapshot) never see the scratch generation until Commit
// swaps it in, so the Integrator never aliases a concurrently-read array.
func (g *GraphStore) Current() (src Generation, scratch *Buffer) {
	g.structMu.Lock()
	defer g.structMu.Unlock()

	srcIdx := atomic.LoadInt32(&g.readIdx)
	dstIdx := 1 - srcIdx
	srcBuf := g.bufs[srcIdx]
	dstBuf := g.bufs[dstIdx]

	// The scratch Buffer starts as a copy of src so nodes that don't
	// participate this tick (inactive nodes) default to carrying their prior
	// value forward without every backend having to special-case it.
	copy(dstBuf.Positions, srcBuf.Positions)
	copy(dstBuf.Velocities, srcBuf.Velocities)

	return Generation{
		Positions:  srcBuf.Positions,
		Velocities: srcBuf.Velocities,
		Mass:       g.mass,
		Flags:      g.flags,
		Edges:      g.edges,
	}, dstBuf
}

// Commit publishes scratch (the Buffer returned alongside Current's src) as
// the new committed generation via a pointer swap, the lock held only for
// that swap so readers never wait on a tick's force computation.
func (g *GraphStore) Commit(scratch *Buffer) {
	g.structMu.Lock()
	defer g.structMu.Unlock()
	srcIdx := atomic.LoadInt32(&g.readIdx)
	dstIdx := 1 - srcIdx
	if g.bufs[dstIdx] != scratch {
		// A Reset/Seed raced with this tick's Commit; drop the stale scratch.
		return
	}
	atomic.StoreInt32(&g.readIdx, dstIdx)
}

// WriteOverride applies a validated override directly into scratch. The
// Integrator calls this after the backend's force computation and before
// Commit, for every override drained at the start of the tick.
func WriteOverride(scratch *Buffer, ov Override) {
	if int(ov.Index) >= len(scratch.Positions) {
		return
	}
	scratch.Positions[ov.Index] = ov.Position
	scratch.Velocities[ov.Index] = ov.Velocity
}

// Snapshot returns a read-consistent copy of the current committed
// generation as wire-ready NodeRecords, for the Broadcaster to encode. The
// lock is held only long enough to copy the arrays, never across encoding.
func (g *GraphStore) Snapshot() []simproto.NodeRecord {
	g.structMu.Lock()
	srcIdx := atomic.LoadInt32(&g.readIdx)
	buf := g.bufs[srcIdx]
	n := len(buf.Positions)
	positions := make([]simproto.Vec3, n)
	velocities := make([]simproto.Vec3, n)
	copy(positions, buf.Positions)
	copy(velocities, buf.Velocities)
	mass := g.mass
	flags := g.flags
	g.structMu.Unlock()

	out := make([]simproto.NodeRecord, n)
	for i := 0; i < n; i++ {
		out[i] = simproto.NodeRecord{
			Index:      uint32(i),
			Position:   positions[i],
			Velocity:   velocities[i],
			Mass:       mass[i],
			Flags:      flags[i],
		}
	}
	return out
}
