package integrator

import (
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/jjohare/logseqSpringThing-sub000/internal/graphstore"
	"github.com/jjohare/logseqSpringThing-sub000/internal/idmap"
	"github.com/jjohare/logseqSpringThing-sub000/internal/simproto"
)

func newStoreForScenario(t *testing.T, nodes []graphstore.NodeSeed, edges []simproto.Edge) *graphstore.GraphStore {
	t.Helper()
	store := graphstore.New(idmap.New(), 1)
	if err := store.Seed(nodes, edges); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store
}

// TestTinyHandshakeConverges checks that two nodes joined by one spring
// edge converge toward its rest length.
func TestTinyHandshakeConverges(t *testing.T) {
	Convey("Given a two-node graph with one spring edge", t, func() {
		origin := simproto.Vec3{X: 0, Y: 0, Z: 0}
		one := simproto.Vec3{X: 1, Y: 0, Z: 0}
		store := newStoreForScenario(t,
			[]graphstore.NodeSeed{
				{ExternalID: "a", Position: &origin, Mass: 128, Flags: simproto.FlagActive | simproto.FlagConnected},
				{ExternalID: "b", Position: &one, Mass: 128, Flags: simproto.FlagActive | simproto.FlagConnected},
			},
			[]simproto.Edge{{A: 0, B: 1, Weight: 1}},
		)

		params := simproto.SimulationParams{
			SpringStrength:       0.2,
			RepulsionStrength:    0,
			Damping:              0.9,
			MaxVelocity:          100,
			MaxRepulsionDistance: 50,
			ViewportBounds:       1000,
			DT:                   1,
			IterationsPerTick:    1,
			EnableBounds:         false,
			BoundaryDamping:      1,
		}

		backend := CPUBackend{}

		Convey("After one tick both nodes move toward each other along x", func() {
			src, scratch := store.Current()
			err := backend.Compute(src, scratch, params, nil)
			So(err, ShouldBeNil)
			store.Commit(scratch)

			snap := store.Snapshot()
			// Node a starts at x=0 and the spring is attractive (stretched
			// beyond any plausible rest length near 1.5), so a should move
			// toward positive x and b toward negative x.
			So(snap[0].Position.X, ShouldBeGreaterThan, 0)
			So(snap[1].Position.X, ShouldBeLessThan, 1)
		})

		Convey("After 100 ticks distance settles near the rest length", func() {
			for i := 0; i < 100; i++ {
				src, scratch := store.Current()
				err := backend.Compute(src, scratch, params, nil)
				So(err, ShouldBeNil)
				store.Commit(scratch)
			}

			snap := store.Snapshot()
			dx := float64(snap[0].Position.X - snap[1].Position.X)
			dy := float64(snap[0].Position.Y - snap[1].Position.Y)
			dz := float64(snap[0].Position.Z - snap[1].Position.Z)
			dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
			So(dist, ShouldBeBetween, 0.9, 1.1)
		})
	})
}

// TestBoundsClampsRunawayNode checks that a node shot toward the viewport
// boundary at high velocity ends one tick inside bounds.
func TestBoundsClampsRunawayNode(t *testing.T) {
	Convey("Given a single node far outside bounds with high velocity", t, func() {
		far := simproto.Vec3{X: 100, Y: 0, Z: 0}
		store := newStoreForScenario(t,
			[]graphstore.NodeSeed{{ExternalID: "solo", Position: &far, Mass: 128, Flags: simproto.FlagActive}},
			nil,
		)

		src, scratch := store.Current()
		scratch.Velocities[0] = simproto.Vec3{X: 50, Y: 0, Z: 0}
		store.Commit(scratch)

		params := simproto.SimulationParams{
			Damping:              0.9,
			MaxVelocity:          5,
			MaxRepulsionDistance: 50,
			ViewportBounds:       10,
			DT:                   1,
			IterationsPerTick:    1,
			EnableBounds:         true,
			BoundaryDamping:      0.8,
		}

		Convey("one tick clamps position within bounds and velocity within max", func() {
			backend := CPUBackend{}
			src, scratch := store.Current()
			err := backend.Compute(src, scratch, params, nil)
			So(err, ShouldBeNil)
			store.Commit(scratch)

			snap := store.Snapshot()
			So(snap[0].Position.X, ShouldBeLessThanOrEqualTo, float32(10))
			So(snap[0].Position.X, ShouldBeGreaterThanOrEqualTo, float32(-10))
			So(snap[0].Velocity.Length(), ShouldBeLessThanOrEqualTo, float32(5.0001))
		})
		_ = src
	})
}

// TestInactiveNodeHoldsVelocity checks that an inactive node's velocity is
// untouched by a tick.
func TestInactiveNodeHoldsVelocity(t *testing.T) {
	Convey("Given an inactive node with a nonzero velocity", t, func() {
		pos := simproto.Vec3{X: 3, Y: 0, Z: 0}
		store := newStoreForScenario(t,
			[]graphstore.NodeSeed{{ExternalID: "frozen", Position: &pos, Mass: 50, Flags: simproto.FlagConnected}},
			nil,
		)
		src, scratch := store.Current()
		scratch.Velocities[0] = simproto.Vec3{X: 2, Y: 0, Z: 0}
		store.Commit(scratch)

		params := simproto.SimulationParams{
			Damping: 0.5, MaxVelocity: 100, MaxRepulsionDistance: 50,
			ViewportBounds: 1000, DT: 1, IterationsPerTick: 1, BoundaryDamping: 1,
		}

		Convey("a tick does not change its velocity", func() {
			backend := CPUBackend{}
			src, scratch := store.Current()
			err := backend.Compute(src, scratch, params, nil)
			So(err, ShouldBeNil)
			store.Commit(scratch)

			snap := store.Snapshot()
			So(snap[0].Velocity.X, ShouldEqual, float32(2))
		})
		_ = src
	})
}
