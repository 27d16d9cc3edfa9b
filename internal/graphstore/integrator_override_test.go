package graphstore_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/jjohare/logseqSpringThing-sub000/internal/graphstore"
	"github.com/jjohare/logseqSpringThing-sub000/internal/idmap"
	"github.com/jjohare/logseqSpringThing-sub000/internal/integrator"
	"github.com/jjohare/logseqSpringThing-sub000/internal/simproto"
)

// This lives outside package graphstore (and thus out of graphstore_test.go)
// because it needs internal/integrator, which itself imports graphstore; an
// internal test file can't take that import without a cycle.
func TestOverrideSurvivesATick(t *testing.T) {
	Convey("Given a store seeded with two nodes and an Integrator running the CPU backend", t, func() {
		ids := idmap.New()
		store := graphstore.New(ids, 42)
		origin := simproto.Vec3{X: 0, Y: 0, Z: 0}
		one := simproto.Vec3{X: 1, Y: 0, Z: 0}
		err := store.Seed([]graphstore.NodeSeed{
			{ExternalID: "a", Position: &origin, Mass: 128, Flags: simproto.FlagActive | simproto.FlagConnected},
			{ExternalID: "b", Position: &one, Mass: 128, Flags: simproto.FlagActive | simproto.FlagConnected},
		}, []simproto.Edge{{A: 0, B: 1, Weight: 1}})
		So(err, ShouldBeNil)

		it := integrator.New(store, integrator.CPUBackend{}, 7, nil)
		it.SetParams(simproto.DefaultSimulationParams())

		Convey("An override enqueued before Step takes effect exactly in the committed generation, undisturbed by that tick's physics", func() {
			err := store.EnqueueOverride(0, simproto.Vec3{X: 5}, simproto.Vec3{})
			So(err, ShouldBeNil)

			err = it.Step()
			So(err, ShouldBeNil)

			snap := store.Snapshot()
			So(snap[0].Position.X, ShouldEqual, float32(5))
		})
	})
}
