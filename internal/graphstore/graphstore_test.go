package graphstore

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/jjohare/logseqSpringThing-sub000/internal/idmap"
	"github.com/jjohare/logseqSpringThing-sub000/internal/simproto"
)

func seedTwoNodes(t *testing.T) (*GraphStore, *idmap.IdMap) {
	t.Helper()
	ids := idmap.New()
	store := New(ids, 42)
	origin := simproto.Vec3{X: 0, Y: 0, Z: 0}
	one := simproto.Vec3{X: 1, Y: 0, Z: 0}
	err := store.Seed([]NodeSeed{
		{ExternalID: "a", Position: &origin, Mass: 128, Flags: simproto.FlagActive | simproto.FlagConnected},
		{ExternalID: "b", Position: &one, Mass: 128, Flags: simproto.FlagActive | simproto.FlagConnected},
	}, []simproto.Edge{{A: 0, B: 1, Weight: 1}})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store, ids
}

func TestGraphStoreSeedAndSnapshot(t *testing.T) {
	Convey("Given a freshly seeded two-node store", t, func() {
		store, _ := seedTwoNodes(t)

		Convey("Snapshot reflects seeded positions", func() {
			snap := store.Snapshot()
			So(len(snap), ShouldEqual, 2)
			So(snap[0].Position.X, ShouldEqual, float32(0))
			So(snap[1].Position.X, ShouldEqual, float32(1))
		})

		Convey("Len reports the dense node count", func() {
			So(store.Len(), ShouldEqual, 2)
		})
	})
}

func TestGraphStoreOverrides(t *testing.T) {
	Convey("Given a seeded store", t, func() {
		store, _ := seedTwoNodes(t)

		Convey("EnqueueOverride rejects an unknown index", func() {
			err := store.EnqueueOverride(99, simproto.Vec3{}, simproto.Vec3{})
			So(err, ShouldEqual, ErrUnknownIndex)
		})

		Convey("EnqueueOverride rejects non-finite components", func() {
			nan := simproto.Vec3{X: float32(0) / float32(0)}
			err := store.EnqueueOverride(0, nan, simproto.Vec3{})
			So(err, ShouldEqual, ErrUnknownIndex)
		})

		Convey("DrainOverrides keeps only the latest per index", func() {
			_ = store.EnqueueOverride(0, simproto.Vec3{X: 1}, simproto.Vec3{})
			_ = store.EnqueueOverride(0, simproto.Vec3{X: 2}, simproto.Vec3{})
			overrides := store.DrainOverrides()
			So(len(overrides), ShouldEqual, 1)
			So(overrides[0].Position.X, ShouldEqual, float32(2))
		})
	})
}

func TestGraphStoreReset(t *testing.T) {
	Convey("Given a seeded store", t, func() {
		store, ids := seedTwoNodes(t)

		Convey("Reset clears node state and the caller can re-seed from index 0", func() {
			store.Reset()
			ids.Reset()
			So(store.Len(), ShouldEqual, 0)

			origin := simproto.Vec3{}
			err := store.Seed([]NodeSeed{{ExternalID: "c", Position: &origin}}, nil)
			So(err, ShouldBeNil)
			So(store.Len(), ShouldEqual, 1)
		})
	})
}
