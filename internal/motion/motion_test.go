package motion

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/jjohare/logseqSpringThing-sub000/internal/simproto"
)

func TestFraction(t *testing.T) {
	Convey("Given an estimator with threshold 0.05", t, func() {
		est := New(0.05)

		Convey("An empty record set reports zero motion", func() {
			So(est.Fraction(nil), ShouldEqual, 0)
		})

		Convey("Half of active nodes moving above threshold yields 0.5", func() {
			records := []simproto.NodeRecord{
				{Flags: simproto.FlagActive, Velocity: simproto.Vec3{X: 1}},
				{Flags: simproto.FlagActive, Velocity: simproto.Vec3{X: 0}},
				{Flags: 0, Velocity: simproto.Vec3{X: 10}}, // inactive, excluded from denominator
			}
			So(est.Fraction(records), ShouldEqual, 0.5)
		})

		Convey("All nodes still yields 1.0", func() {
			records := []simproto.NodeRecord{
				{Flags: simproto.FlagActive, Velocity: simproto.Vec3{X: 1}},
				{Flags: simproto.FlagActive, Velocity: simproto.Vec3{X: 2}},
			}
			So(est.Fraction(records), ShouldEqual, 1.0)
		})

		Convey("All nodes frozen yields 0.0", func() {
			records := []simproto.NodeRecord{
				{Flags: simproto.FlagActive, Velocity: simproto.Vec3{}},
				{Flags: simproto.FlagActive, Velocity: simproto.Vec3{}},
			}
			So(est.Fraction(records), ShouldEqual, 0.0)
		})
	})
}
