package broadcaster

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/jjohare/logseqSpringThing-sub000/internal/simproto"
	"github.com/jjohare/logseqSpringThing-sub000/internal/wire"
)

type fakeSession struct {
	enabled   bool
	delivered [][]byte
}

func (f *fakeSession) BinaryEnabled() bool { return f.enabled }
func (f *fakeSession) Deliver(frame []byte) {
	f.delivered = append(f.delivered, frame)
}

func TestBroadcastDeliversOnlyToEnabledSessions(t *testing.T) {
	Convey("Given a Broadcaster with one enabled and one disabled session", t, func() {
		b := New(wire.NewCodec(false, 1024), nil)
		enabled := &fakeSession{enabled: true}
		disabled := &fakeSession{enabled: false}
		b.Register("a", enabled)
		b.Register("b", disabled)

		Convey("Broadcast delivers the encoded frame only to the enabled session", func() {
			records := []simproto.NodeRecord{{Index: 0, Position: simproto.Vec3{X: 1}}}
			b.Broadcast(records)

			So(len(enabled.delivered), ShouldEqual, 1)
			So(len(enabled.delivered[0]), ShouldEqual, 28)
			So(len(disabled.delivered), ShouldEqual, 0)
		})
	})

	Convey("Given a Broadcaster with no registered sessions", t, func() {
		b := New(wire.NewCodec(false, 1024), nil)

		Convey("Broadcast is a no-op", func() {
			So(func() { b.Broadcast(nil) }, ShouldNotPanic)
		})
	})

	Convey("Given a session that has been removed", t, func() {
		b := New(wire.NewCodec(false, 1024), nil)
		s := &fakeSession{enabled: true}
		b.Register("a", s)
		b.Remove("a")

		Convey("it no longer receives broadcasts", func() {
			b.Broadcast([]simproto.NodeRecord{{Index: 0}})
			So(len(s.delivered), ShouldEqual, 0)
			So(b.SessionCount(), ShouldEqual, 0)
		})
	})
}
