package wire

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/jjohare/logseqSpringThing-sub000/internal/simproto"
)

func sampleRecords(n int) []simproto.NodeRecord {
	out := make([]simproto.NodeRecord, n)
	for i := range out {
		out[i] = simproto.NodeRecord{
			Index:    uint32(i),
			Position: simproto.Vec3{X: float32(i), Y: float32(i) * 2, Z: float32(i) * 3},
			Velocity: simproto.Vec3{X: 0.1, Y: 0.2, Z: 0.3},
			Flags:    simproto.FlagActive,
		}
	}
	return out
}

func TestEncodeDecodeEgressRoundTrip(t *testing.T) {
	Convey("Given an uncompressed codec", t, func() {
		c := NewCodec(false, 1024)

		Convey("encoding then decoding recovers positions and velocities", func() {
			records := sampleRecords(5)
			frame, err := c.EncodeEgress(records)
			So(err, ShouldBeNil)
			So(len(frame)%28, ShouldEqual, 0)
			So(len(frame), ShouldEqual, 5*28)

			decoded, err := DecodeEgress(frame)
			So(err, ShouldBeNil)
			So(len(decoded), ShouldEqual, 5)
			for i := range records {
				So(decoded[i].Index, ShouldEqual, records[i].Index)
				So(decoded[i].Position.X, ShouldEqual, records[i].Position.X)
				So(decoded[i].Velocity.Z, ShouldEqual, records[i].Velocity.Z)
			}
		})
	})

	Convey("Given a codec with compression enabled and a low threshold", t, func() {
		c := NewCodec(true, 16)

		Convey("a payload over the threshold is zlib-wrapped and still round-trips", func() {
			records := sampleRecords(10) // 280 bytes, over the 16-byte threshold
			frame, err := c.EncodeEgress(records)
			So(err, ShouldBeNil)
			So(isZlib(frame), ShouldBeTrue)

			decoded, err := DecodeEgress(frame)
			So(err, ShouldBeNil)
			So(len(decoded), ShouldEqual, 10)
		})

		Convey("an empty payload is left uncompressed", func() {
			empty, err := c.EncodeEgress(nil)
			So(err, ShouldBeNil)
			So(len(empty), ShouldEqual, 0)
			So(isZlib(empty), ShouldBeFalse)
		})
	})
}

func TestDecodeIngress(t *testing.T) {
	Convey("Given ingress override payloads", t, func() {
		Convey("a single valid record decodes to one IngressRecord", func() {
			records := sampleRecords(1)
			raw := make([]byte, 28)
			putRecord(raw, records[0].Index, records[0].Position, records[0].Velocity)

			decoded, err := DecodeIngress(raw)
			So(err, ShouldBeNil)
			So(len(decoded), ShouldEqual, 1)
			So(decoded[0].Position.Y, ShouldEqual, records[0].Position.Y)
		})

		Convey("a frame whose length is not a multiple of 28 is rejected", func() {
			_, err := DecodeIngress(make([]byte, 30))
			So(err, ShouldEqual, ErrMalformedFrame)
		})

		Convey("an empty frame is rejected", func() {
			_, err := DecodeIngress(nil)
			So(err, ShouldEqual, ErrMalformedFrame)
		})

		Convey("a frame with more than two records is rejected", func() {
			raw := make([]byte, 28*3)
			_, err := DecodeIngress(raw)
			So(err, ShouldEqual, ErrTooManyRecords)
		})
	})
}

func TestDecodeEgressRejectsMalformedPayload(t *testing.T) {
	Convey("A non-multiple-of-28 uncompressed payload is rejected", t, func() {
		_, err := DecodeEgress(make([]byte, 29))
		So(err, ShouldEqual, ErrMalformedFrame)
	})

	Convey("A payload claiming a zlib header but with corrupt contents is rejected", t, func() {
		_, err := DecodeEgress([]byte{0x78, 0x9C, 0x00, 0x00})
		So(err, ShouldEqual, ErrMalformedFrame)
	})
}
