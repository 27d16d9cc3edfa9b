package controlplane

import (
	"encoding/json"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMessageConstructors(t *testing.T) {
	Convey("NewConnectionEstablished sets its type tag", t, func() {
		m := NewConnectionEstablished()
		So(m.Type, ShouldEqual, TypeConnectionEstablished)
	})

	Convey("NewLoading carries the message and its type tag", t, func() {
		m := NewLoading("graph loaded")
		So(m.Type, ShouldEqual, TypeLoading)
		So(m.Message, ShouldEqual, "graph loaded")
	})

	Convey("NewUpdatesStarted carries the timestamp and its type tag", t, func() {
		m := NewUpdatesStarted(1234)
		So(m.Type, ShouldEqual, TypeUpdatesStarted)
		So(m.Timestamp, ShouldEqual, int64(1234))
	})

	Convey("NewPong echoes the timestamp", t, func() {
		m := NewPong(42)
		So(m.Type, ShouldEqual, TypePong)
		So(m.Timestamp, ShouldEqual, int64(42))
	})
}

func TestParseEnvelope(t *testing.T) {
	Convey("ParseEnvelope extracts the type tag without needing the full payload", t, func() {
		raw, err := json.Marshal(map[string]any{"type": "ping", "timestamp": 7})
		So(err, ShouldBeNil)

		env, err := ParseEnvelope(raw)
		So(err, ShouldBeNil)
		So(env.Type, ShouldEqual, TypePing)
	})

	Convey("ParseEnvelope errors on malformed JSON", t, func() {
		_, err := ParseEnvelope([]byte("not json"))
		So(err, ShouldNotBeNil)
	})
}
