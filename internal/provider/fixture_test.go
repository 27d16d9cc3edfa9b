package provider

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoadFixture(t *testing.T) {
	Convey("Given a minimal JSON fixture file", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "graph.json")
		contents := `{
			"nodes": [
				{"id": "a", "mass": 200, "flags": 3, "x": 1, "y": 2, "z": 3},
				{"id": "b"}
			],
			"edges": [
				{"from": "a", "to": "b", "weight": 2.5}
			]
		}`
		err := os.WriteFile(path, []byte(contents), 0o644)
		So(err, ShouldBeNil)

		Convey("LoadFixture parses nodes and edges", func() {
			snap, err := LoadFixture(path)
			So(err, ShouldBeNil)
			So(len(snap.Nodes), ShouldEqual, 2)
			So(len(snap.Edges), ShouldEqual, 1)
			So(snap.Nodes[0].Position, ShouldNotBeNil)
			So(snap.Nodes[0].Position.X, ShouldEqual, float32(1))
			So(snap.Nodes[1].Position, ShouldBeNil)
		})
	})

	Convey("Given a path that does not exist", t, func() {
		Convey("LoadFixture returns an error", func() {
			_, err := LoadFixture(filepath.Join(t.TempDir(), "missing.json"))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestDemoSnapshot(t *testing.T) {
	Convey("DemoSnapshot returns a connected ring graph", t, func() {
		snap := DemoSnapshot()
		So(len(snap.Nodes), ShouldEqual, 12)
		So(len(snap.Edges), ShouldBeGreaterThanOrEqualTo, 12)
	})
}
