package provider

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jjohare/logseqSpringThing-sub000/internal/simproto"
)

// fixtureNode and fixtureEdge mirror NodeSpec/EdgeSpec in a JSON-friendly
// shape for standalone operation without a live ingestion pipeline.
type fixtureNode struct {
	ID    string   `json:"id"`
	Mass  uint8    `json:"mass"`
	Flags uint8    `json:"flags"`
	X     *float32 `json:"x,omitempty"`
	Y     *float32 `json:"y,omitempty"`
	Z     *float32 `json:"z,omitempty"`
}

type fixtureEdge struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Weight float32 `json:"weight"`
}

type fixtureGraph struct {
	Nodes []fixtureNode `json:"nodes"`
	Edges []fixtureEdge `json:"edges"`
}

// LoadFixture reads a JSON graph description from path and returns it as a
// Snapshot. The format is deliberately minimal: a node needs only an id,
// optional x/y/z (scattered on the seed sphere if omitted), and optional
// mass/flags; an edge names its endpoints by id.
func LoadFixture(path string) (Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("provider: read fixture %s: %w", path, err)
	}

	var fg fixtureGraph
	if err := json.Unmarshal(raw, &fg); err != nil {
		return Snapshot{}, fmt.Errorf("provider: parse fixture %s: %w", path, err)
	}

	snap := Snapshot{
		Nodes: make([]NodeSpec, 0, len(fg.Nodes)),
		Edges: make([]EdgeSpec, 0, len(fg.Edges)),
	}
	for _, n := range fg.Nodes {
		spec := NodeSpec{ExternalID: n.ID, Mass: n.Mass, Flags: n.Flags}
		if n.X != nil && n.Y != nil && n.Z != nil {
			spec.Position = &simproto.Vec3{X: *n.X, Y: *n.Y, Z: *n.Z}
		}
		snap.Nodes = append(snap.Nodes, spec)
	}
	for _, e := range fg.Edges {
		snap.Edges = append(snap.Edges, EdgeSpec{FromExternalID: e.From, ToExternalID: e.To, Weight: e.Weight})
	}
	return snap, nil
}

// DemoSnapshot returns a small built-in graph for standalone operation when
// no fixture path is configured: a handful of nodes in a ring, each
// connected to its two neighbours, plus a cross-link from every third node
// to the node opposite it to keep the physics visibly interesting.
func DemoSnapshot() Snapshot {
	const n = 12
	nodes := make([]NodeSpec, n)
	for i := 0; i < n; i++ {
		nodes[i] = NodeSpec{
			ExternalID: fmt.Sprintf("demo-%d", i),
			Mass:       128,
			Flags:      simproto.FlagActive | simproto.FlagConnected,
		}
	}

	edges := make([]EdgeSpec, 0, n+n/3)
	for i := 0; i < n; i++ {
		edges = append(edges, EdgeSpec{
			FromExternalID: nodes[i].ExternalID,
			ToExternalID:   nodes[(i+1)%n].ExternalID,
			Weight:         1,
		})
	}
	for i := 0; i < n; i += 3 {
		edges = append(edges, EdgeSpec{
			FromExternalID: nodes[i].ExternalID,
			ToExternalID:   nodes[(i+n/2)%n].ExternalID,
			Weight:         0.5,
		})
	}

	return Snapshot{Nodes: nodes, Edges: edges}
}
