// Package provider defines the boundary between the core and whatever
// ingests and enriches graph data (markdown/repository scanning, AI
// enrichment, or anything else) on the other side of it. The core never
// assumes what backs this interface; it only pulls a snapshot and reacts to
// change notifications.
package provider

import (
	"context"

	"github.com/jjohare/logseqSpringThing-sub000/internal/graphstore"
	"github.com/jjohare/logseqSpringThing-sub000/internal/simproto"
)

// NodeSpec is one node as handed over by a provider, before interning.
type NodeSpec struct {
	ExternalID string
	Position   *simproto.Vec3
	Mass       uint8
	Flags      uint8
}

// EdgeSpec is one edge as handed over by a provider, referencing nodes by
// external id rather than dense index since the provider has no notion of
// the core's index assignment.
type EdgeSpec struct {
	FromExternalID string
	ToExternalID   string
	Weight         float32
}

// Snapshot is a full graph pulled from a provider.
type Snapshot struct {
	Nodes []NodeSpec
	Edges []EdgeSpec
}

// Source is the pull/push contract a graph provider must satisfy. Any
// backing implementation (a markdown scanner, a database-fed ingestion
// pipeline, a static fixture for tests) only needs to implement this.
type Source interface {
	// FetchSnapshot returns the current graph in full. Called once at
	// startup and again any time a change notification fires.
	FetchSnapshot(ctx context.Context) (Snapshot, error)

	// Changes returns a channel that receives a value every time the
	// provider's underlying data changes. The channel is closed when the
	// provider is done emitting notifications (e.g. on shutdown); the
	// caller should stop watching it at that point rather than treat it
	// as an error.
	Changes() <-chan struct{}
}

// StaticSource is a Source backed by a fixed Snapshot, useful for tests and
// for standalone operation without a live ingestion pipeline.
type StaticSource struct {
	snapshot Snapshot
}

// NewStaticSource returns a Source that always answers FetchSnapshot with
// snapshot and never signals a change.
func NewStaticSource(snapshot Snapshot) *StaticSource {
	return &StaticSource{snapshot: snapshot}
}

func (s *StaticSource) FetchSnapshot(_ context.Context) (Snapshot, error) {
	return s.snapshot, nil
}

func (s *StaticSource) Changes() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Loader pulls snapshots from a Source and seeds a GraphStore, re-seeding
// whenever the Source signals a change. It owns the translation from
// external-id edges to index-pair edges, since only the store's IdMap knows
// the mapping.
type Loader struct {
	src   Source
	store *graphstore.GraphStore
}

// NewLoader returns a Loader that seeds store from src.
func NewLoader(src Source, store *graphstore.GraphStore) *Loader {
	return &Loader{src: src, store: store}
}

// LoadOnce fetches one snapshot and seeds the store with it.
func (l *Loader) LoadOnce(ctx context.Context) error {
	snap, err := l.src.FetchSnapshot(ctx)
	if err != nil {
		return err
	}
	return l.apply(snap)
}

// Watch blocks, reseeding the store every time the Source reports a change,
// until ctx is cancelled or the Source's change channel closes.
func (l *Loader) Watch(ctx context.Context) error {
	changes := l.src.Changes()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			if err := l.LoadOnce(ctx); err != nil {
				return err
			}
		}
	}
}

func (l *Loader) apply(snap Snapshot) error {
	seeds := make([]graphstore.NodeSeed, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		seeds = append(seeds, graphstore.NodeSeed{
			ExternalID: n.ExternalID,
			Position:   n.Position,
			Mass:       n.Mass,
			Flags:      n.Flags,
		})
	}

	l.store.Reset()

	// Every node's index must be known before edges can be translated,
	// since an edge may reference a node that appears later in the slice.
	// Seed interns nodes in slice order into the freshly reset IdMap, so
	// node i receives index i.
	ids := make(map[string]uint32, len(snap.Nodes))
	for i, s := range seeds {
		ids[s.ExternalID] = uint32(i)
	}

	edges := make([]simproto.Edge, 0, len(snap.Edges))
	for _, e := range snap.Edges {
		from, ok := ids[e.FromExternalID]
		if !ok {
			continue
		}
		to, ok := ids[e.ToExternalID]
		if !ok {
			continue
		}
		edges = append(edges, simproto.Edge{A: from, B: to, Weight: e.Weight})
	}

	return l.store.Seed(seeds, edges)
}
