// Package broadcaster fans the latest tick's node snapshot out to every
// session with binary delivery enabled, encoding once per tick and handing
// each session its own coalescing mailbox.
package broadcaster

import (
	"sync"

	"go.uber.org/zap"

	"github.com/jjohare/logseqSpringThing-sub000/internal/simproto"
	"github.com/jjohare/logseqSpringThing-sub000/internal/wire"
)

// Deliverer is the subset of *session.Session the Broadcaster needs. It
// takes an interface rather than the concrete type so this package and
// internal/session never import each other.
type Deliverer interface {
	BinaryEnabled() bool
	Deliver(frame []byte)
}

// Broadcaster owns the session registry and the per-tick encode/fan-out.
// Registration and removal are guarded by a small lock; a tick's fan-out
// iterates a snapshot copy of handles so a session joining or leaving mid
// broadcast never races the iteration.
type Broadcaster struct {
	mu       sync.Mutex
	sessions map[string]Deliverer
	codec    wire.Codec
	log      *zap.Logger
}

// New returns a Broadcaster using codec for egress encoding.
func New(codec wire.Codec, log *zap.Logger) *Broadcaster {
	return &Broadcaster{
		sessions: make(map[string]Deliverer),
		codec:    codec,
		log:      log,
	}
}

// Register adds a session to the fan-out set.
func (b *Broadcaster) Register(id string, d Deliverer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[id] = d
}

// Remove takes a session out of the fan-out set, e.g. once it closes.
func (b *Broadcaster) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, id)
}

// SessionCount reports the number of registered sessions, for metrics.
func (b *Broadcaster) SessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// Broadcast encodes records once and offers the resulting frame to every
// registered session with binary delivery enabled. Encoding and delivery
// both happen outside any lock held across the tick; only the handle
// snapshot is taken under lock.
func (b *Broadcaster) Broadcast(records []simproto.NodeRecord) {
	handles := b.snapshotHandles()
	if len(handles) == 0 {
		return
	}

	frame, err := b.codec.EncodeEgress(records)
	if err != nil {
		if b.log != nil {
			b.log.Error("egress encode failed", zap.Error(err))
		}
		return
	}

	for _, d := range handles {
		if !d.BinaryEnabled() {
			continue
		}
		d.Deliver(frame)
	}
}

func (b *Broadcaster) snapshotHandles() []Deliverer {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Deliverer, 0, len(b.sessions))
	for _, d := range b.sessions {
		out = append(out, d)
	}
	return out
}
