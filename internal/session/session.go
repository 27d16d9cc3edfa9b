// Package session implements one client connection's protocol state
// machine: handshake gating, heartbeat liveness, ingress validation, and
// coalesced binary frame delivery.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jjohare/logseqSpringThing-sub000/internal/controlplane"
	"github.com/jjohare/logseqSpringThing-sub000/internal/simproto"
	"github.com/jjohare/logseqSpringThing-sub000/internal/wire"
)

// OverrideSink receives validated ingress overrides; *graphstore.GraphStore
// satisfies this.
type OverrideSink interface {
	EnqueueOverride(idx uint32, pos, vel simproto.Vec3) error
}

// RandomizationSink toggles the jitter control from the enableRandomization
// message; *integrator.Integrator satisfies this.
type RandomizationSink interface {
	SetRandomizationEnabled(enabled bool)
}

// Config holds the per-session tunables drawn from settings.
type Config struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	MaxMessageSize    int64
	MaxViolations     int32
	BackpressureGrace time.Duration

	// OverrideRateLimit and OverrideBurst bound how often a session's
	// ingress override frames are applied to the OverrideSink, independent
	// of how fast the client sends them. Zero disables limiting.
	OverrideRateLimit rate.Limit
	OverrideBurst     int
}

// DefaultConfig returns the protocol defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 10 * time.Second,
		HeartbeatTimeout:  10 * time.Minute,
		MaxMessageSize:    8192,
		MaxViolations:     5,
		BackpressureGrace: 5 * time.Second,
		OverrideRateLimit: 60,
		OverrideBurst:     30,
	}
}

// Session owns one client connection's lifecycle.
type Session struct {
	ID string

	sock          *socket
	log           *zap.Logger
	overrides     OverrideSink
	randomization RandomizationSink
	cfg           Config
	overrideLimit *rate.Limiter

	state      atomic.Int32
	violations atomic.Int32

	binaryEnabled      atomic.Bool
	pendingInitialData atomic.Bool
	updatesStartedOnce sync.Once

	mailbox      atomic.Pointer[[]byte]
	wake         chan struct{}
	pendingSince atomic.Int64 // unix nano; 0 when no frame is waiting
	lastSentAt   atomic.Int64

	lastPongAt atomic.Int64

	closeOnce  sync.Once
	cancel     context.CancelFunc
	closeCause atomic.Int32
}

// New constructs a Session in the Connecting state over an already-upgraded
// websocket connection.
func New(id string, conn *websocket.Conn, overrides OverrideSink, randomization RandomizationSink, cfg Config, log *zap.Logger) *Session {
	conn.SetReadLimit(cfg.MaxMessageSize)
	s := &Session{
		ID:            id,
		sock:          newSocket(conn),
		log:           log,
		overrides:     overrides,
		randomization: randomization,
		cfg:           cfg,
		wake:          make(chan struct{}, 1),
	}
	if cfg.OverrideRateLimit > 0 {
		s.overrideLimit = rate.NewLimiter(cfg.OverrideRateLimit, cfg.OverrideBurst)
	}
	s.state.Store(int32(Connecting))
	s.lastPongAt.Store(time.Now().UnixNano())
	return s
}

// State reports the session's current protocol state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// BinaryEnabled reports whether the Broadcaster should deliver frames to
// this session.
func (s *Session) BinaryEnabled() bool {
	return s.binaryEnabled.Load()
}

// Deliver offers frame to the session, coalescing with any undelivered
// frame already pending: only the latest is ever kept. It never blocks.
func (s *Session) Deliver(frame []byte) {
	if s.State() != Ready || !s.BinaryEnabled() {
		return
	}
	cp := append([]byte(nil), frame...)
	if s.mailbox.Swap(&cp) == nil {
		s.pendingSince.Store(time.Now().UnixNano())
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drives the session to completion: the handshake, then the read pump,
// heartbeat, and publish loop concurrently, until ctx is cancelled or a
// fatal condition closes the session. It returns the close cause.
func (s *Session) Run(ctx context.Context) CloseCause {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	s.state.Store(int32(Open))
	if err := s.sendJSON(ctx, controlplane.NewConnectionEstablished()); err != nil {
		s.closeWith(CauseTransientIO)
		return s.CloseCause()
	}
	if err := s.sendJSON(ctx, controlplane.NewLoading("graph loaded")); err != nil {
		s.closeWith(CauseTransientIO)
		return s.CloseCause()
	}
	s.state.Store(int32(Ready))
	if s.pendingInitialData.Swap(false) {
		s.binaryEnabled.Store(true)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return s.readPump(groupCtx) })
	group.Go(func() error { return s.heartbeat(groupCtx) })
	group.Go(func() error { return s.publishLoop(groupCtx) })
	_ = group.Wait()

	s.state.Store(int32(Closed))
	if s.CloseCause() == CauseShutdown {
		s.sock.CloseWithCode(websocket.CloseGoingAway)
	} else {
		s.sock.Close()
	}
	return s.CloseCause()
}

// CloseCause reports why the session ended, valid once Run has returned.
func (s *Session) CloseCause() CloseCause {
	return CloseCause(s.closeCause.Load())
}

// Shutdown asks the session to end because the process is shutting down,
// closing with a "going away" code rather than the normal-closure code Run
// otherwise sends. Safe to call from another goroutine while Run is active.
func (s *Session) Shutdown() {
	s.closeWith(CauseShutdown)
}

func (s *Session) closeWith(cause CloseCause) {
	s.closeOnce.Do(func() {
		s.closeCause.Store(int32(cause))
		s.state.Store(int32(Closing))
		if s.cancel != nil {
			s.cancel()
		}
	})
}

func (s *Session) readPump(ctx context.Context) error {
	for {
		var (
			msgType int
			data    []byte
			err     error
		)
		readErr := s.sock.Read(ctx, func(c *websocket.Conn) error {
			msgType, data, err = c.ReadMessage()
			return err
		})
		if ctx.Err() != nil {
			return nil
		}
		if readErr == ErrSockCongestion {
			continue
		}
		if err != nil {
			if isUnexpectedClose(err) {
				s.closeWith(CauseTransientIO)
			} else {
				s.closeWith(CauseNormal)
			}
			return err
		}

		switch msgType {
		case websocket.TextMessage:
			s.handleControlMessage(ctx, data)
		case websocket.BinaryMessage:
			s.handleIngressFrame(data)
		}
	}
}

func (s *Session) handleControlMessage(ctx context.Context, data []byte) {
	env, err := controlplane.ParseEnvelope(data)
	if err != nil {
		s.recordViolation()
		return
	}

	switch env.Type {
	case controlplane.TypeRequestInitialData:
		if s.State() == Ready {
			s.binaryEnabled.Store(true)
		} else {
			s.pendingInitialData.Store(true)
		}
	case controlplane.TypeEnableRandomization:
		var payload controlplane.EnableRandomization
		if err := json.Unmarshal(data, &payload); err != nil {
			s.recordViolation()
			return
		}
		if s.randomization != nil {
			s.randomization.SetRandomizationEnabled(payload.Enabled)
		}
	case controlplane.TypePing:
		var payload controlplane.Ping
		if err := json.Unmarshal(data, &payload); err != nil {
			s.recordViolation()
			return
		}
		_ = s.sendJSON(ctx, controlplane.NewPong(payload.Timestamp))
	default:
		if s.log != nil {
			s.log.Warn("unknown control message type", zap.String("type", env.Type), zap.String("session", s.ID))
		}
	}
}

func (s *Session) handleIngressFrame(data []byte) {
	records, err := wire.DecodeIngress(data)
	if err != nil {
		s.recordViolation()
		return
	}
	for _, r := range records {
		if s.overrides == nil {
			continue
		}
		if s.overrideLimit != nil && !s.overrideLimit.Allow() {
			continue
		}
		if err := s.overrides.EnqueueOverride(r.Index, r.Position, r.Velocity); err != nil {
			s.recordViolation()
		}
	}
}

// recordViolation drops the offending message and keeps the session open
// unless accumulated violations exceed the configured threshold.
func (s *Session) recordViolation() {
	n := s.violations.Add(1)
	if n > s.cfg.MaxViolations {
		s.closeWith(CauseProtocolViolation)
	}
}

func (s *Session) heartbeat(ctx context.Context) error {
	pong := make(chan struct{}, 1)
	s.sock.Conn().SetPongHandler(func(string) error {
		select {
		case pong <- struct{}{}:
		default:
		}
		return nil
	})

	ticker := channerics.NewTicker(ctx.Done(), s.cfg.HeartbeatInterval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pong:
			s.lastPongAt.Store(time.Now().UnixNano())
		case <-ticker:
			last := time.Unix(0, s.lastPongAt.Load())
			if time.Since(last) > s.cfg.HeartbeatTimeout {
				s.closeWith(CauseHeartbeatTimeout)
				return nil
			}
			err := s.sock.Write(ctx, func(c *websocket.Conn) error {
				return c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline))
			})
			if err != nil && err != ErrSockCongestion {
				s.closeWith(CauseTransientIO)
				return err
			}
		}
	}
}

func (s *Session) publishLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
			frame := s.mailbox.Swap(nil)
			if frame == nil {
				continue
			}
			if pendingAt := s.pendingSince.Load(); pendingAt != 0 {
				if time.Since(time.Unix(0, pendingAt)) > s.cfg.BackpressureGrace {
					s.closeWith(CauseBackpressure)
					return nil
				}
			}
			err := s.sock.Write(ctx, func(c *websocket.Conn) error {
				if err := c.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
					return err
				}
				return c.WriteMessage(websocket.BinaryMessage, *frame)
			})
			s.pendingSince.Store(0)
			if err != nil && err != ErrSockCongestion {
				s.closeWith(CauseTransientIO)
				return err
			}
			s.lastSentAt.Store(time.Now().UnixNano())
			if err == nil {
				s.updatesStartedOnce.Do(func() {
					_ = s.sendJSON(ctx, controlplane.NewUpdatesStarted(time.Now().Unix()))
				})
			}
		}
	}
}

func (s *Session) sendJSON(ctx context.Context, v any) error {
	return s.sock.Write(ctx, func(c *websocket.Conn) error {
		if err := c.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
			return err
		}
		return c.WriteJSON(v)
	})
}
