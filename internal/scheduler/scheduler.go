// Package scheduler drives the Integrator at an adaptive rate derived from
// the MotionEstimator, bounded by a configured [min_rate, max_rate] envelope.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jjohare/logseqSpringThing-sub000/internal/atomicfloat"
	"github.com/jjohare/logseqSpringThing-sub000/internal/graphstore"
	"github.com/jjohare/logseqSpringThing-sub000/internal/motion"
)

// Config holds the Scheduler's tunable rate envelope and smoothing factor.
type Config struct {
	MinRate         float64
	MaxRate         float64
	MotionThreshold float32
	MotionDamping   float64
}

// DefaultConfig returns the out-of-the-box tick-rate envelope and smoothing
// factor.
func DefaultConfig() Config {
	return Config{
		MinRate:         5,
		MaxRate:         60,
		MotionThreshold: 0.05,
		MotionDamping:   0.9,
	}
}

// Stepper is the single operation the Scheduler drives once per tick.
// Integrator.Step satisfies this.
type Stepper interface {
	Step() error
}

// Scheduler owns the tick loop. It never skips draining enqueued overrides
// (that responsibility lives in Stepper.Step, called every iteration
// regardless of rate) and it never blocks on network I/O itself.
type Scheduler struct {
	cfg       Config
	stepper   Stepper
	store     *graphstore.GraphStore
	estimator motion.Estimator
	log       *zap.Logger

	// rate is written only by Run's own goroutine but read by Rate() from
	// health-check and status-reporting goroutines, so it needs atomic
	// access rather than a plain float64.
	rate *atomicfloat.Float64

	onTick func(rate float64, motionFraction float64)
}

// New builds a Scheduler. onTick, if non-nil, is invoked after every
// successful tick with the observed rate and motion fraction, for metrics
// and the Broadcaster's "a tick just completed" trigger.
func New(
	cfg Config,
	stepper Stepper,
	store *graphstore.GraphStore,
	log *zap.Logger,
	onTick func(rate float64, motionFraction float64),
) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		stepper:   stepper,
		store:     store,
		estimator: motion.New(cfg.MotionThreshold),
		log:       log,
		rate:      atomicfloat.New(cfg.MinRate),
		onTick:    onTick,
	}
}

// Rate returns the current smoothed tick rate in Hz. Safe to call
// concurrently with Run.
func (s *Scheduler) Rate() float64 {
	return s.rate.Load()
}

// Run blocks, ticking until ctx is cancelled. A Stepper error is logged and
// the loop continues — a single bad tick never stops the process; only
// context cancellation (process shutdown) does.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.stepper.Step(); err != nil {
			if s.log != nil {
				s.log.Error("tick failed", zap.Error(err))
			}
		} else {
			motionFraction := s.estimator.Fraction(s.store.Snapshot())
			s.updateRate(motionFraction)
			if s.onTick != nil {
				s.onTick(s.rate.Load(), motionFraction)
			}
		}

		interval := time.Duration(float64(time.Second) / s.rate.Load())
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// updateRate applies exponential smoothing toward a motion-derived target
// rate:
//
//	r_target = min_rate + (max_rate - min_rate) * motion_fraction
//	r <- motion_damping * r_prev + (1 - motion_damping) * r_target
func (s *Scheduler) updateRate(motionFraction float64) {
	prev := s.rate.Load()
	target := s.cfg.MinRate + (s.cfg.MaxRate-s.cfg.MinRate)*motionFraction
	next := s.cfg.MotionDamping*prev + (1-s.cfg.MotionDamping)*target
	if next < s.cfg.MinRate {
		next = s.cfg.MinRate
	}
	if next > s.cfg.MaxRate {
		next = s.cfg.MaxRate
	}
	s.rate.Store(next)
}
