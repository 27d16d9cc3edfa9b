// Package motion implements the MotionEstimator: the fraction of active
// nodes whose speed exceeds a threshold, which drives the Scheduler's
// adaptive tick rate.
package motion

import "github.com/jjohare/logseqSpringThing-sub000/internal/simproto"

// Estimator computes motion_fraction from a snapshot of node velocities.
type Estimator struct {
	Threshold float32
}

// New returns an Estimator using threshold as motion_threshold.
func New(threshold float32) Estimator {
	return Estimator{Threshold: threshold}
}

// Fraction returns the share of active nodes whose speed exceeds the
// threshold, in [0,1]. A graph with no active nodes reports 0.
func (e Estimator) Fraction(records []simproto.NodeRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	active := 0
	moving := 0
	for _, r := range records {
		if !r.Active() {
			continue
		}
		active++
		if r.Velocity.Length() > e.Threshold {
			moving++
		}
	}
	if active == 0 {
		return 0
	}
	return float64(moving) / float64(active)
}
