package integrator

import (
	"math"

	"golang.org/x/exp/rand"

	"github.com/jjohare/logseqSpringThing-sub000/internal/graphstore"
	"github.com/jjohare/logseqSpringThing-sub000/internal/simproto"
)

// minRepulsionDistance floors the divisor in the repulsion/spring terms so a
// coincident pair of nodes never produces a divide-by-near-zero blowup.
const minRepulsionDistance = 1e-4

// CPUBackend is the reference implementation of the one-tick force
// integration step, used for tests and as the fallback when the accelerator
// backend is unavailable. It is written for clarity over throughput;
// correctness here is the ground truth the accelerator backend is only
// required to converge toward, not match bit-for-bit.
type CPUBackend struct{}

// Name identifies the backend for logging/metrics.
func (CPUBackend) Name() string { return "cpu" }

// Compute applies SimulationParams for one tick to src, writing the result
// into dst. Output is always finite, velocity and position stay within
// their configured bounds, and inactive nodes never accumulate force.
func (CPUBackend) Compute(
	src graphstore.Generation,
	dst *graphstore.Buffer,
	params simproto.SimulationParams,
	rng *rand.Rand,
) error {
	n := len(src.Positions)
	if n == 0 {
		return nil
	}

	pos := make([]simproto.Vec3, n)
	vel := make([]simproto.Vec3, n)
	copy(pos, src.Positions)
	copy(vel, src.Velocities)

	iterations := params.IterationsPerTick
	if iterations < 1 {
		iterations = 1
	}

	for iter := 0; iter < iterations; iter++ {
		forces := make([]simproto.Vec3, n)

		accumulateRepulsion(pos, src.Mass, src.Flags, params, forces)
		accumulateSprings(pos, src.Mass, src.Flags, src.Edges, params, forces)
		if params.RandomizationEnabled {
			jitter(forces, src.Flags, params, rng)
		}

		for i := 0; i < n; i++ {
			if src.Flags[i]&simproto.FlagActive == 0 {
				// Inactive nodes hold their velocity at deactivation and
				// accumulate no forces.
				continue
			}
			mi := normMass(src.Mass[i])
			f := forces[i].Scale(params.DT)
			f = inertialCorrection(f, vel[i], mi)

			v := vel[i].Add(f).Scale(params.Damping)
			velCap := float32(2.0 / (0.5 + mi))
			if params.MaxVelocity < velCap {
				velCap = params.MaxVelocity
			}
			v = v.ClampLength(velCap)

			p := pos[i].Add(v.Scale(params.DT))
			if params.EnableBounds {
				b := params.ViewportBounds
				if absf(p.X) > 0.9*b || absf(p.Y) > 0.9*b || absf(p.Z) > 0.9*b {
					v = v.Scale(params.BoundaryDamping)
				}
				p = p.Clamp(b)
			}

			vel[i] = v.Sanitize()
			pos[i] = p.Sanitize()
		}
	}

	copy(dst.Positions, pos)
	copy(dst.Velocities, vel)
	return nil
}

// accumulateRepulsion adds the pairwise repulsion term to forces, for every
// pair of active nodes within max_repulsion_distance.
func accumulateRepulsion(
	pos []simproto.Vec3,
	mass []uint8,
	flags []uint8,
	params simproto.SimulationParams,
	forces []simproto.Vec3,
) {
	if params.RepulsionStrength == 0 {
		return
	}
	n := len(pos)
	for i := 0; i < n; i++ {
		if flags[i]&simproto.FlagActive == 0 {
			continue
		}
		mi := normMass(mass[i])
		for j := i + 1; j < n; j++ {
			if flags[j]&simproto.FlagActive == 0 {
				continue
			}
			d := pos[i].Sub(pos[j])
			dist := d.Length()
			if dist >= params.MaxRepulsionDistance {
				continue
			}
			dprime := maxf(dist, minRepulsionDistance)
			mj := normMass(mass[j])
			ratio := 1 - dist/params.MaxRepulsionDistance
			factor := params.RepulsionStrength * sqrt32(mi*mj) * ratio * ratio / (dprime * dprime)
			dir := d.Scale(1 / dprime)
			f := dir.Scale(factor)
			forces[i] = forces[i].Add(f)
			forces[j] = forces[j].Sub(f)
		}
	}
}

// accumulateSprings adds the attractive spring term along every edge whose
// endpoints are both connected and active.
func accumulateSprings(
	pos []simproto.Vec3,
	mass []uint8,
	flags []uint8,
	edges []simproto.Edge,
	params simproto.SimulationParams,
	forces []simproto.Vec3,
) {
	n := len(pos)
	for _, e := range edges {
		if int(e.A) >= n || int(e.B) >= n {
			continue
		}
		if flags[e.A]&simproto.FlagActive == 0 || flags[e.B]&simproto.FlagActive == 0 {
			continue
		}
		if flags[e.A]&simproto.FlagConnected == 0 || flags[e.B]&simproto.FlagConnected == 0 {
			continue
		}
		mi := normMass(mass[e.A])
		mj := normMass(mass[e.B])
		d := pos[e.B].Sub(pos[e.A])
		dist := d.Length()
		dprime := maxf(dist, minRepulsionDistance)
		restLen := 1 + 0.5*(mi+mj)
		factor := params.SpringStrength * (dist - restLen) * sqrt32(mi*mj)
		dir := d.Scale(1 / dprime)
		f := dir.Scale(factor)
		forces[e.A] = forces[e.A].Add(f)
		forces[e.B] = forces[e.B].Sub(f)
	}
}

// jitter adds a bounded stochastic term to each active node's force, enabled
// by the enableRandomization control message.
func jitter(forces []simproto.Vec3, flags []uint8, params simproto.SimulationParams, rng *rand.Rand) {
	mag := params.RandomizationStrength * params.RepulsionStrength
	if mag == 0 || rng == nil {
		return
	}
	for i := range forces {
		if flags[i]&simproto.FlagActive == 0 {
			continue
		}
		forces[i] = forces[i].Add(simproto.Vec3{
			X: float32(rng.Float64()*2-1) * mag,
			Y: float32(rng.Float64()*2-1) * mag,
			Z: float32(rng.Float64()*2-1) * mag,
		})
	}
}

// inertialCorrection damps the force component aligned with the node's
// existing velocity so repeated identical forces don't runaway-accelerate an
// already-moving node.
func inertialCorrection(f, v simproto.Vec3, mass float32) simproto.Vec3 {
	fl := f.Length()
	if fl == 0 {
		return f
	}
	fhat := f.Scale(1 / fl)
	dot := v.X*fhat.X + v.Y*fhat.Y + v.Z*fhat.Z
	if dot <= 0 {
		return f
	}
	return f.Sub(fhat.Scale(0.1 * mass * dot))
}

func normMass(raw uint8) float32 {
	return float32(raw) / 255.0
}

func sqrt32(x float32) float32 {
	if x < 0 {
		return 0
	}
	return float32(math.Sqrt(float64(x)))
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
