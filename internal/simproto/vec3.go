// Package simproto defines the simulation's aligned in-memory primitives
// and their wire-format mirror. The two representations are kept distinct:
// the kernel operates on float32 triples aligned for accelerator access,
// the wire format packs the same triples tightly for transport. Conversion
// happens only at the Codec boundary.
package simproto

import "math"

// Vec3 is a 3-component float32 vector: a world-space position or velocity.
type Vec3 struct {
	X, Y, Z float32
}

// Add returns the component-wise sum.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns the component-wise difference v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Length returns the Euclidean norm.
func (v Vec3) Length() float32 {
	return float32(math.Sqrt(float64(v.X*v.X + v.Y*v.Y + v.Z*v.Z)))
}

// Finite reports whether every component is a finite float (no NaN/Inf).
func (v Vec3) Finite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

// Sanitize replaces any non-finite component with zero.
func (v Vec3) Sanitize() Vec3 {
	if !isFinite(v.X) {
		v.X = 0
	}
	if !isFinite(v.Y) {
		v.Y = 0
	}
	if !isFinite(v.Z) {
		v.Z = 0
	}
	return v
}

// Clamp restricts every component to [-bound, bound].
func (v Vec3) Clamp(bound float32) Vec3 {
	return Vec3{
		clampf(v.X, -bound, bound),
		clampf(v.Y, -bound, bound),
		clampf(v.Z, -bound, bound),
	}
}

// ClampLength scales v down so its length does not exceed max; leaves v
// unchanged if already within bound or zero-length.
func (v Vec3) ClampLength(max float32) Vec3 {
	l := v.Length()
	if l <= max || l == 0 {
		return v
	}
	return v.Scale(max / l)
}

func isFinite(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
