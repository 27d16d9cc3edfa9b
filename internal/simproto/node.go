package simproto

// Flag bits for NodeRecord.Flags.
const (
	FlagActive    uint8 = 1 << 0
	FlagConnected uint8 = 1 << 1
)

// NodeRecord is one node's simulation state: the kernel's in-memory layout.
// Index is dense and stable within a session; ExternalID is carried here
// for convenience but never crosses the binary wire (see internal/wire) —
// only numeric indices do.
type NodeRecord struct {
	ExternalID string
	Index      uint32
	Position   Vec3
	Velocity   Vec3
	Mass       uint8
	Flags      uint8
}

// Active reports whether the node participates in force accumulation.
func (n NodeRecord) Active() bool {
	return n.Flags&FlagActive != 0
}

// Connected reports whether the node is eligible for spring forces.
func (n NodeRecord) Connected() bool {
	return n.Flags&FlagConnected != 0
}

// NormalizedMass maps Mass ∈ [1,255] onto [0,1] for the force kernel.
func (n NodeRecord) NormalizedMass() float32 {
	return float32(n.Mass) / 255.0
}

// Edge is an unordered pair of dense indices plus a positive weight.
type Edge struct {
	A, B   uint32
	Weight float32
}

// SimulationParams holds the tunable physical constants for one tick.
// Swapped atomically at tick boundaries (see internal/integrator and the
// design note on replacing mutable globals with an immutable snapshot).
type SimulationParams struct {
	SpringStrength        float32
	RepulsionStrength     float32
	Damping               float32
	MaxVelocity           float32
	MaxRepulsionDistance  float32
	ViewportBounds        float32
	DT                    float32
	IterationsPerTick     int
	EnableBounds          bool
	BoundaryDamping       float32
	RandomizationEnabled  bool
	RandomizationStrength float32
}

// DefaultSimulationParams returns the out-of-the-box physical constants;
// the force constants follow conventional force-directed layout defaults
// (cf. gonum/graph/layout/openord).
func DefaultSimulationParams() SimulationParams {
	return SimulationParams{
		SpringStrength:        0.2,
		RepulsionStrength:     1.0,
		Damping:               0.9,
		MaxVelocity:           5.0,
		MaxRepulsionDistance:  50.0,
		ViewportBounds:        100.0,
		DT:                    1.0,
		IterationsPerTick:     1,
		EnableBounds:          true,
		BoundaryDamping:       0.8,
		RandomizationEnabled:  false,
		RandomizationStrength: 0.05,
	}
}
