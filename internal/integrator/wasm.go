package integrator

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"

	"golang.org/x/exp/rand"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/jjohare/logseqSpringThing-sub000/internal/graphstore"
	"github.com/jjohare/logseqSpringThing-sub000/internal/simproto"
)

// AcceleratorBackend runs the force-integration kernel inside a
// wazero-hosted WebAssembly sandbox: a data-parallel compute kernel built
// separately (e.g. from Rust/C++ targeting wasm32) and loaded at startup,
// giving the same "accelerator" isolation and performance profile as a real
// GPU compute shader without a CGO dependency. The module is compiled once
// and its single instance reused across ticks, with calls serialized by a
// mutex, mirroring the embedded-WASM-engine pattern used for compute-heavy
// kernels elsewhere in this stack.
//
// Memory protocol: the host packs the node arrays, edge list and params
// into WASM linear memory as flat little-endian buffers, calls the
// exported "simulate_tick" function with (ptr,len) triples, and reads the
// (positions,velocities) result back from a (ptr<<32|len)-packed return
// value, matching the alloc/call/free convention of the pack's other
// wazero-hosted kernels.
type AcceleratorBackend struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	mod      api.Module
	mu       sync.Mutex
}

// NewAcceleratorBackend compiles and instantiates the kernel module at
// modulePath. An empty path, a missing file, or a compile/instantiate
// failure all surface as ErrBackendUnavailable so the Integrator falls
// back to the CPU backend uniformly.
func NewAcceleratorBackend(ctx context.Context, modulePath string) (*AcceleratorBackend, error) {
	if modulePath == "" {
		return nil, fmt.Errorf("%w: no accelerator module configured", ErrBackendUnavailable)
	}

	wasmBytes, err := os.ReadFile(modulePath)
	if err != nil {
		return nil, fmt.Errorf("%w: read module: %v", ErrBackendUnavailable, err)
	}

	r := wazero.NewRuntime(ctx)

	compiled, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("%w: compile module: %v", ErrBackendUnavailable, err)
	}

	mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("graph-kernel"))
	if err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("%w: instantiate module: %v", ErrBackendUnavailable, err)
	}

	if mod.ExportedFunction("simulate_tick") == nil ||
		mod.ExportedFunction("wasm_alloc") == nil ||
		mod.ExportedFunction("wasm_free") == nil {
		r.Close(ctx)
		return nil, fmt.Errorf("%w: module missing required exports", ErrBackendUnavailable)
	}

	return &AcceleratorBackend{
		runtime:  r,
		compiled: compiled,
		mod:      mod,
	}, nil
}

// Name identifies the backend for logging/metrics.
func (a *AcceleratorBackend) Name() string { return "wasm" }

// Close releases the WASM runtime's resources.
func (a *AcceleratorBackend) Close(ctx context.Context) error {
	return a.runtime.Close(ctx)
}

// Compute packs src and params into WASM linear memory, invokes the kernel,
// and unpacks the resulting positions/velocities into dst.
func (a *AcceleratorBackend) Compute(
	src graphstore.Generation,
	dst *graphstore.Buffer,
	params simproto.SimulationParams,
	_ *rand.Rand,
) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx := context.Background()
	nodeBuf := encodeNodes(src.Positions, src.Velocities, src.Mass, src.Flags)
	edgeBuf := encodeEdges(src.Edges)
	paramBuf := encodeParams(params)

	resultPositions, resultVelocities, err := a.callSimulateTick(ctx, nodeBuf, edgeBuf, paramBuf, len(src.Positions))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	copy(dst.Positions, resultPositions)
	copy(dst.Velocities, resultVelocities)
	return nil
}

// callSimulateTick implements the alloc/write/call/read/free protocol
// against the kernel's exported functions.
func (a *AcceleratorBackend) callSimulateTick(
	ctx context.Context,
	nodeBuf, edgeBuf, paramBuf []byte,
	n int,
) ([]simproto.Vec3, []simproto.Vec3, error) {
	alloc := a.mod.ExportedFunction("wasm_alloc")
	free := a.mod.ExportedFunction("wasm_free")
	tick := a.mod.ExportedFunction("simulate_tick")
	mem := a.mod.Memory()

	nodesPtr, err := writeBuf(ctx, mem, alloc, nodeBuf)
	if err != nil {
		return nil, nil, err
	}
	defer free.Call(ctx, nodesPtr, uint64(len(nodeBuf)))

	edgesPtr, err := writeBuf(ctx, mem, alloc, edgeBuf)
	if err != nil {
		return nil, nil, err
	}
	defer free.Call(ctx, edgesPtr, uint64(len(edgeBuf)))

	paramsPtr, err := writeBuf(ctx, mem, alloc, paramBuf)
	if err != nil {
		return nil, nil, err
	}
	defer free.Call(ctx, paramsPtr, uint64(len(paramBuf)))

	results, err := tick.Call(ctx,
		nodesPtr, uint64(len(nodeBuf)),
		edgesPtr, uint64(len(edgeBuf)),
		paramsPtr, uint64(len(paramBuf)))
	if err != nil {
		return nil, nil, fmt.Errorf("simulate_tick call: %w", err)
	}

	packed := results[0]
	resultPtr := uint32(packed >> 32)
	resultLen := uint32(packed & 0xFFFFFFFF)
	if resultPtr == 0 || resultLen == 0 {
		return nil, nil, fmt.Errorf("simulate_tick returned null result")
	}
	defer free.Call(ctx, uint64(resultPtr), uint64(resultLen))

	raw, ok := mem.Read(resultPtr, resultLen)
	if !ok {
		return nil, nil, fmt.Errorf("simulate_tick result out of bounds")
	}

	return decodeVectors(raw, n)
}

func writeBuf(ctx context.Context, mem api.Memory, alloc api.Function, buf []byte) (uint64, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	results, err := alloc.Call(ctx, uint64(len(buf)))
	if err != nil {
		return 0, fmt.Errorf("wasm_alloc: %w", err)
	}
	ptr := results[0]
	if !mem.Write(uint32(ptr), buf) {
		return 0, fmt.Errorf("wasm memory write out of range")
	}
	return ptr, nil
}

// encodeNodes packs positions, velocities, mass and flags as a flat
// little-endian buffer: per node, 3x f32 position, 3x f32 velocity, 1 byte
// mass, 1 byte flags (the kernel's own 16-byte-aligned layout is an
// internal concern of the compiled module; the host only needs a stable
// encode/decode pair, kept intentionally distinct from the 28-byte wire
// format).
func encodeNodes(positions, velocities []simproto.Vec3, mass, flags []uint8) []byte {
	n := len(positions)
	buf := make([]byte, n*26)
	for i := 0; i < n; i++ {
		off := i * 26
		putVec3(buf[off:], positions[i])
		putVec3(buf[off+12:], velocities[i])
		buf[off+24] = mass[i]
		buf[off+25] = flags[i]
	}
	return buf
}

func encodeEdges(edges []simproto.Edge) []byte {
	buf := make([]byte, len(edges)*12)
	for i, e := range edges {
		off := i * 12
		binary.LittleEndian.PutUint32(buf[off:], e.A)
		binary.LittleEndian.PutUint32(buf[off+4:], e.B)
		binary.LittleEndian.PutUint32(buf[off+8:], math.Float32bits(e.Weight))
	}
	return buf
}

func encodeParams(p simproto.SimulationParams) []byte {
	buf := make([]byte, 0, 40)
	put := func(f float32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
		buf = append(buf, b[:]...)
	}
	put(p.SpringStrength)
	put(p.RepulsionStrength)
	put(p.Damping)
	put(p.MaxVelocity)
	put(p.MaxRepulsionDistance)
	put(p.ViewportBounds)
	put(p.DT)
	put(p.BoundaryDamping)
	var flags uint32
	if p.EnableBounds {
		flags |= 1
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], flags)
	buf = append(buf, b[:]...)
	return buf
}

func decodeVectors(raw []byte, n int) ([]simproto.Vec3, []simproto.Vec3, error) {
	if len(raw) != n*24 {
		return nil, nil, fmt.Errorf("unexpected result length %d for %d nodes", len(raw), n)
	}
	positions := make([]simproto.Vec3, n)
	velocities := make([]simproto.Vec3, n)
	for i := 0; i < n; i++ {
		off := i * 24
		positions[i] = getVec3(raw[off:])
		velocities[i] = getVec3(raw[off+12:])
	}
	return positions, velocities, nil
}

func putVec3(b []byte, v simproto.Vec3) {
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(v.X))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(v.Y))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(v.Z))
}

func getVec3(b []byte) simproto.Vec3 {
	return simproto.Vec3{
		X: math.Float32frombits(binary.LittleEndian.Uint32(b[0:])),
		Y: math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
		Z: math.Float32frombits(binary.LittleEndian.Uint32(b[8:])),
	}
}
