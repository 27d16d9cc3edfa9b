// Package wire implements the binary position-frame codec: a tight
// concatenation of 28-byte node records, optionally zlib-wrapped above a
// size threshold. This is distinct from simproto's aligned in-memory
// NodeRecord layout — conversion happens only here.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"

	"github.com/jjohare/logseqSpringThing-sub000/internal/simproto"
)

// recordSize is the fixed per-node encoding: 4-byte index, 3x f32 position,
// 3x f32 velocity.
const recordSize = 28

// maxIngressRecords bounds an override frame to at most two records.
const maxIngressRecords = 2

// zlib magic bytes this codec recognizes on decode.
var zlibMagic = [3]byte{0x78, 0x01, 0x9C} // second byte also matches 0xDA, checked separately

// ErrMalformedFrame is returned for any frame whose length, after
// decompression, is not a positive multiple of recordSize.
var ErrMalformedFrame = errors.New("wire: malformed frame")

// ErrTooManyRecords is returned when an ingress frame carries more than
// maxIngressRecords.
var ErrTooManyRecords = errors.New("wire: too many records in ingress frame")

// IngressRecord is one decoded override: a client-proposed position and
// velocity for a node index. The codec does not check the index range or
// finiteness; GraphStore.EnqueueOverride rejects records that fail either.
type IngressRecord struct {
	Index    uint32
	Position simproto.Vec3
	Velocity simproto.Vec3
}

// Codec encodes egress frames (with compression above a configurable
// threshold) and decodes ingress override frames.
type Codec struct {
	CompressionEnabled   bool
	CompressionThreshold int
}

// NewCodec returns a Codec using the given settings.
func NewCodec(compressionEnabled bool, compressionThreshold int) Codec {
	return Codec{
		CompressionEnabled:   compressionEnabled,
		CompressionThreshold: compressionThreshold,
	}
}

// EncodeEgress packs records into the 28-byte-per-node wire layout,
// wrapping the result in a zlib stream if compression is enabled and the
// uncompressed payload exceeds CompressionThreshold.
func (c Codec) EncodeEgress(records []simproto.NodeRecord) ([]byte, error) {
	raw := make([]byte, len(records)*recordSize)
	for i, r := range records {
		putRecord(raw[i*recordSize:], r.Index, r.Position, r.Velocity)
	}

	if !c.CompressionEnabled || len(raw) <= c.CompressionThreshold {
		return raw, nil
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeIngress decodes an override frame: at most two 28-byte records,
// never compressed (client overrides are small by construction). A length
// that is not a positive multiple of recordSize, or that exceeds
// maxIngressRecords, is rejected without returning a partial result — the
// caller drops the frame and keeps the session open.
func DecodeIngress(payload []byte) ([]IngressRecord, error) {
	if len(payload) == 0 || len(payload)%recordSize != 0 {
		return nil, ErrMalformedFrame
	}
	n := len(payload) / recordSize
	if n > maxIngressRecords {
		return nil, ErrTooManyRecords
	}
	out := make([]IngressRecord, n)
	for i := 0; i < n; i++ {
		idx, pos, vel := getRecord(payload[i*recordSize:])
		out[i] = IngressRecord{Index: idx, Position: pos, Velocity: vel}
	}
	return out, nil
}

// DecodeEgress reverses EncodeEgress, auto-detecting a zlib-wrapped payload
// by its header bytes. Exported for tests and for any client-side tooling
// that needs to round-trip frames produced by this codec.
func DecodeEgress(payload []byte) ([]simproto.NodeRecord, error) {
	raw := payload
	if isZlib(payload) {
		zr, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, ErrMalformedFrame
		}
		defer zr.Close()
		decoded, err := io.ReadAll(zr)
		if err != nil {
			return nil, ErrMalformedFrame
		}
		raw = decoded
	}

	if len(raw) == 0 || len(raw)%recordSize != 0 {
		return nil, ErrMalformedFrame
	}
	n := len(raw) / recordSize
	out := make([]simproto.NodeRecord, n)
	for i := 0; i < n; i++ {
		idx, pos, vel := getRecord(raw[i*recordSize:])
		out[i] = simproto.NodeRecord{Index: idx, Position: pos, Velocity: vel, Flags: simproto.FlagActive}
	}
	return out, nil
}

// isZlib reports whether b starts with a zlib stream header this codec
// accepts: 0x78 followed by 0x01, 0x9C, or 0xDA.
func isZlib(b []byte) bool {
	if len(b) < 2 || b[0] != zlibMagic[0] {
		return false
	}
	switch b[1] {
	case 0x01, 0x9C, 0xDA:
		return true
	default:
		return false
	}
}

func putRecord(b []byte, index uint32, pos, vel simproto.Vec3) {
	binary.LittleEndian.PutUint32(b[0:], index)
	putVec3(b[4:], pos)
	putVec3(b[16:], vel)
}

func getRecord(b []byte) (uint32, simproto.Vec3, simproto.Vec3) {
	index := binary.LittleEndian.Uint32(b[0:])
	pos := getVec3(b[4:])
	vel := getVec3(b[16:])
	return index, pos, vel
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
