package storage

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"
	"gorgonia.org/tensor"
)

// CodecVersion is the current record encoding version, stored in the first
// byte of every blob.
const CodecVersion = 1

const flagCompressed = 1 << 0

// Field numbers of the record payload
const (
	fieldStateShape     protowire.Number = 1
	fieldStateData      protowire.Number = 2
	fieldAction         protowire.Number = 3
	fieldReward         protowire.Number = 4
	fieldNextStateShape protowire.Number = 5
	fieldNextStateData  protowire.Number = 6
	fieldDone           protowire.Number = 7
)

// Codec converts experiences to and from a versioned binary blob. The blob
// starts with a two byte header (version, flags) followed by a protobuf
// wire-format payload, zstd compressed when the codec was built with
// compression on. Decode reads the flags, so any Codec decodes blobs
// written by any other.
//
// A Codec is safe for concurrent use.
type Codec struct {
	compress bool
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

// NewCodec creates a Codec
func NewCodec(compress bool) (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Codec{compress: compress, enc: enc, dec: dec}, nil
}

// Compressed reports whether Encode compresses its output
func (c *Codec) Compressed() bool {
	return c.compress
}

// Encode serializes exp
func (c *Codec) Encode(exp Experience) []byte {
	var payload []byte
	payload = appendTensor(payload, fieldStateShape, fieldStateData, exp.State)
	if len(exp.Action) > 0 {
		payload = protowire.AppendTag(payload, fieldAction, protowire.BytesType)
		payload = protowire.AppendBytes(payload, float32Bytes(exp.Action))
	}
	payload = protowire.AppendTag(payload, fieldReward, protowire.Fixed64Type)
	payload = protowire.AppendFixed64(payload, math.Float64bits(exp.Reward))
	payload = appendTensor(payload, fieldNextStateShape, fieldNextStateData, exp.NextState)
	payload = protowire.AppendTag(payload, fieldDone, protowire.VarintType)
	payload = protowire.AppendVarint(payload, protowire.EncodeBool(exp.Done))

	if !c.compress {
		return append([]byte{CodecVersion, 0}, payload...)
	}
	blob := make([]byte, 2, len(payload)/2+2)
	blob[0], blob[1] = CodecVersion, flagCompressed
	return c.enc.EncodeAll(payload, blob)
}

// Decode parses a blob produced by Encode
func (c *Codec) Decode(blob []byte) (Experience, error) {
	if len(blob) < 2 {
		return Experience{}, fmt.Errorf("%w: blob of %d bytes has no header", ErrCorruptRecord, len(blob))
	}
	if blob[0] != CodecVersion {
		return Experience{}, fmt.Errorf("%w: got version %d, want %d", ErrVersionMismatch, blob[0], CodecVersion)
	}
	payload := blob[2:]
	if blob[1]&flagCompressed != 0 {
		var err error
		payload, err = c.dec.DecodeAll(payload, nil)
		if err != nil {
			return Experience{}, fmt.Errorf("%w: decompress: %v", ErrCorruptRecord, err)
		}
	}

	var (
		exp                        Experience
		stateShape, nextStateShape []int
		stateData, nextStateData   []float32
	)
	for len(payload) > 0 {
		num, typ, n := protowire.ConsumeTag(payload)
		if n < 0 {
			return Experience{}, corrupt(n)
		}
		payload = payload[n:]

		switch {
		case num == fieldStateShape && typ == protowire.BytesType,
			num == fieldNextStateShape && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(payload)
			if n < 0 {
				return Experience{}, corrupt(n)
			}
			shape, err := unpackInts(b)
			if err != nil {
				return Experience{}, err
			}
			if num == fieldStateShape {
				stateShape = shape
			} else {
				nextStateShape = shape
			}
			payload = payload[n:]
		case num == fieldStateData && typ == protowire.BytesType,
			num == fieldNextStateData && typ == protowire.BytesType,
			num == fieldAction && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(payload)
			if n < 0 {
				return Experience{}, corrupt(n)
			}
			values, err := bytesFloat32(b)
			if err != nil {
				return Experience{}, err
			}
			switch num {
			case fieldStateData:
				stateData = values
			case fieldNextStateData:
				nextStateData = values
			default:
				exp.Action = values
			}
			payload = payload[n:]
		case num == fieldReward && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(payload)
			if n < 0 {
				return Experience{}, corrupt(n)
			}
			exp.Reward = math.Float64frombits(v)
			payload = payload[n:]
		case num == fieldDone && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(payload)
			if n < 0 {
				return Experience{}, corrupt(n)
			}
			exp.Done = protowire.DecodeBool(v)
			payload = payload[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, payload)
			if n < 0 {
				return Experience{}, corrupt(n)
			}
			payload = payload[n:]
		}
	}

	var err error
	if exp.State, err = buildTensor("state", stateShape, stateData); err != nil {
		return Experience{}, err
	}
	if exp.NextState, err = buildTensor("next_state", nextStateShape, nextStateData); err != nil {
		return Experience{}, err
	}
	return exp, nil
}

// Close releases the zstd encoder and decoder
func (c *Codec) Close() error {
	c.dec.Close()
	return c.enc.Close()
}

func appendTensor(b []byte, shapeField, dataField protowire.Number, d *tensor.Dense) []byte {
	if d == nil {
		return b
	}
	var packed []byte
	for _, dim := range d.Shape() {
		packed = protowire.AppendVarint(packed, uint64(dim))
	}
	b = protowire.AppendTag(b, shapeField, protowire.BytesType)
	b = protowire.AppendBytes(b, packed)
	b = protowire.AppendTag(b, dataField, protowire.BytesType)
	return protowire.AppendBytes(b, float32Bytes(TensorValues(d)))
}

func buildTensor(name string, shape []int, data []float32) (*tensor.Dense, error) {
	if shape == nil && data == nil {
		return nil, nil
	}
	d, err := ParseTensor(shape, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, name, err)
	}
	return d, nil
}

func unpackInts(b []byte) ([]int, error) {
	out := make([]int, 0, 4)
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, corrupt(n)
		}
		out = append(out, int(v))
		b = b[n:]
	}
	return out, nil
}

func float32Bytes(values []float32) []byte {
	b := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

func bytesFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: float32 payload of %d bytes", ErrCorruptRecord, len(b))
	}
	values := make([]float32, len(b)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return values, nil
}

func corrupt(n int) error {
	return fmt.Errorf("%w: %v", ErrCorruptRecord, protowire.ParseError(n))
}
