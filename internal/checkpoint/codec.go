package checkpoint

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/cartridge/prioritized-replay/internal/storage"
)

// CurrentSchemaVersion is written as the first byte of every encoded
// snapshot.
const CurrentSchemaVersion = 1

const (
	fieldCapacity    protowire.Number = 1
	fieldStateShape  protowire.Number = 2
	fieldActionSize  protowire.Number = 3
	fieldCompressed  protowire.Number = 4
	fieldWriteCursor protowire.Number = 5
	fieldSize        protowire.Number = 6
	fieldTotalPushes protowire.Number = 7
	fieldMaxPriority protowire.Number = 8
	fieldPriorities  protowire.Number = 9
	fieldRecord      protowire.Number = 10
)

// EncodeSnapshot serializes snap. Records are stored as the buffer's own
// codec blobs and are not re-encoded.
func EncodeSnapshot(snap *storage.Snapshot) []byte {
	b := []byte{CurrentSchemaVersion}
	b = appendVarint(b, fieldCapacity, uint64(snap.Capacity))

	var shape []byte
	for _, dim := range snap.StateShape {
		shape = protowire.AppendVarint(shape, uint64(dim))
	}
	b = protowire.AppendTag(b, fieldStateShape, protowire.BytesType)
	b = protowire.AppendBytes(b, shape)

	b = appendVarint(b, fieldActionSize, uint64(snap.ActionSize))
	b = appendVarint(b, fieldCompressed, protowire.EncodeBool(snap.Compressed))
	b = appendVarint(b, fieldWriteCursor, uint64(snap.WriteCursor))
	b = appendVarint(b, fieldSize, uint64(snap.Size))
	b = appendVarint(b, fieldTotalPushes, snap.TotalPushes)
	b = protowire.AppendTag(b, fieldMaxPriority, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(snap.MaxPriority))

	priorities := make([]byte, 0, 8*len(snap.Priorities))
	for _, p := range snap.Priorities {
		priorities = protowire.AppendFixed64(priorities, math.Float64bits(p))
	}
	b = protowire.AppendTag(b, fieldPriorities, protowire.BytesType)
	b = protowire.AppendBytes(b, priorities)

	for _, record := range snap.Records {
		b = protowire.AppendTag(b, fieldRecord, protowire.BytesType)
		b = protowire.AppendBytes(b, record)
	}
	return b
}

// DecodeSnapshot parses data written by EncodeSnapshot and validates the
// result.
func DecodeSnapshot(data []byte) (*storage.Snapshot, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty checkpoint", storage.ErrCorruptRecord)
	}
	if data[0] != CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: checkpoint schema %d, want %d", storage.ErrVersionMismatch, data[0], CurrentSchemaVersion)
	}
	data = data[1:]

	snap := &storage.Snapshot{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, parseError(n)
		}
		data = data[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, parseError(n)
			}
			data = data[n:]
			switch num {
			case fieldCapacity:
				snap.Capacity = int(v)
			case fieldActionSize:
				snap.ActionSize = int(v)
			case fieldCompressed:
				snap.Compressed = protowire.DecodeBool(v)
			case fieldWriteCursor:
				snap.WriteCursor = int(v)
			case fieldSize:
				snap.Size = int(v)
			case fieldTotalPushes:
				snap.TotalPushes = v
			}
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return nil, parseError(n)
			}
			data = data[n:]
			if num == fieldMaxPriority {
				snap.MaxPriority = math.Float64frombits(v)
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, parseError(n)
			}
			data = data[n:]
			var err error
			switch num {
			case fieldStateShape:
				snap.StateShape, err = decodeShape(v)
			case fieldPriorities:
				snap.Priorities, err = decodePriorities(v)
			case fieldRecord:
				snap.Records = append(snap.Records, append([]byte(nil), v...))
			}
			if err != nil {
				return nil, err
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, parseError(n)
			}
			data = data[n:]
		}
	}

	if snap.Priorities == nil {
		snap.Priorities = []float64{}
	}
	if snap.Records == nil {
		snap.Records = [][]byte{}
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return snap, nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func decodeShape(b []byte) ([]int, error) {
	var shape []int
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, parseError(n)
		}
		shape = append(shape, int(v))
		b = b[n:]
	}
	return shape, nil
}

func decodePriorities(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("%w: priorities payload of %d bytes", storage.ErrCorruptRecord, len(b))
	}
	priorities := make([]float64, 0, len(b)/8)
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return nil, parseError(n)
		}
		priorities = append(priorities, math.Float64frombits(v))
		b = b[n:]
	}
	return priorities, nil
}

func parseError(n int) error {
	return fmt.Errorf("%w: %v", storage.ErrCorruptRecord, protowire.ParseError(n))
}
