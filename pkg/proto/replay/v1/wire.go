package replayv1

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field helpers for the proto3 encoding of the messages in replay.proto.
// Scalars at their zero value are omitted and repeated scalars are packed.
// The decoders accept packed and unpacked repeated fields alike and skip
// unknown fields.

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBoolField(b []byte, num protowire.Number, v bool) []byte {
	return appendVarintField(b, num, protowire.EncodeBool(v))
}

func appendDoubleField(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 && !math.Signbit(v) {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendMessageField(b []byte, num protowire.Number, m Message) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.AppendWire(nil))
}

func appendPackedInt32s(b []byte, num protowire.Number, vs []int32) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(int64(v)))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func appendPackedInt64s(b []byte, num protowire.Number, vs []int64) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func appendPackedFloats(b []byte, num protowire.Number, vs []float32) []byte {
	if len(vs) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(4*len(vs)))
	for _, v := range vs {
		b = protowire.AppendFixed32(b, math.Float32bits(v))
	}
	return b
}

func appendPackedDoubles(b []byte, num protowire.Number, vs []float64) []byte {
	if len(vs) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(8*len(vs)))
	for _, v := range vs {
		b = protowire.AppendFixed64(b, math.Float64bits(v))
	}
	return b
}

// rangeFields calls fn for every field of b. fn consumes the field value
// and returns its length, a negative protowire error code, or 0 to have
// the field skipped. A field value is never empty on the wire, so 0 is
// unambiguous.
func rangeFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m := fn(num, typ, b)
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

func consumeVarint(typ protowire.Type, b []byte, dst *uint64) int {
	if typ != protowire.VarintType {
		return 0
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return n
	}
	*dst = v
	return n
}

func consumeDouble(typ protowire.Type, b []byte, dst *float64) int {
	if typ != protowire.Fixed64Type {
		return 0
	}
	v, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return n
	}
	*dst = math.Float64frombits(v)
	return n
}

func consumeMessage(typ protowire.Type, b []byte, m Message, errp *error) int {
	if typ != protowire.BytesType {
		return 0
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n
	}
	if err := m.UnmarshalWire(v); err != nil {
		*errp = err
	}
	return n
}

// consumeRepeated decodes one element of a repeated scalar field, or a
// packed run of them, with the element decoder next.
func consumeRepeated(typ, elem protowire.Type, b []byte, next func(b []byte) int) int {
	switch typ {
	case elem:
		return next(b)
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n
		}
		for len(packed) > 0 {
			m := next(packed)
			if m < 0 {
				return m
			}
			packed = packed[m:]
		}
		return n
	}
	return 0
}

func consumeInt32s(typ protowire.Type, b []byte, dst *[]int32) int {
	return consumeRepeated(typ, protowire.VarintType, b, func(b []byte) int {
		v, n := protowire.ConsumeVarint(b)
		if n >= 0 {
			*dst = append(*dst, int32(v))
		}
		return n
	})
}

func consumeInt64s(typ protowire.Type, b []byte, dst *[]int64) int {
	return consumeRepeated(typ, protowire.VarintType, b, func(b []byte) int {
		v, n := protowire.ConsumeVarint(b)
		if n >= 0 {
			*dst = append(*dst, int64(v))
		}
		return n
	})
}

func consumeFloats(typ protowire.Type, b []byte, dst *[]float32) int {
	return consumeRepeated(typ, protowire.Fixed32Type, b, func(b []byte) int {
		v, n := protowire.ConsumeFixed32(b)
		if n >= 0 {
			*dst = append(*dst, math.Float32frombits(v))
		}
		return n
	})
}

func consumeDoubles(typ protowire.Type, b []byte, dst *[]float64) int {
	return consumeRepeated(typ, protowire.Fixed64Type, b, func(b []byte) int {
		v, n := protowire.ConsumeFixed64(b)
		if n >= 0 {
			*dst = append(*dst, math.Float64frombits(v))
		}
		return n
	})
}
