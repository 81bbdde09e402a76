// Package replayv1 defines the replay.v1 wire messages and the Replay gRPC
// service described by replay.proto. Messages encode themselves in the
// protobuf binary format; codec.go plugs them into grpc.
package replayv1

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every replay.v1 message
type Message interface {
	// AppendWire appends the protobuf encoding of the message to b
	AppendWire(b []byte) []byte
	// UnmarshalWire replaces the message with the decoding of b
	UnmarshalWire(b []byte) error
}

// Tensor is a dense float32 tensor in row-major order
type Tensor struct {
	Shape []int32   `json:"shape"`
	Data  []float32 `json:"data"`
}

func (x *Tensor) GetShape() []int32 {
	if x == nil {
		return nil
	}
	return x.Shape
}

func (x *Tensor) GetData() []float32 {
	if x == nil {
		return nil
	}
	return x.Data
}

func (x *Tensor) AppendWire(b []byte) []byte {
	if x == nil {
		return b
	}
	b = appendPackedInt32s(b, 1, x.Shape)
	return appendPackedFloats(b, 2, x.Data)
}

func (x *Tensor) UnmarshalWire(b []byte) error {
	*x = Tensor{}
	return rangeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeInt32s(typ, b, &x.Shape)
		case 2:
			return consumeFloats(typ, b, &x.Data)
		}
		return 0
	})
}

// Transition is one experience record
type Transition struct {
	State     *Tensor   `json:"state"`
	Action    []float32 `json:"action"`
	Reward    float64   `json:"reward"`
	NextState *Tensor   `json:"next_state"`
	Done      bool      `json:"done"`
}

func (x *Transition) AppendWire(b []byte) []byte {
	if x == nil {
		return b
	}
	if x.State != nil {
		b = appendMessageField(b, 1, x.State)
	}
	b = appendPackedFloats(b, 2, x.Action)
	b = appendDoubleField(b, 3, x.Reward)
	if x.NextState != nil {
		b = appendMessageField(b, 4, x.NextState)
	}
	return appendBoolField(b, 5, x.Done)
}

func (x *Transition) UnmarshalWire(b []byte) error {
	*x = Transition{}
	var nested error
	err := rangeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			state := new(Tensor)
			n := consumeMessage(typ, b, state, &nested)
			if n > 0 {
				x.State = state
			}
			return n
		case 2:
			return consumeFloats(typ, b, &x.Action)
		case 3:
			return consumeDouble(typ, b, &x.Reward)
		case 4:
			next := new(Tensor)
			n := consumeMessage(typ, b, next, &nested)
			if n > 0 {
				x.NextState = next
			}
			return n
		case 5:
			var v uint64
			n := consumeVarint(typ, b, &v)
			x.Done = protowire.DecodeBool(v)
			return n
		}
		return 0
	})
	if err != nil {
		return err
	}
	return nested
}

type PushRequest struct {
	Transitions []*Transition `json:"transitions"`
	// OneStep feeds each transition through the server's n-step window
	// instead of storing it as is
	OneStep bool `json:"one_step,omitempty"`
}

func (x *PushRequest) AppendWire(b []byte) []byte {
	for _, t := range x.Transitions {
		b = appendMessageField(b, 1, t)
	}
	return appendBoolField(b, 2, x.OneStep)
}

func (x *PushRequest) UnmarshalWire(b []byte) error {
	*x = PushRequest{}
	var nested error
	err := rangeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			t := new(Transition)
			n := consumeMessage(typ, b, t, &nested)
			if n > 0 {
				x.Transitions = append(x.Transitions, t)
			}
			return n
		case 2:
			var v uint64
			n := consumeVarint(typ, b, &v)
			x.OneStep = protowire.DecodeBool(v)
			return n
		}
		return 0
	})
	if err != nil {
		return err
	}
	return nested
}

type PushResponse struct {
	Stored uint32 `json:"stored"`
	Size   uint64 `json:"size"`
}

func (x *PushResponse) AppendWire(b []byte) []byte {
	b = appendVarintField(b, 1, uint64(x.Stored))
	return appendVarintField(b, 2, x.Size)
}

func (x *PushResponse) UnmarshalWire(b []byte) error {
	*x = PushResponse{}
	return rangeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			var v uint64
			n := consumeVarint(typ, b, &v)
			x.Stored = uint32(v)
			return n
		case 2:
			return consumeVarint(typ, b, &x.Size)
		}
		return 0
	})
}

type SampleRequest struct {
	BatchSize uint32 `json:"batch_size"`
	// Step selects the value of the server's beta schedule when Beta is unset
	Step int64    `json:"step,omitempty"`
	Beta *float64 `json:"beta,omitempty"`
}

func (x *SampleRequest) GetBeta() (float64, bool) {
	if x == nil || x.Beta == nil {
		return 0, false
	}
	return *x.Beta, true
}

func (x *SampleRequest) AppendWire(b []byte) []byte {
	b = appendVarintField(b, 1, uint64(x.BatchSize))
	b = appendVarintField(b, 2, uint64(x.Step))
	if x.Beta != nil {
		// optional: present even at zero
		b = protowire.AppendTag(b, 3, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(*x.Beta))
	}
	return b
}

func (x *SampleRequest) UnmarshalWire(b []byte) error {
	*x = SampleRequest{}
	return rangeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			var v uint64
			n := consumeVarint(typ, b, &v)
			x.BatchSize = uint32(v)
			return n
		case 2:
			var v uint64
			n := consumeVarint(typ, b, &v)
			x.Step = int64(v)
			return n
		case 3:
			var v float64
			n := consumeDouble(typ, b, &v)
			if n > 0 {
				x.Beta = &v
			}
			return n
		}
		return 0
	})
}

type SampleResponse struct {
	Indices     []int64       `json:"indices"`
	Weights     []float64     `json:"weights"`
	Transitions []*Transition `json:"transitions"`
}

func (x *SampleResponse) AppendWire(b []byte) []byte {
	b = appendPackedInt64s(b, 1, x.Indices)
	b = appendPackedDoubles(b, 2, x.Weights)
	for _, t := range x.Transitions {
		b = appendMessageField(b, 3, t)
	}
	return b
}

func (x *SampleResponse) UnmarshalWire(b []byte) error {
	*x = SampleResponse{}
	var nested error
	err := rangeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeInt64s(typ, b, &x.Indices)
		case 2:
			return consumeDoubles(typ, b, &x.Weights)
		case 3:
			t := new(Transition)
			n := consumeMessage(typ, b, t, &nested)
			if n > 0 {
				x.Transitions = append(x.Transitions, t)
			}
			return n
		}
		return 0
	})
	if err != nil {
		return err
	}
	return nested
}

type UpdatePrioritiesRequest struct {
	Indices []int64   `json:"indices"`
	Errors  []float64 `json:"errors"`
}

func (x *UpdatePrioritiesRequest) AppendWire(b []byte) []byte {
	b = appendPackedInt64s(b, 1, x.Indices)
	return appendPackedDoubles(b, 2, x.Errors)
}

func (x *UpdatePrioritiesRequest) UnmarshalWire(b []byte) error {
	*x = UpdatePrioritiesRequest{}
	return rangeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeInt64s(typ, b, &x.Indices)
		case 2:
			return consumeDoubles(typ, b, &x.Errors)
		}
		return 0
	})
}

type UpdatePrioritiesResponse struct {
	Updated     uint32  `json:"updated"`
	MaxPriority float64 `json:"max_priority"`
}

func (x *UpdatePrioritiesResponse) AppendWire(b []byte) []byte {
	b = appendVarintField(b, 1, uint64(x.Updated))
	return appendDoubleField(b, 2, x.MaxPriority)
}

func (x *UpdatePrioritiesResponse) UnmarshalWire(b []byte) error {
	*x = UpdatePrioritiesResponse{}
	return rangeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			var v uint64
			n := consumeVarint(typ, b, &v)
			x.Updated = uint32(v)
			return n
		case 2:
			return consumeDouble(typ, b, &x.MaxPriority)
		}
		return 0
	})
}

type GetStatsRequest struct{}

func (x *GetStatsRequest) AppendWire(b []byte) []byte {
	return b
}

func (x *GetStatsRequest) UnmarshalWire(b []byte) error {
	return rangeFields(b, func(protowire.Number, protowire.Type, []byte) int { return 0 })
}

type StatsResponse struct {
	Size         uint64  `json:"size"`
	Capacity     uint64  `json:"capacity"`
	WriteCursor  uint64  `json:"write_cursor"`
	MaxPriority  float64 `json:"max_priority"`
	TotalPushes  uint64  `json:"total_pushes"`
	NstepPending uint32  `json:"nstep_pending"`
	Compressed   bool    `json:"compressed"`
	StorageBytes uint64  `json:"storage_bytes"`
}

func (x *StatsResponse) AppendWire(b []byte) []byte {
	b = appendVarintField(b, 1, x.Size)
	b = appendVarintField(b, 2, x.Capacity)
	b = appendVarintField(b, 3, x.WriteCursor)
	b = appendDoubleField(b, 4, x.MaxPriority)
	b = appendVarintField(b, 5, x.TotalPushes)
	b = appendVarintField(b, 6, uint64(x.NstepPending))
	b = appendBoolField(b, 7, x.Compressed)
	return appendVarintField(b, 8, x.StorageBytes)
}

func (x *StatsResponse) UnmarshalWire(b []byte) error {
	*x = StatsResponse{}
	return rangeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		var v uint64
		switch num {
		case 1:
			return consumeVarint(typ, b, &x.Size)
		case 2:
			return consumeVarint(typ, b, &x.Capacity)
		case 3:
			return consumeVarint(typ, b, &x.WriteCursor)
		case 4:
			return consumeDouble(typ, b, &x.MaxPriority)
		case 5:
			return consumeVarint(typ, b, &x.TotalPushes)
		case 6:
			n := consumeVarint(typ, b, &v)
			x.NstepPending = uint32(v)
			return n
		case 7:
			n := consumeVarint(typ, b, &v)
			x.Compressed = protowire.DecodeBool(v)
			return n
		case 8:
			return consumeVarint(typ, b, &x.StorageBytes)
		}
		return 0
	})
}
