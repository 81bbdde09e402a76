package replayv1

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestWireCodec_Registered(t *testing.T) {
	codec := encoding.GetCodec(CodecName)
	require.NotNil(t, codec)
	assert.Equal(t, "proto", codec.Name())
	assert.IsType(t, wireCodec{}, codec)
}

func TestTensor_WireFormat(t *testing.T) {
	data := (&Tensor{Shape: []int32{2}, Data: []float32{1}}).AppendWire(nil)
	// packed shape (field 1) then packed little-endian floats (field 2)
	assert.Equal(t, []byte{0x0a, 0x01, 0x02, 0x12, 0x04, 0x00, 0x00, 0x80, 0x3f}, data)
}

func TestTensor_DecodesUnpackedFields(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, 4)
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(math.MaxUint64))
	b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(0.5))
	// unknown field
	b = protowire.AppendTag(b, 9, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("skip"))

	var tensor Tensor
	require.NoError(t, tensor.UnmarshalWire(b))
	assert.Equal(t, []int32{4, -1}, tensor.Shape)
	assert.Equal(t, []float32{0.5}, tensor.Data)
}

func TestSampleRequest_BetaPresence(t *testing.T) {
	codec := wireCodec{}

	beta := 0.0
	data, err := codec.Marshal(&SampleRequest{BatchSize: 32, Beta: &beta})
	require.NoError(t, err)

	var withBeta SampleRequest
	require.NoError(t, codec.Unmarshal(data, &withBeta))
	got, ok := withBeta.GetBeta()
	assert.True(t, ok)
	assert.Equal(t, 0.0, got)
	assert.Equal(t, uint32(32), withBeta.BatchSize)

	data, err = codec.Marshal(&SampleRequest{BatchSize: 8, Step: 100})
	require.NoError(t, err)

	var withoutBeta SampleRequest
	require.NoError(t, codec.Unmarshal(data, &withoutBeta))
	_, ok = withoutBeta.GetBeta()
	assert.False(t, ok)
	assert.Equal(t, int64(100), withoutBeta.Step)
}

func TestSampleResponse_RoundTrip(t *testing.T) {
	codec := wireCodec{}
	in := &SampleResponse{
		Indices: []int64{7, 0, 3},
		Weights: []float64{1, 0.25, math.NaN()},
		Transitions: []*Transition{
			{
				State:     &Tensor{Shape: []int32{2, 2}, Data: []float32{1, 2, 3, 4}},
				Action:    []float32{1},
				Reward:    math.NaN(),
				NextState: &Tensor{Shape: []int32{2, 2}, Data: []float32{5, 6, 7, 8}},
				Done:      true,
			},
			{
				State:     &Tensor{Shape: []int32{2, 2}, Data: []float32{0, 0, 0, 0}},
				Action:    []float32{0},
				Reward:    -1,
				NextState: &Tensor{Shape: []int32{2, 2}, Data: []float32{1, 1, 1, 1}},
			},
		},
	}

	data, err := codec.Marshal(in)
	require.NoError(t, err)

	var out SampleResponse
	require.NoError(t, codec.Unmarshal(data, &out))
	assert.Equal(t, in.Indices, out.Indices)
	assert.Equal(t, 0.25, out.Weights[1])
	assert.True(t, math.IsNaN(out.Weights[2]))
	require.Len(t, out.Transitions, 2)

	first := out.Transitions[0]
	assert.True(t, math.IsNaN(first.Reward))
	assert.True(t, first.Done)
	assert.Equal(t, in.Transitions[0].State, first.State)
	assert.Equal(t, in.Transitions[0].NextState, first.NextState)
	assert.Equal(t, in.Transitions[1], out.Transitions[1])
}

func TestStatsResponse_RoundTrip(t *testing.T) {
	in := &StatsResponse{
		Size:         10,
		Capacity:     100,
		WriteCursor:  10,
		MaxPriority:  2.5,
		TotalPushes:  10,
		NstepPending: 2,
		Compressed:   true,
		StorageBytes: 4096,
	}
	var out StatsResponse
	require.NoError(t, out.UnmarshalWire(in.AppendWire(nil)))
	assert.Equal(t, *in, out)
}

func TestWireCodec_RejectsTruncatedInput(t *testing.T) {
	data := (&UpdatePrioritiesRequest{Indices: []int64{1, 2}, Errors: []float64{0.5, 1}}).AppendWire(nil)

	var out UpdatePrioritiesRequest
	assert.Error(t, wireCodec{}.Unmarshal(data[:len(data)-3], &out))

	nested := (&PushRequest{Transitions: []*Transition{{Action: []float32{1, 2}}}}).AppendWire(nil)
	// Corrupt the inner packed length so the nested message fails
	nested[3] = 0x7f
	var push PushRequest
	assert.Error(t, wireCodec{}.Unmarshal(nested, &push))
}

func TestWireCodec_ProtoMessageFallback(t *testing.T) {
	codec := wireCodec{}
	data, err := codec.Marshal(wrapperspb.Double(1.5))
	require.NoError(t, err)

	var out wrapperspb.DoubleValue
	require.NoError(t, codec.Unmarshal(data, &out))
	assert.Equal(t, 1.5, out.GetValue())

	_, err = codec.Marshal(struct{}{})
	assert.Error(t, err)
}

func TestTensor_NilGetters(t *testing.T) {
	var tensor *Tensor
	assert.Nil(t, tensor.GetShape())
	assert.Nil(t, tensor.GetData())
}
