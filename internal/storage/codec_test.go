package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func newTestCodec(t *testing.T, compress bool) *Codec {
	t.Helper()
	codec, err := NewCodec(compress)
	require.NoError(t, err)
	t.Cleanup(func() { _ = codec.Close() })
	return codec
}

func TestCodec_RoundTrip(t *testing.T) {
	exp := Experience{
		State:     NewTensor([]int{2, 3}, []float32{1, 2, 3, 4, 5, 6}),
		Action:    []float32{0.25, -0.5},
		Reward:    -0.75,
		NextState: NewTensor([]int{2, 3}, []float32{6, 5, 4, 3, 2, 1}),
		Done:      true,
	}

	for _, compress := range []bool{false, true} {
		codec := newTestCodec(t, compress)
		assert.Equal(t, compress, codec.Compressed())

		blob := codec.Encode(exp)
		require.GreaterOrEqual(t, len(blob), 2)
		assert.Equal(t, byte(CodecVersion), blob[0])

		got, err := codec.Decode(blob)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 3}, TensorShape(got.State))
		assert.Equal(t, TensorValues(exp.State), TensorValues(got.State))
		assert.Equal(t, TensorValues(exp.NextState), TensorValues(got.NextState))
		assert.Equal(t, exp.Action, got.Action)
		assert.Equal(t, exp.Reward, got.Reward)
		assert.True(t, got.Done)
	}
}

func TestCodec_CompressedBlobsDecodeAnywhere(t *testing.T) {
	compressed := newTestCodec(t, true)
	raw := newTestCodec(t, false)

	state := make([]float32, 84*84)
	exp := Experience{
		State:     NewTensor([]int{84, 84}, state),
		Action:    []float32{1},
		NextState: NewTensor([]int{84, 84}, state),
	}

	blob := compressed.Encode(exp)
	assert.Less(t, len(blob), 4*len(state), "zeros should compress")

	got, err := raw.Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, []int{84, 84}, TensorShape(got.NextState))
}

func TestCodec_DecodeErrors(t *testing.T) {
	codec := newTestCodec(t, false)
	blob := codec.Encode(experience(1, 0.5, false))

	_, err := codec.Decode(blob[:1])
	assert.ErrorIs(t, err, ErrCorruptRecord)

	wrongVersion := append([]byte(nil), blob...)
	wrongVersion[0] = CodecVersion + 1
	_, err = codec.Decode(wrongVersion)
	assert.ErrorIs(t, err, ErrVersionMismatch)

	_, err = codec.Decode(blob[:len(blob)-3])
	assert.ErrorIs(t, err, ErrCorruptRecord)

	badZstd := append([]byte(nil), blob...)
	badZstd[1] = flagCompressed
	_, err = codec.Decode(badZstd)
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestCodec_SkipsUnknownFields(t *testing.T) {
	codec := newTestCodec(t, false)
	blob := codec.Encode(experience(3, 0.5, false))

	blob = protowire.AppendTag(blob, 99, protowire.VarintType)
	blob = protowire.AppendVarint(blob, 12345)

	got, err := codec.Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, []float32{3}, got.Action)
}

func TestCodec_ShapeDataMismatch(t *testing.T) {
	codec := newTestCodec(t, false)

	var payload []byte
	payload = protowire.AppendTag(payload, fieldStateShape, protowire.BytesType)
	payload = protowire.AppendBytes(payload, protowire.AppendVarint(nil, 3))
	payload = protowire.AppendTag(payload, fieldStateData, protowire.BytesType)
	payload = protowire.AppendBytes(payload, float32Bytes([]float32{1, 2}))

	_, err := codec.Decode(append([]byte{CodecVersion, 0}, payload...))
	assert.ErrorIs(t, err, ErrCorruptRecord)
}
