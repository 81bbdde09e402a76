package storage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrioritizer_Priority(t *testing.T) {
	p := &prioritizer{alpha: 0.6, epsilon: 0.01, max: 1}

	assert.InDelta(t, math.Pow(2.01, 0.6), p.priority(2), 1e-12)
	assert.InDelta(t, math.Pow(2.01, 0.6), p.priority(-2), 1e-12)
	assert.InDelta(t, math.Pow(0.01, 0.6), p.priority(0), 1e-12)
}

func TestPrioritizer_MaxIsMonotone(t *testing.T) {
	p := &prioritizer{alpha: 1, epsilon: 0.01, max: 1}
	priorities := make([]float64, 4)

	require.NoError(t, p.update(priorities, 4, []int{0}, []float64{5}))
	assert.InDelta(t, 5.01, p.max, 1e-12)

	// Lowering the record that set the max leaves the max alone
	require.NoError(t, p.update(priorities, 4, []int{0}, []float64{0}))
	assert.InDelta(t, 5.01, p.max, 1e-12)
	assert.InDelta(t, 0.01, priorities[0], 1e-12)

	require.NoError(t, p.update(priorities, 4, []int{1, 2}, []float64{1, 9}))
	assert.InDelta(t, 9.01, p.max, 1e-12)
}

func TestPrioritizer_UpdateValidatesFirst(t *testing.T) {
	p := &prioritizer{alpha: 1, epsilon: 0.01, max: 1}
	priorities := []float64{1, 1, 1, 0}

	err := p.update(priorities, 3, []int{0, 3}, []float64{7, 7})
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.Equal(t, []float64{1, 1, 1, 0}, priorities)
	assert.Equal(t, 1.0, p.max)

	err = p.update(priorities, 3, []int{0, 1}, []float64{7})
	assert.ErrorIs(t, err, ErrLengthMismatch)
	assert.Equal(t, []float64{1, 1, 1, 0}, priorities)
}

func TestPrioritizer_DuplicateIndicesLastWins(t *testing.T) {
	p := &prioritizer{alpha: 1, epsilon: 0, max: 1}
	priorities := []float64{1, 1}

	require.NoError(t, p.update(priorities, 2, []int{1, 1}, []float64{4, 2}))
	assert.Equal(t, 2.0, priorities[1])
	assert.Equal(t, 4.0, p.max)
}

func TestPrioritizer_RejectsNonFiniteErrors(t *testing.T) {
	for _, tdError := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		p := &prioritizer{alpha: 1, epsilon: 0.01, max: 1}
		priorities := []float64{1, 1, 1}

		err := p.update(priorities, 3, []int{1, 0}, []float64{2, tdError})
		assert.ErrorIs(t, err, ErrNonFiniteError)
		assert.Equal(t, []float64{1, 1, 1}, priorities)
		assert.Equal(t, 1.0, p.max)
	}
}
