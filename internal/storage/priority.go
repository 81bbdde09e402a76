package storage

import (
	"fmt"
	"math"
)

// prioritizer turns TD-errors into priorities and tracks the running
// maximum priority handed to newly inserted records.
//
// The maximum only ratchets upward. It is never recomputed from the stored
// priorities, so it stays high after the record that set it is overwritten.
type prioritizer struct {
	alpha   float64
	epsilon float64
	max     float64
}

// priority returns (|tdError| + epsilon)^alpha
func (p *prioritizer) priority(tdError float64) float64 {
	return math.Pow(math.Abs(tdError)+p.epsilon, p.alpha)
}

func (p *prioritizer) observe(priority float64) {
	if priority > p.max {
		p.max = priority
	}
}

// update validates the request against the populated size, then writes
// every priority. Nothing is written when validation fails.
func (p *prioritizer) update(priorities []float64, size int, indices []int, tdErrors []float64) error {
	if len(indices) != len(tdErrors) {
		return fmt.Errorf("%w: %d indices vs %d errors", ErrLengthMismatch, len(indices), len(tdErrors))
	}
	for i, index := range indices {
		if index < 0 || index >= size {
			return fmt.Errorf("%w: index %d, size %d", ErrIndexOutOfRange, index, size)
		}
		if e := tdErrors[i]; math.IsNaN(e) || math.IsInf(e, 0) {
			return fmt.Errorf("%w: got %v for index %d", ErrNonFiniteError, e, index)
		}
	}
	for i, index := range indices {
		priority := p.priority(tdErrors[i])
		priorities[index] = priority
		p.observe(priority)
	}
	return nil
}
