package storage

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// sampler draws slot indices from the populated part of the ring. It owns
// its random source so that a seeded buffer samples reproducibly; callers
// serialize access to it.
type sampler struct {
	src rand.Source
	rng *rand.Rand
}

func newSampler(seed uint64) *sampler {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &sampler{src: src, rng: rand.New(src)}
}

// prioritized draws batchSize distinct indices with probability
// proportional to priorities and returns them with their normalized
// importance-sampling weights.
//
// Drawing without replacement uses sampleuv.Weighted, which keeps the
// remaining weights in a sum heap: each draw picks an index with
// probability proportional to its priority among the indices not taken
// yet, then zeroes it. It terminates after batchSize draws; when fewer
// than batchSize slots carry a positive priority it fails with
// ErrDegeneratePriorities instead of padding the batch.
//
// Weights use the full-population probability p_i = priority_i / sum, not
// the renormalized per-draw probability: w_i = (p_i * n)^-beta, divided by
// the batch maximum so the largest weight is exactly 1.
func (s *sampler) prioritized(priorities []float64, batchSize int, beta float64) ([]int, []float64, error) {
	n := len(priorities)
	total := floats.Sum(priorities)
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return nil, nil, fmt.Errorf("%w: priority mass is %v", ErrDegeneratePriorities, total)
	}

	draw := sampleuv.NewWeighted(priorities, s.src)
	taken := make(map[int]struct{}, batchSize)
	indices := make([]int, 0, batchSize)
	// Rounding in the sum heap can land a draw on a zero weight item;
	// such draws are discarded, within a bounded number of retries.
	for retries := 0; len(indices) < batchSize; {
		index, ok := draw.Take()
		if !ok || retries > batchSize {
			return nil, nil, fmt.Errorf("%w: only %d of %d slots have positive priority, need %d",
				ErrDegeneratePriorities, len(indices), n, batchSize)
		}
		if _, dup := taken[index]; dup || priorities[index] <= 0 {
			retries++
			continue
		}
		taken[index] = struct{}{}
		indices = append(indices, index)
	}

	weights := make([]float64, batchSize)
	for i, index := range indices {
		probability := priorities[index] / total
		weights[i] = math.Pow(probability*float64(n), -beta)
	}
	floats.Scale(1/floats.Max(weights), weights)
	return indices, weights, nil
}

// uniform draws batchSize distinct indices from [0, n) with a partial
// Fisher-Yates shuffle. Every weight is 1.
func (s *sampler) uniform(n, batchSize int) ([]int, []float64) {
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}
	for i := 0; i < batchSize; i++ {
		j := i + s.rng.IntN(n-i)
		pool[i], pool[j] = pool[j], pool[i]
	}

	weights := make([]float64, batchSize)
	for i := range weights {
		weights[i] = 1
	}
	return pool[:batchSize], weights
}
