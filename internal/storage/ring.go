package storage

import "fmt"

// slot holds one stored experience, either raw or as a codec blob
type slot struct {
	exp  Experience
	blob []byte
}

// ring is the fixed-capacity circular store. Slots [0, size) are populated
// and priorities[i] is meaningful only for those slots. Both slices are
// allocated once at construction and never grow.
type ring struct {
	slots      []slot
	priorities []float64
	cursor     int
	size       int
}

func newRing(capacity int) (*ring, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	return &ring{
		slots:      make([]slot, capacity),
		priorities: make([]float64, capacity),
	}, nil
}

func (r *ring) capacity() int {
	return len(r.slots)
}

// put overwrites the slot at the write cursor, assigns its priority and
// advances the cursor. It returns the index written.
func (r *ring) put(s slot, priority float64) int {
	index := r.cursor
	r.slots[index] = s
	r.priorities[index] = priority

	r.cursor = (r.cursor + 1) % len(r.slots)
	if r.size < len(r.slots) {
		r.size++
	}
	return index
}

// populated returns the priorities of the populated slots. The returned
// slice aliases the ring.
func (r *ring) populated() []float64 {
	return r.priorities[:r.size]
}

func (r *ring) storageBytes() uint64 {
	var total uint64
	for i := 0; i < r.size; i++ {
		s := r.slots[i]
		if s.blob != nil {
			total += uint64(len(s.blob))
			continue
		}
		total += uint64(4 * (len(TensorValues(s.exp.State)) + len(TensorValues(s.exp.NextState)) + len(s.exp.Action)))
	}
	return total
}

// reset clears every slot, keeping the allocated arrays
func (r *ring) reset() {
	for i := range r.slots {
		r.slots[i] = slot{}
		r.priorities[i] = 0
	}
	r.cursor, r.size = 0, 0
}
