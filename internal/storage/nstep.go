package storage

import (
	"math"

	"github.com/gammazero/deque"
)

// nstepAggregator folds a sliding window of single-step transitions into
// n-step transitions. Once the window holds n transitions every push emits
// one aggregate; the window is never cleared, so episodes flow through it
// back to back.
type nstepAggregator struct {
	n      int
	gamma  float64
	clip   bool
	window *deque.Deque[Experience]
}

func newNStepAggregator(n int, gamma float64, clip bool) *nstepAggregator {
	return &nstepAggregator{
		n:      n,
		gamma:  gamma,
		clip:   clip,
		window: deque.New[Experience](n + 1),
	}
}

// push appends exp and returns the aggregate of the current window, if
// the window is full.
func (a *nstepAggregator) push(exp Experience) (Experience, bool) {
	a.window.PushBack(exp)
	if a.window.Len() > a.n {
		a.window.PopFront()
	}
	if a.window.Len() < a.n {
		return Experience{}, false
	}
	return a.fold(), true
}

// fold computes sum_i gamma^i * (1 - done_i) * reward_i over the window,
// oldest first, stopping at the first terminal transition: a return must
// not collect rewards from the following episode. The terminal
// transition's own reward is weighted by (1 - done) = 0.
func (a *nstepAggregator) fold() Experience {
	var (
		ret     float64
		hasDone bool
	)
	for i := 0; i < a.window.Len(); i++ {
		step := a.window.At(i)
		if step.Done {
			hasDone = true
			break
		}
		reward := step.Reward
		if a.clip {
			reward = clipReward(reward)
		}
		ret += math.Pow(a.gamma, float64(i)) * reward
	}

	first, last := a.window.Front(), a.window.Back()
	return Experience{
		State:     first.State,
		Action:    first.Action,
		Reward:    ret,
		NextState: last.NextState,
		Done:      hasDone,
	}
}

func (a *nstepAggregator) pending() int {
	return a.window.Len()
}

func (a *nstepAggregator) reset() {
	a.window.Clear()
}

func clipReward(r float64) float64 {
	return math.Max(-1, math.Min(1, r))
}
