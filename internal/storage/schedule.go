package storage

// LinearSchedule interpolates linearly from Start to End over Steps steps
// and stays at End afterwards.
type LinearSchedule struct {
	Start float64
	End   float64
	Steps int64
}

// NewBetaSchedule returns the usual importance-sampling exponent schedule,
// annealed from initial to 1 over totalSteps.
func NewBetaSchedule(initial float64, totalSteps int64) LinearSchedule {
	return LinearSchedule{Start: initial, End: 1, Steps: totalSteps}
}

// Value returns the scheduled value at step
func (s LinearSchedule) Value(step int64) float64 {
	if s.Steps <= 0 || step >= s.Steps {
		return s.End
	}
	if step <= 0 {
		return s.Start
	}
	fraction := float64(step) / float64(s.Steps)
	return s.Start + (s.End-s.Start)*fraction
}
