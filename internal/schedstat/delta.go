package schedstat

import (
	"fmt"
	"math"
)

// Delta holds per-second rates aligned with the current counter vector.
// Resets lists indices whose counter went backwards; their rate is 0.
type Delta struct {
	Rates  []float64 `json:"rates" yaml:"rates"`
	Resets []int     `json:"resets,omitempty" yaml:"resets,omitempty"`
}

// Rates computes (current[i]-previous[i])/elapsedSeconds for every index of
// current, rounded to two decimals. Missing previous entries count as 0 and
// negative rates are reported as 0.
func Rates(previous, current Counters, elapsedSeconds float64) ([]float64, error) {
	delta, err := Diff(previous, current, elapsedSeconds)
	if err != nil {
		return nil, err
	}
	return delta.Rates, nil
}

// Diff is Rates plus the list of indices where a counter reset was detected.
func Diff(previous, current Counters, elapsedSeconds float64) (Delta, error) {
	if !(elapsedSeconds > 0) || math.IsInf(elapsedSeconds, 1) {
		return Delta{}, fmt.Errorf("%w: elapsed %v seconds", ErrInvalidInterval, elapsedSeconds)
	}

	delta := Delta{Rates: make([]float64, len(current))}
	for i, now := range current {
		before := previous.At(i)
		if now < before {
			delta.Resets = append(delta.Resets, i)
			continue
		}
		delta.Rates[i] = round2(float64(now-before) / elapsedSeconds)
	}
	return delta, nil
}

// DiffSnapshots computes the cpu and domain deltas between two snapshots.
func DiffSnapshots(previous, current Snapshot, elapsedSeconds float64) (cpu, domain Delta, err error) {
	cpu, err = Diff(previous.CPU, current.CPU, elapsedSeconds)
	if err != nil {
		return Delta{}, Delta{}, err
	}
	domain, err = Diff(previous.Domain, current.Domain, elapsedSeconds)
	if err != nil {
		return Delta{}, Delta{}, err
	}
	return cpu, domain, nil
}

// round2 rounds half to even at two decimals.
func round2(value float64) float64 {
	return math.RoundToEven(value*100) / 100
}
