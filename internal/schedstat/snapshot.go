// Package schedstat parses /proc/schedstat into aggregated counter vectors
// and computes per-second rates between two snapshots.
package schedstat

import "time"

// Counters is an ordered vector of aggregated counters indexed by category.
type Counters []uint64

// Grow returns c extended with zeros to at least n entries. Existing values
// are preserved and the vector is never truncated.
func (c Counters) Grow(n int) Counters {
	if n <= len(c) {
		return c
	}
	grown := make(Counters, n)
	copy(grown, c)
	return grown
}

// Add sums values position-wise into c starting at index 0, growing c first
// when values is wider.
func (c Counters) Add(values []uint64) Counters {
	c = c.Grow(len(values))
	for i, v := range values {
		c[i] += v
	}
	return c
}

// At returns the value at index i, or 0 when i is out of range.
func (c Counters) At(i int) uint64 {
	if i < 0 || i >= len(c) {
		return 0
	}
	return c[i]
}

// Clone returns an independent copy of c.
func (c Counters) Clone() Counters {
	if c == nil {
		return nil
	}
	out := make(Counters, len(c))
	copy(out, c)
	return out
}

// Snapshot is one aggregated reading of all scheduler counters.
type Snapshot struct {
	Timestamp time.Time `json:"ts" yaml:"ts"`
	Version   int       `json:"version" yaml:"version"`
	CPUs      int       `json:"cpus" yaml:"cpus"`
	Domains   int       `json:"domains" yaml:"domains"`
	CPU       Counters  `json:"cpu" yaml:"cpu"`
	Domain    Counters  `json:"domain" yaml:"domain"`
}

// Counters returns the vector for the given kind.
func (s Snapshot) Counters(kind Kind) Counters {
	switch kind {
	case KindCPU:
		return s.CPU
	case KindDomain:
		return s.Domain
	default:
		return nil
	}
}

// GrowFrom widens both vectors of s to at least the widths seen in prev, so
// a position once observed stays present in later snapshots.
func (s Snapshot) GrowFrom(prev Snapshot) Snapshot {
	s.CPU = s.CPU.Grow(len(prev.CPU))
	s.Domain = s.Domain.Grow(len(prev.Domain))
	return s
}
