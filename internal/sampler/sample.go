package sampler

import (
	"time"

	"github.com/skobkin/schedstat-top/internal/schedstat"
)

// Report is the output of one sampling tick: per-second rates for both
// counter vectors over the elapsed window.
type Report struct {
	RunID          string          `json:"run_id" yaml:"run_id"`
	Timestamp      time.Time       `json:"ts" yaml:"ts"`
	ElapsedSeconds float64         `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	Version        int             `json:"version" yaml:"version"`
	CPUs           int             `json:"cpus" yaml:"cpus"`
	Domains        int             `json:"domains" yaml:"domains"`
	CPU            schedstat.Delta `json:"cpu" yaml:"cpu"`
	Domain         schedstat.Delta `json:"domain" yaml:"domain"`
}

// Delta returns the delta for the given kind.
func (r Report) Delta(kind schedstat.Kind) schedstat.Delta {
	switch kind {
	case schedstat.KindCPU:
		return r.CPU
	case schedstat.KindDomain:
		return r.Domain
	default:
		return schedstat.Delta{}
	}
}

// Stats summarises the sampler's activity since start.
type Stats struct {
	Samples        uint64
	Reports        uint64
	CPUResets      uint64
	DomainResets   uint64
	LastSampleTime time.Time
}
