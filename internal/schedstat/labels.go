package schedstat

import (
	"fmt"
	"strconv"
)

// SupportedVersion is the schedstat format version the label tables describe.
const SupportedVersion = 15

// Kind selects one of the two counter vectors.
type Kind string

const (
	KindCPU    Kind = "cpu"
	KindDomain Kind = "domain"
)

// Kinds lists the vector kinds in reporting order.
var Kinds = []Kind{KindCPU, KindDomain}

// ParseKind converts a string into a Kind.
func ParseKind(value string) (Kind, error) {
	switch Kind(value) {
	case KindCPU, KindDomain:
		return Kind(value), nil
	default:
		return "", fmt.Errorf("unknown counter kind %q", value)
	}
}

// Index i names cpu field i+1 of a v15 cpu<N> line.
var cpuLabels = [...]string{
	"sched_yield()",
	"zeros",
	"schedule()",
	"sched->idle()",
	"try_to_wake_up()",
	"try_to_wakeup(local)",
	"run time",
	"wait time",
	"timeslices",
}

// Index i names domain field i+2 of a v15 domain<N> line (after the cpumask).
var domainLabels = [...]string{
	"IDLE lb_balanced",
	"IDLE lb_failed",
	"IDLE lb_imbalance",
	"IDLE lb_gained",
	"IDLE lb_hot_gained",
	"IDLE lb_nobusyq",
	"IDLE lb_nobusyg",
	"BUSY lb_count",
	"BUSY lb_balanced",
	"BUSY lb_failed",
	"BUSY lb_imbalance",
	"BUSY lb_gained",
	"BUSY lb_hot_gained",
	"BUSY lb_nobusyq",
	"BUSY lb_nobusyg",
	"NEW IDLE lb_count",
	"NEW IDLE lb_balanced",
	"NEW IDLE lb_failed",
	"NEW IDLE lb_imbalance",
	"NEW IDLE lb_gained",
	"NEW IDLE lb_hot_gained",
	"NEW IDLE lb_nobusyq",
	"NEW IDLE lb_nobusyg",
	"alb_count",
	"alb_failed",
	"alb_pushed",
	"sbe_count",
	"sbe_balanced",
	"sbe_pushed",
	"sbf_count",
	"sbf_balanced",
	"sbf_pushed",
	"ttwu_wake_remote",
	"ttwu_move_affine",
	"ttwu_move_balance",
}

func table(kind Kind) []string {
	switch kind {
	case KindCPU:
		return cpuLabels[:]
	case KindDomain:
		return domainLabels[:]
	default:
		return nil
	}
}

// Label returns the name of index i for kind. When no name is known it
// returns the bare index and false.
func Label(kind Kind, i int) (string, bool) {
	labels := table(kind)
	if i < 0 || i >= len(labels) {
		return strconv.Itoa(i), false
	}
	return labels[i], true
}

// Labels returns a copy of the label table for kind.
func Labels(kind Kind) []string {
	return append([]string(nil), table(kind)...)
}

// MaxLabelWidth returns the length of the longest label of kind.
func MaxLabelWidth(kind Kind) int {
	width := 0
	for _, label := range table(kind) {
		if len(label) > width {
			width = len(label)
		}
	}
	return width
}
