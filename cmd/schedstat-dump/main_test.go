package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/skobkin/schedstat-top/internal/schedstat"
)

func TestWriteTextNamesEachKind(t *testing.T) {
	t.Parallel()

	snap := schedstat.Snapshot{
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Version:   schedstat.SupportedVersion,
		CPUs:      1,
		Domains:   1,
		CPU:       schedstat.Counters{7, 0, 9},
		Domain:    schedstat.Counters{3},
	}

	var buf bytes.Buffer
	writeText(&buf, "/proc/schedstat", snap)
	lines := strings.Split(buf.String(), "\n")

	cpuHeader := indexOf(lines, "cpu")
	domainHeader := indexOf(lines, "domain")
	if cpuHeader < 0 || domainHeader < 0 || cpuHeader > domainHeader {
		t.Fatalf("expected cpu then domain headers, got:\n%s", buf.String())
	}
	if !strings.HasPrefix(lines[cpuHeader+1], "#0 sched_yield()") {
		t.Fatalf("unexpected first cpu line %q", lines[cpuHeader+1])
	}
	if !strings.HasPrefix(lines[domainHeader+1], "#0 IDLE lb_balanced") || !strings.HasSuffix(lines[domainHeader+1], " 3") {
		t.Fatalf("unexpected first domain line %q", lines[domainHeader+1])
	}
	if strings.Contains(buf.String(), "warning:") {
		t.Fatalf("unexpected version warning for supported version")
	}
}

func TestWriteTextWarnsOnOtherVersion(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	writeText(&buf, "/proc/schedstat", schedstat.Snapshot{Version: 16})
	if !strings.Contains(buf.String(), "warning: labels describe version 15") {
		t.Fatalf("expected version warning, got:\n%s", buf.String())
	}
}

func indexOf(lines []string, want string) int {
	for i, line := range lines {
		if line == want {
			return i
		}
	}
	return -1
}
