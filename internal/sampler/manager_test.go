package sampler

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skobkin/schedstat-top/internal/schedstat"
)

var errExhausted = errors.New("script exhausted")

// scriptedSource replays parsed schedstat texts with synthetic timestamps.
type scriptedSource struct {
	mu    sync.Mutex
	steps []scriptedStep
	next  int
}

type scriptedStep struct {
	text string
	at   time.Time
}

func (s *scriptedSource) Sample() (schedstat.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.steps) {
		return schedstat.Snapshot{}, errExhausted
	}
	step := s.steps[s.next]
	s.next++
	snap, err := schedstat.Parse(strings.NewReader(step.text))
	if err != nil {
		return schedstat.Snapshot{}, err
	}
	snap.Timestamp = step.at
	return snap, nil
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []Report
	err     error
}

func (r *recordingReporter) Report(report Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.reports = append(r.reports, report)
	return nil
}

func (r *recordingReporter) all() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Report(nil), r.reports...)
}

func TestManagerEndToEnd(t *testing.T) {
	t.Parallel()

	base := time.Now()
	source := &scriptedSource{steps: []scriptedStep{
		{text: "cpu0 1 2 3\ndomain0 mask 0 5\n", at: base},
		{text: "cpu0 5 6 10\ndomain0 mask 0 25\n", at: base.Add(time.Second)},
	}}
	reporter := &recordingReporter{}

	manager, err := NewManager(time.Millisecond, source, reporter, "run-1", discardLogger())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	err = manager.Run(context.Background())
	if !errors.Is(err, errExhausted) {
		t.Fatalf("expected Run to stop on exhausted source, got %v", err)
	}

	reports := reporter.all()
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	report := reports[0]
	if report.RunID != "run-1" {
		t.Fatalf("unexpected run id %q", report.RunID)
	}
	if report.ElapsedSeconds != 1 {
		t.Fatalf("unexpected elapsed %v", report.ElapsedSeconds)
	}
	assertRates(t, report.CPU.Rates, []float64{4, 4, 7})
	assertRates(t, report.Domain.Rates, []float64{20})

	latest, ok := manager.Latest()
	if !ok || latest.RunID != "run-1" {
		t.Fatalf("Latest did not return the report: %+v", latest)
	}
	stats := manager.Stats()
	if stats.Samples != 2 || stats.Reports != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestManagerKeepsObservedWidth(t *testing.T) {
	t.Parallel()

	base := time.Now()
	source := &scriptedSource{steps: []scriptedStep{
		{text: "cpu0 10 20 30\n", at: base},
		{text: "cpu0 12\n", at: base.Add(2 * time.Second)},
		{text: "cpu0 14 40 60\n", at: base.Add(4 * time.Second)},
	}}
	reporter := &recordingReporter{}

	manager, err := NewManager(time.Millisecond, source, reporter, "", discardLogger())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	if err := manager.Run(context.Background()); !errors.Is(err, errExhausted) {
		t.Fatalf("unexpected Run error %v", err)
	}

	reports := reporter.all()
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	assertRates(t, reports[0].CPU.Rates, []float64{1, 0, 0})
	if len(reports[0].CPU.Resets) != 2 {
		t.Fatalf("expected shrunk positions to be flagged, got %v", reports[0].CPU.Resets)
	}
	assertRates(t, reports[1].CPU.Rates, []float64{1, 20, 30})

	snap, ok := manager.LatestSnapshot()
	if !ok || len(snap.CPU) != 3 {
		t.Fatalf("unexpected latest snapshot %+v", snap)
	}
	if stats := manager.Stats(); stats.CPUResets != 2 {
		t.Fatalf("expected 2 cpu resets in stats, got %d", stats.CPUResets)
	}
}

func TestManagerInvalidIntervalIsFatal(t *testing.T) {
	t.Parallel()

	at := time.Now()
	source := &scriptedSource{steps: []scriptedStep{
		{text: "cpu0 1\n", at: at},
		{text: "cpu0 2\n", at: at},
	}}

	manager, err := NewManager(time.Millisecond, source, nil, "", discardLogger())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	if err := manager.Run(context.Background()); !errors.Is(err, schedstat.ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
}

func TestManagerMalformedRecordIsFatal(t *testing.T) {
	t.Parallel()

	base := time.Now()
	source := &scriptedSource{steps: []scriptedStep{
		{text: "cpu0 1\n", at: base},
		{text: "cpu0 oops\n", at: base.Add(time.Second)},
	}}

	manager, err := NewManager(time.Millisecond, source, nil, "", discardLogger())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	if err := manager.Run(context.Background()); !errors.Is(err, schedstat.ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
	if manager.Ready() {
		t.Fatalf("manager must not be ready without a report")
	}
}

func TestManagerReporterErrorIsFatal(t *testing.T) {
	t.Parallel()

	base := time.Now()
	source := &scriptedSource{steps: []scriptedStep{
		{text: "cpu0 1\n", at: base},
		{text: "cpu0 2\n", at: base.Add(time.Second)},
	}}
	reportErr := errors.New("stdout closed")

	manager, err := NewManager(time.Millisecond, source, &recordingReporter{err: reportErr}, "", discardLogger())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	if err := manager.Run(context.Background()); !errors.Is(err, reportErr) {
		t.Fatalf("expected reporter error, got %v", err)
	}
}

func TestManagerStopsOnCancel(t *testing.T) {
	t.Parallel()

	procRoot := t.TempDir()
	writeFile(t, filepath.Join(procRoot, schedstatFilename), "cpu0 1 2\n")

	reader, err := NewReader(procRoot, discardLogger())
	if err != nil {
		t.Fatalf("NewReader returned error: %v", err)
	}
	manager, err := NewManager(5*time.Millisecond, reader, nil, "", discardLogger())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- manager.Run(ctx)
	}()

	waitFor(t, 500*time.Millisecond, manager.Ready)

	ch, unsubscribe := manager.Subscribe()
	defer unsubscribe()
	first := awaitReport(t, ch)
	assertRates(t, first.CPU.Rates, []float64{0, 0})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error on cancel, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestManagerDropsOldestOnBackpressure(t *testing.T) {
	t.Parallel()

	manager, err := NewManager(time.Second, &scriptedSource{}, nil, "", discardLogger())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	ch, unsubscribe := manager.Subscribe()
	defer unsubscribe()

	manager.storeReport(Report{RunID: "a"})
	manager.storeReport(Report{RunID: "b"})

	if got := awaitReport(t, ch); got.RunID != "b" {
		t.Fatalf("expected newest report, got %q", got.RunID)
	}
}

func TestNewManagerValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewManager(0, &scriptedSource{}, nil, "", nil); err == nil {
		t.Fatalf("expected error for zero interval")
	}
	if _, err := NewManager(time.Second, nil, nil, "", nil); err == nil {
		t.Fatalf("expected error for nil source")
	}
}

func awaitReport(t *testing.T, ch <-chan Report) Report {
	t.Helper()
	select {
	case report, ok := <-ch:
		if !ok {
			t.Fatal("subscription channel closed unexpectedly")
		}
		return report
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for report")
		return Report{}
	}
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func assertRates(t *testing.T, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d rates, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if diff := got[i] - want[i]; diff < -0.0001 || diff > 0.0001 {
			t.Fatalf("rate[%d]: expected %.2f, got %.4f", i, want[i], got[i])
		}
	}
}
