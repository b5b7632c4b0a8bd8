package sampler

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/skobkin/schedstat-top/internal/schedstat"
)

func TestReaderSample(t *testing.T) {
	t.Parallel()

	procRoot := t.TempDir()
	writeFile(t, filepath.Join(procRoot, schedstatFilename), "version 15\ntimestamp 1\ncpu0 1 2\ncpu1 3 4\ndomain0 ff 9 5 10\n")

	reader, err := NewReader(procRoot, discardLogger())
	if err != nil {
		t.Fatalf("NewReader returned error: %v", err)
	}

	snap, err := reader.Sample()
	if err != nil {
		t.Fatalf("Sample returned error: %v", err)
	}
	if snap.Timestamp.IsZero() {
		t.Fatalf("expected timestamp to be set")
	}
	if snap.Version != 15 {
		t.Fatalf("unexpected version %d", snap.Version)
	}
	if len(snap.CPU) != 2 || snap.CPU[0] != 4 || snap.CPU[1] != 6 {
		t.Fatalf("unexpected cpu counters %v", snap.CPU)
	}
	if len(snap.Domain) != 2 || snap.Domain[0] != 5 || snap.Domain[1] != 10 {
		t.Fatalf("unexpected domain counters %v", snap.Domain)
	}
}

func TestReaderMissingSource(t *testing.T) {
	t.Parallel()

	_, err := NewReader(t.TempDir(), discardLogger())
	if !errors.Is(err, schedstat.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestReaderSourceRemovedAfterInit(t *testing.T) {
	t.Parallel()

	procRoot := t.TempDir()
	path := filepath.Join(procRoot, schedstatFilename)
	writeFile(t, path, "cpu0 1\n")

	reader, err := NewReader(procRoot, discardLogger())
	if err != nil {
		t.Fatalf("NewReader returned error: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if _, err := reader.Sample(); !errors.Is(err, schedstat.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestReaderMalformedSource(t *testing.T) {
	t.Parallel()

	procRoot := t.TempDir()
	writeFile(t, filepath.Join(procRoot, schedstatFilename), "cpu0 1 two\n")

	reader, err := NewReader(procRoot, discardLogger())
	if err != nil {
		t.Fatalf("NewReader returned error: %v", err)
	}
	if _, err := reader.Sample(); !errors.Is(err, schedstat.ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("failed to create directories for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}
