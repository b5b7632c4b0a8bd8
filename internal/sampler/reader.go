package sampler

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/skobkin/schedstat-top/internal/schedstat"
)

const schedstatFilename = "schedstat"

// Source produces one aggregated snapshot per call.
type Source interface {
	Sample() (schedstat.Snapshot, error)
}

// Reader reads scheduler statistics from <procRoot>/schedstat.
type Reader struct {
	path   string
	now    func() time.Time
	logger *slog.Logger
}

// NewReader constructs a Reader for the provided proc root (e.g. "/proc").
func NewReader(procRoot string, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if procRoot == "" {
		procRoot = "/proc"
	}

	path := filepath.Join(procRoot, schedstatFilename)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", schedstat.ErrSourceUnavailable, path, err)
	}

	return &Reader{
		path:   path,
		now:    time.Now,
		logger: logger.With("path", path),
	}, nil
}

// Path returns the file the reader samples.
func (r *Reader) Path() string {
	return r.path
}

// Sample reads and aggregates the schedstat file. The timestamp carries a
// monotonic clock reading so that elapsed time between samples stays positive.
func (r *Reader) Sample() (schedstat.Snapshot, error) {
	now := r.now()
	snap, err := schedstat.ParseFile(r.path)
	if err != nil {
		return schedstat.Snapshot{}, err
	}
	snap.Timestamp = now

	r.logger.Debug("schedstat read",
		"version", snap.Version,
		"cpu_records", snap.CPUs,
		"domain_records", snap.Domains,
	)
	return snap, nil
}
