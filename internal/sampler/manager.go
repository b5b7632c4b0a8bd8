package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skobkin/schedstat-top/internal/schedstat"
)

// Reporter consumes each tick's Report, typically rendering it to a console.
type Reporter interface {
	Report(Report) error
}

// Manager drives the sampling loop, caches the latest snapshot and report,
// and fans out reports to subscribers.
type Manager struct {
	interval time.Duration
	source   Source
	reporter Reporter
	runID    string
	logger   *slog.Logger

	mu           sync.RWMutex
	latest       *Report
	latestSnap   *schedstat.Snapshot
	stats        Stats
	subscribers  map[*subscriber]struct{}
	warnedFormat bool
}

// NewManager builds a Manager around a snapshot source. reporter may be nil.
func NewManager(interval time.Duration, source Source, reporter Reporter, runID string, logger *slog.Logger) (*Manager, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be > 0")
	}
	if source == nil {
		return nil, fmt.Errorf("source must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		interval:    interval,
		source:      source,
		reporter:    reporter,
		runID:       runID,
		logger:      logger.With("component", "sampler_manager"),
		subscribers: make(map[*subscriber]struct{}),
	}, nil
}

// Interval returns the configured sampling interval.
func (m *Manager) Interval() time.Duration {
	return m.interval
}

// Run samples until the context is canceled or a fatal error occurs.
// Source, parse and interval errors are fatal and returned as-is.
func (m *Manager) Run(ctx context.Context) error {
	prev, err := m.source.Sample()
	if err != nil {
		return fmt.Errorf("initial sample: %w", err)
	}
	m.storeSnapshot(prev)
	m.logger.Info("sampler started", "interval", m.interval, "version", prev.Version)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("sampler stopping", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			next, err := m.step(prev)
			if err != nil {
				return err
			}
			prev = next
		}
	}
}

// step samples once and reports rates against prev. It returns the snapshot
// that becomes prev for the following tick.
func (m *Manager) step(prev schedstat.Snapshot) (schedstat.Snapshot, error) {
	cur, err := m.source.Sample()
	if err != nil {
		return schedstat.Snapshot{}, fmt.Errorf("sample: %w", err)
	}
	cur = cur.GrowFrom(prev)
	m.storeSnapshot(cur)

	elapsed := cur.Timestamp.Sub(prev.Timestamp).Seconds()
	cpu, domain, err := schedstat.DiffSnapshots(prev, cur, elapsed)
	if err != nil {
		return schedstat.Snapshot{}, fmt.Errorf("diff: %w", err)
	}

	report := Report{
		RunID:          m.runID,
		Timestamp:      cur.Timestamp.UTC(),
		ElapsedSeconds: elapsed,
		Version:        cur.Version,
		CPUs:           cur.CPUs,
		Domains:        cur.Domains,
		CPU:            cpu,
		Domain:         domain,
	}

	if len(cpu.Resets) > 0 || len(domain.Resets) > 0 {
		m.logger.Debug("counter reset detected", "cpu_indices", cpu.Resets, "domain_indices", domain.Resets)
	}

	if m.reporter != nil {
		if err := m.reporter.Report(report); err != nil {
			return schedstat.Snapshot{}, fmt.Errorf("report: %w", err)
		}
	}
	m.storeReport(report)

	return cur, nil
}

// Latest returns the most recent report.
func (m *Manager) Latest() (Report, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return Report{}, false
	}
	return *m.latest, true
}

// LatestSnapshot returns the most recent aggregated snapshot.
func (m *Manager) LatestSnapshot() (schedstat.Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latestSnap == nil {
		return schedstat.Snapshot{}, false
	}
	return *m.latestSnap, true
}

// Ready reports whether at least one report has been produced.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest != nil
}

// Stats returns a copy of the sampler counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// Subscribe registers a listener for new reports. The latest report, if any,
// is delivered immediately.
func (m *Manager) Subscribe() (<-chan Report, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub := newSubscriber()
	m.subscribers[sub] = struct{}{}
	if m.latest != nil {
		sub.send(*m.latest)
	}

	unsubscribe := func() {
		m.removeSubscriber(sub)
	}
	return sub.channel(), unsubscribe
}

func (m *Manager) storeSnapshot(snap schedstat.Snapshot) {
	snap.CPU = snap.CPU.Clone()
	snap.Domain = snap.Domain.Clone()

	m.mu.Lock()
	m.latestSnap = &snap
	m.stats.Samples++
	m.stats.LastSampleTime = snap.Timestamp
	warn := !m.warnedFormat && snap.Version != 0 && snap.Version != schedstat.SupportedVersion
	if warn {
		m.warnedFormat = true
	}
	m.mu.Unlock()

	if warn {
		m.logger.Warn("unsupported schedstat version, labels may be misaligned",
			"version", snap.Version,
			"supported", schedstat.SupportedVersion,
		)
	}
}

func (m *Manager) storeReport(report Report) {
	m.mu.Lock()
	m.latest = &report
	m.stats.Reports++
	m.stats.CPUResets += uint64(len(report.CPU.Resets))
	m.stats.DomainResets += uint64(len(report.Domain.Resets))

	targetSubs := make([]*subscriber, 0, len(m.subscribers))
	for sub := range m.subscribers {
		targetSubs = append(targetSubs, sub)
	}
	m.mu.Unlock()

	for _, sub := range targetSubs {
		sub.send(report)
	}
}

func (m *Manager) removeSubscriber(sub *subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers, sub)
	sub.close()
}

type subscriber struct {
	ch     chan Report
	mu     sync.Mutex
	closed bool
}

func newSubscriber() *subscriber {
	return &subscriber{
		ch: make(chan Report, 1),
	}
}

func (s *subscriber) channel() <-chan Report {
	return s.ch
}

func (s *subscriber) send(report Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- report:
		return
	default:
		// Drop oldest to make room for the new report.
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- report:
		default:
		}
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	close(s.ch)
	s.closed = true
}
