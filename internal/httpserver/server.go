package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/skobkin/schedstat-top/internal/api"
	"github.com/skobkin/schedstat-top/internal/config"
	"github.com/skobkin/schedstat-top/internal/report"
	"github.com/skobkin/schedstat-top/internal/sampler"
	"github.com/skobkin/schedstat-top/internal/schedstat"
	"github.com/skobkin/schedstat-top/internal/version"
)

const readHeaderTimeout = 5 * time.Second

// ReportSource is the read side of the sampler consumed by the HTTP surface.
type ReportSource interface {
	Interval() time.Duration
	Latest() (sampler.Report, bool)
	LatestSnapshot() (schedstat.Snapshot, bool)
	Ready() bool
	Stats() sampler.Stats
	Subscribe() (<-chan sampler.Report, func())
}

// Server wraps the HTTP surface area of the application.
type Server struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	sampler    ReportSource
	runID      string

	maxWSClients int64
	wsActive     atomic.Int64
	wsTotal      atomic.Uint64
	wsRejected   atomic.Uint64
	wsSent       atomic.Uint64
	wsConnIDs    atomic.Uint64
	requestIDs   atomic.Uint64
}

// New assembles a Server with its handlers. samplerSource may be nil.
func New(cfg config.Config, logger *slog.Logger, samplerSource ReportSource, runID string) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		sampler: samplerSource,
		runID:   runID,
	}

	if cfg.WS.MaxClients > 0 {
		s.maxWSClients = int64(cfg.WS.MaxClients)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/api/readyz", s.handleReadyz)
	mux.HandleFunc("/version", s.handleVersion)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/labels", s.handleLabels)
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/rates", s.handleRates)
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/", s.staticHandler())

	if cfg.EnablePrometheus {
		s.registerPrometheus(mux)
	}
	if cfg.EnablePprof {
		registerPprof(mux)
	}

	handler := s.withRequestLogging(mux)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s
}

// Start begins serving HTTP until shutdown is requested.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("listener stopped")
	return nil
}

// Shutdown attempts a graceful shutdown within the supplied context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any, what string) {
	logger := s.loggerFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", "what", what, "err", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	info := s.readiness()
	statusCode := http.StatusOK
	if info.Status != "ok" {
		statusCode = http.StatusServiceUnavailable
	}
	s.writeJSON(w, r, statusCode, info, "readyz")
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	s.writeJSON(w, r, http.StatusOK, version.Current(), "version")
}

func (s *Server) handleLabels(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	labels := api.LabelTables()
	if value := r.URL.Query().Get("kind"); value != "" {
		kind, err := schedstat.ParseKind(value)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		labels = map[string][]string{string(kind): labels[string(kind)]}
	}
	s.writeJSON(w, r, http.StatusOK, labelsResponse{
		FormatVersion: schedstat.SupportedVersion,
		Labels:        labels,
	}, "labels")
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if s.sampler == nil {
		http.Error(w, "sampler unavailable", http.StatusServiceUnavailable)
		return
	}
	snap, ok := s.sampler.LatestSnapshot()
	if !ok {
		http.Error(w, "no snapshot available", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, r, http.StatusOK, snap, "snapshot")
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if s.sampler == nil {
		http.Error(w, "sampler unavailable", http.StatusServiceUnavailable)
		return
	}
	latest, ok := s.sampler.Latest()
	if !ok {
		http.Error(w, "no rates available", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, r, http.StatusOK, report.NewDocument(latest), "rates")
}

// handleWS streams reports to the client. The stream is push-only: a data
// frame from the client closes the connection with a policy violation.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	reqLogger := s.loggerFromContext(r.Context())
	if !allowGet(w, r) {
		return
	}
	if s.sampler == nil {
		http.Error(w, "sampler unavailable", http.StatusServiceUnavailable)
		return
	}

	if !s.reserveWS() {
		reqLogger.Warn("websocket rejected", "reason", "capacity", "max_clients", s.maxWSClients)
		http.Error(w, "websocket capacity reached", http.StatusServiceUnavailable)
		return
	}
	defer s.wsActive.Add(-1)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(s.cfg.AllowedOrigins),
	})
	if err != nil {
		reqLogger.Warn("websocket accept failed", "err", err)
		return
	}
	s.wsTotal.Add(1)
	logger := reqLogger.With("ws_id", s.wsConnIDs.Add(1))
	defer func() {
		if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
			logger.Debug("websocket close", "err", err)
		}
	}()

	ctx := conn.CloseRead(r.Context())

	reports, unsubscribe := s.sampler.Subscribe()
	defer unsubscribe()

	features := map[string]bool{
		"prometheus": s.cfg.EnablePrometheus,
		"resets":     true,
	}
	hello := api.NewHelloMessage(int(s.sampler.Interval()/time.Millisecond), s.runID, features)
	if err := s.writeWS(ctx, conn, hello); err != nil {
		logger.Debug("websocket hello failed", "err", err)
		return
	}
	logger.Info("ws subscribed")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("ws stream finished", "reason", ctx.Err())
			return
		case latest, ok := <-reports:
			if !ok {
				return
			}
			if err := s.writeWS(ctx, conn, api.NewRatesMessage(report.NewDocument(latest))); err != nil {
				if ctx.Err() == nil {
					logger.Warn("websocket write failed", "err", err)
				}
				return
			}
		}
	}
}

func (s *Server) writeWS(ctx context.Context, conn *websocket.Conn, payload any) error {
	if s.cfg.WS.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.WS.WriteTimeout)
		defer cancel()
	}
	if err := wsjson.Write(ctx, conn, payload); err != nil {
		return err
	}
	s.wsSent.Add(1)
	return nil
}

// reserveWS claims a client slot, undoing the claim when over capacity.
func (s *Server) reserveWS() bool {
	active := s.wsActive.Add(1)
	if s.maxWSClients > 0 && active > s.maxWSClients {
		s.wsActive.Add(-1)
		s.wsRejected.Add(1)
		return false
	}
	return true
}

func (s *Server) registerPrometheus(mux *http.ServeMux) {
	registry := prometheus.NewRegistry()
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "active_connections",
			Help:      "Current number of active WebSocket clients.",
		}, func() float64 {
			return float64(s.wsActive.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "connections_total",
			Help:      "Total WebSocket connections accepted since start.",
		}, func() float64 {
			return float64(s.wsTotal.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "rejected_total",
			Help:      "Total WebSocket connection attempts rejected due to capacity.",
		}, func() float64 {
			return float64(s.wsRejected.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "messages_sent_total",
			Help:      "Total WebSocket messages sent to clients.",
		}, func() float64 {
			return float64(s.wsSent.Load())
		}),
	}

	if schedCollector := newSchedstatCollector(s.sampler); schedCollector != nil {
		collectors = append(collectors, schedCollector)
	}

	for _, collector := range collectors {
		registry.MustRegister(collector)
	}

	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

func registerPprof(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

func originPatterns(origins []string) []string {
	for _, origin := range origins {
		if origin == "*" {
			return []string{"*"}
		}
	}
	dst := make([]string, len(origins))
	copy(dst, origins)
	return dst
}

func (s *Server) readiness() readyResponse {
	if s.sampler == nil {
		return readyResponse{Status: "degraded", Reason: "sampler_not_configured"}
	}

	stats := s.sampler.Stats()
	resp := readyResponse{
		Samples: stats.Samples,
		Reports: stats.Reports,
	}
	if s.sampler.Ready() {
		resp.Status = "ok"
		return resp
	}

	resp.Status = "initializing"
	resp.Reason = "waiting_for_samples"
	return resp
}

type readyResponse struct {
	Status  string `json:"status"`
	Samples uint64 `json:"samples"`
	Reports uint64 `json:"reports"`
	Reason  string `json:"reason,omitempty"`
}

type labelsResponse struct {
	FormatVersion int                 `json:"format_version"`
	Labels        map[string][]string `json:"labels"`
}
