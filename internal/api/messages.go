package api

import (
	"github.com/skobkin/schedstat-top/internal/report"
	"github.com/skobkin/schedstat-top/internal/schedstat"
)

// HelloMessage is the initial payload sent on WebSocket connection.
type HelloMessage struct {
	Type          string              `json:"type"`
	IntervalMS    int                 `json:"interval_ms"`
	RunID         string              `json:"run_id"`
	FormatVersion int                 `json:"format_version"`
	Labels        map[string][]string `json:"labels"`
	Features      map[string]bool     `json:"features"`
}

// NewHelloMessage constructs a hello payload carrying both label tables.
func NewHelloMessage(intervalMS int, runID string, features map[string]bool) HelloMessage {
	return HelloMessage{
		Type:          "hello",
		IntervalMS:    intervalMS,
		RunID:         runID,
		FormatVersion: schedstat.SupportedVersion,
		Labels:        LabelTables(),
		Features:      features,
	}
}

// LabelTables returns the label table of every counter kind keyed by kind.
func LabelTables() map[string][]string {
	tables := make(map[string][]string, len(schedstat.Kinds))
	for _, kind := range schedstat.Kinds {
		tables[string(kind)] = schedstat.Labels(kind)
	}
	return tables
}

// RatesMessage wraps a labelled report for transport.
type RatesMessage struct {
	Type string `json:"type"`
	report.Document
}

// NewRatesMessage constructs a rates payload.
func NewRatesMessage(doc report.Document) RatesMessage {
	return RatesMessage{
		Type:     "rates",
		Document: doc,
	}
}
