// Package report renders sampler reports for the console.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skobkin/schedstat-top/internal/sampler"
	"github.com/skobkin/schedstat-top/internal/schedstat"
)

// Format selects how reports are rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

const rateWidth = 20

// ParseFormat validates a format name.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format %q", value)
	}
}

// Writer renders each report to an io.Writer. It implements sampler.Reporter.
type Writer struct {
	mu         sync.Mutex
	out        io.Writer
	format     Format
	showResets bool
	yamlEnc    *yaml.Encoder
}

// NewWriter constructs a Writer. showResets marks counters that went
// backwards in text output; other formats always carry the reset flag.
func NewWriter(out io.Writer, format Format, showResets bool) (*Writer, error) {
	if out == nil {
		return nil, fmt.Errorf("output writer must not be nil")
	}
	w := &Writer{
		out:        out,
		format:     format,
		showResets: showResets,
	}
	switch format {
	case FormatText, FormatJSON:
	case FormatYAML:
		w.yamlEnc = yaml.NewEncoder(out)
		w.yamlEnc.SetIndent(2)
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
	return w, nil
}

// Report renders one report.
func (w *Writer) Report(r sampler.Report) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.format {
	case FormatJSON:
		return json.NewEncoder(w.out).Encode(NewDocument(r))
	case FormatYAML:
		return w.yamlEnc.Encode(NewDocument(r))
	default:
		var buf bytes.Buffer
		for _, kind := range schedstat.Kinds {
			writeText(&buf, kind, r.Delta(kind), w.showResets)
		}
		_, err := w.out.Write(buf.Bytes())
		return err
	}
}

// Close finishes the output stream.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.yamlEnc != nil {
		return w.yamlEnc.Close()
	}
	return nil
}

func writeText(buf *bytes.Buffer, kind schedstat.Kind, delta schedstat.Delta, showResets bool) {
	width := schedstat.MaxLabelWidth(kind)
	reset := resetSet(delta.Resets)

	buf.WriteString(string(kind))
	buf.WriteByte('\n')
	for i, rate := range delta.Rates {
		label, _ := schedstat.Label(kind, i)
		fmt.Fprintf(buf, "#%d %-*s %-*s", i, width, label, rateWidth, FormatRate(rate))
		if showResets && reset[i] {
			buf.WriteString(" reset")
		}
		buf.WriteByte('\n')
	}
}

// FormatRate renders a rate with two decimals.
func FormatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', 2, 64)
}

func resetSet(indices []int) map[int]bool {
	if len(indices) == 0 {
		return nil
	}
	set := make(map[int]bool, len(indices))
	for _, idx := range indices {
		set[idx] = true
	}
	return set
}

// Entry is one labelled rate.
type Entry struct {
	Index int     `json:"index" yaml:"index"`
	Label string  `json:"label" yaml:"label"`
	Rate  float64 `json:"rate" yaml:"rate"`
	Reset bool    `json:"reset,omitempty" yaml:"reset,omitempty"`
}

// Document is the structured form of a report used by json and yaml output
// and by the HTTP API.
type Document struct {
	RunID          string    `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Timestamp      time.Time `json:"ts" yaml:"ts"`
	ElapsedSeconds float64   `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	Version        int       `json:"version" yaml:"version"`
	CPUs           int       `json:"cpus" yaml:"cpus"`
	Domains        int       `json:"domains" yaml:"domains"`
	CPU            []Entry   `json:"cpu" yaml:"cpu"`
	Domain         []Entry   `json:"domain" yaml:"domain"`
}

// NewDocument converts a report into its labelled structured form.
func NewDocument(r sampler.Report) Document {
	return Document{
		RunID:          r.RunID,
		Timestamp:      r.Timestamp,
		ElapsedSeconds: r.ElapsedSeconds,
		Version:        r.Version,
		CPUs:           r.CPUs,
		Domains:        r.Domains,
		CPU:            entries(schedstat.KindCPU, r.CPU),
		Domain:         entries(schedstat.KindDomain, r.Domain),
	}
}

func entries(kind schedstat.Kind, delta schedstat.Delta) []Entry {
	reset := resetSet(delta.Resets)
	out := make([]Entry, len(delta.Rates))
	for i, rate := range delta.Rates {
		label, _ := schedstat.Label(kind, i)
		out[i] = Entry{Index: i, Label: label, Rate: rate, Reset: reset[i]}
	}
	return out
}
