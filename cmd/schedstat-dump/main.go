package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skobkin/schedstat-top/internal/sampler"
	"github.com/skobkin/schedstat-top/internal/schedstat"
)

type options struct {
	procRoot   string
	jsonOutput bool
	yamlOutput bool
}

func parseFlags() options {
	defaultProc := envOrDefault("APP_PROC_ROOT", "/proc")

	var opts options
	flag.StringVar(&opts.procRoot, "proc", defaultProc, "Path to procfs root")
	flag.BoolVar(&opts.jsonOutput, "json", false, "Emit the snapshot as JSON")
	flag.BoolVar(&opts.yamlOutput, "yaml", false, "Emit the snapshot as YAML")
	flag.Parse()
	return opts
}

func main() {
	opts := parseFlags()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	reader, err := sampler.NewReader(opts.procRoot, logger.With("component", "sampler_reader"))
	if err != nil {
		logger.Error("schedstat reader init failed", "err", err)
		os.Exit(1)
	}

	snap, err := reader.Sample()
	if err != nil {
		logger.Error("sample failed", "path", reader.Path(), "err", err)
		os.Exit(1)
	}

	switch {
	case opts.jsonOutput:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			logger.Error("encode snapshot", "err", err)
			os.Exit(1)
		}
	case opts.yamlOutput:
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			logger.Error("encode snapshot", "err", err)
			os.Exit(1)
		}
		if err := enc.Close(); err != nil {
			logger.Error("encode snapshot", "err", err)
			os.Exit(1)
		}
	default:
		writeText(os.Stdout, reader.Path(), snap)
	}
}

// writeText renders each counter vector under a header naming its kind.
func writeText(w io.Writer, path string, snap schedstat.Snapshot) {
	fmt.Fprintf(w, "Snapshot of %s at %s\n", path, snap.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "version %d, %d cpu records, %d domain records\n", snap.Version, snap.CPUs, snap.Domains)
	if snap.Version != 0 && snap.Version != schedstat.SupportedVersion {
		fmt.Fprintf(w, "warning: labels describe version %d\n", schedstat.SupportedVersion)
	}
	for _, kind := range schedstat.Kinds {
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.Repeat("-", 60))
		fmt.Fprintln(w, string(kind))
		width := schedstat.MaxLabelWidth(kind)
		for i, value := range snap.Counters(kind) {
			label, _ := schedstat.Label(kind, i)
			fmt.Fprintf(w, "#%d %-*s %d\n", i, width, label, value)
		}
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
