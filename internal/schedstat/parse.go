package schedstat

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const (
	cpuPrefix     = "cpu"
	domainPrefix  = "domain"
	versionPrefix = "version"

	// Fields after the domain token that are not counters: the cpumask and
	// one opaque field.
	domainSkipFields = 2

	maxLineBytes = 1 << 20
)

// Parse reads one complete schedstat text and aggregates every cpu and
// domain record into a Snapshot. The returned Snapshot has no timestamp.
func Parse(r io.Reader) (Snapshot, error) {
	var snap Snapshot

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		token := fields[0]
		switch {
		case token == versionPrefix:
			if len(fields) < 2 {
				continue
			}
			version, err := strconv.Atoi(fields[1])
			if err != nil {
				return Snapshot{}, &MalformedRecordError{Line: lineNo, Text: line, Field: fields[1], Err: err}
			}
			snap.Version = version
		case strings.HasPrefix(token, cpuPrefix):
			values, err := parseValues(fields[1:], lineNo, line)
			if err != nil {
				return Snapshot{}, err
			}
			snap.CPU = snap.CPU.Add(values)
			snap.CPUs++
		case strings.HasPrefix(token, domainPrefix):
			rest := fields[1:]
			if len(rest) <= domainSkipFields {
				snap.Domains++
				continue
			}
			values, err := parseValues(rest[domainSkipFields:], lineNo, line)
			if err != nil {
				return Snapshot{}, err
			}
			snap.Domain = snap.Domain.Add(values)
			snap.Domains++
		}
	}
	if err := scanner.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	return snap, nil
}

// ParseFile opens path and parses it. Open and read failures are reported
// as ErrSourceUnavailable.
func ParseFile(path string) (Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer file.Close()

	return Parse(file)
}

func parseValues(fields []string, lineNo int, line string) ([]uint64, error) {
	values := make([]uint64, len(fields))
	for i, field := range fields {
		value, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return nil, &MalformedRecordError{Line: lineNo, Text: line, Field: field, Err: err}
		}
		values[i] = value
	}
	return values, nil
}
