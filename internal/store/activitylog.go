package store

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/MontagueM/NeuronImperialProject/internal/activity"
)

// ActivityFile is the default name of the activity log.
const ActivityFile = "activity.txt"

// ActivityEntry is one block of the activity log.
type ActivityEntry struct {
	Histogram  activity.Histogram
	RuntimeMS  float64
	Population int
	ExciteProb float64
}

// ActivityLog appends histograms to a plain-text file. Each entry is a
// blank line pair, the bin times as a bracketed list, the counts as a
// bracketed list, and a parameter line:
//
//	[1.9, 3.8]
//	[1, 4]
//	RUNTIME_MS 200.0 TOTAL_NEURON_COUNT 6509 EXCITE_PROB 0.8
//
// It is safe for concurrent use within one process.
type ActivityLog struct {
	mu   sync.Mutex
	path string
}

// NewActivityLog returns a log writing to path. The file is created on
// first append.
func NewActivityLog(path string) *ActivityLog {
	return &ActivityLog{path: path}
}

// Path returns the log file path.
func (l *ActivityLog) Path() string { return l.path }

// Append writes one entry to the end of the file.
func (l *ActivityLog) Append(e ActivityEntry) error {
	if len(e.Histogram.Times) != len(e.Histogram.Counts) {
		return fmt.Errorf("histogram has %d times but %d counts", len(e.Histogram.Times), len(e.Histogram.Counts))
	}

	var b strings.Builder
	b.WriteString("\n\n")
	b.WriteString(formatFloats(e.Histogram.Times))
	b.WriteString("\n")
	b.WriteString(formatInts(e.Histogram.Counts))
	b.WriteString("\n")
	fmt.Fprintf(&b, "RUNTIME_MS %s TOTAL_NEURON_COUNT %d EXCITE_PROB %s",
		pyFloat(e.RuntimeMS), e.Population, pyFloat(e.ExciteProb))

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening activity log: %w", err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return fmt.Errorf("writing activity log: %w", err)
	}
	return f.Close()
}

// SaveRun appends the run's histogram and parameters.
func (l *ActivityLog) SaveRun(ctx context.Context, run RunRecord) error {
	return l.Append(ActivityEntry{
		Histogram:  run.Histogram,
		RuntimeMS:  run.HorizonMS,
		Population: run.Population,
		ExciteProb: run.ExcitatoryProb,
	})
}

// ReadActivityLog parses every entry in the file, oldest first. Lines
// that do not form a complete entry are skipped.
func ReadActivityLog(path string) ([]ActivityEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening activity log: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading activity log: %w", err)
	}

	entries := []ActivityEntry{}
	for i := 0; i+2 < len(lines); i++ {
		if !isList(lines[i]) || !isList(lines[i+1]) || !strings.HasPrefix(lines[i+2], "RUNTIME_MS") {
			continue
		}
		entry, err := parseEntry(lines[i], lines[i+1], lines[i+2])
		if err != nil {
			return nil, fmt.Errorf("activity log entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, entry)
		i += 2
	}
	return entries, nil
}

func parseEntry(timesLine, countsLine, paramLine string) (ActivityEntry, error) {
	times, err := parseList(timesLine)
	if err != nil {
		return ActivityEntry{}, fmt.Errorf("times: %w", err)
	}
	rawCounts, err := parseList(countsLine)
	if err != nil {
		return ActivityEntry{}, fmt.Errorf("counts: %w", err)
	}
	if len(times) != len(rawCounts) {
		return ActivityEntry{}, fmt.Errorf("%d times but %d counts", len(times), len(rawCounts))
	}
	counts := make([]int, len(rawCounts))
	for i, c := range rawCounts {
		counts[i] = int(math.Round(c))
	}

	entry := ActivityEntry{Histogram: activity.Histogram{Times: times, Counts: counts}}
	fields := strings.Fields(paramLine)
	for i := 0; i+1 < len(fields); i += 2 {
		key, value := fields[i], fields[i+1]
		switch key {
		case "RUNTIME_MS":
			entry.RuntimeMS, err = strconv.ParseFloat(value, 64)
		case "TOTAL_NEURON_COUNT", "TOTCOUNT":
			var n float64
			n, err = strconv.ParseFloat(value, 64)
			entry.Population = int(n)
		case "EXCITE_PROB":
			entry.ExciteProb, err = strconv.ParseFloat(value, 64)
		}
		if err != nil {
			return ActivityEntry{}, fmt.Errorf("parameter %s: %w", key, err)
		}
	}
	return entry, nil
}

func isList(line string) bool {
	return (strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]")) ||
		(strings.HasPrefix(line, "(") && strings.HasSuffix(line, ")"))
}

// parseList reads "[a, b, c]" or "(a, b, c)".
func parseList(line string) ([]float64, error) {
	inner := strings.TrimSpace(line[1 : len(line)-1])
	out := []float64{}
	if inner == "" {
		return out, nil
	}
	for _, part := range strings.Split(inner, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func formatFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = pyFloat(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// pyFloat formats v with the shortest round-tripping representation,
// switching to exponent form outside [1e-4, 1e16) and always marking the
// value as a float, so 200 is written as 200.0.
func pyFloat(v float64) string {
	abs := math.Abs(v)
	format := byte('f')
	if abs >= 1e16 || (abs != 0 && abs < 1e-4) {
		format = 'g'
	}
	s := strconv.FormatFloat(v, format, -1, 64)
	if strings.ContainsAny(s, ".eIN") {
		return s
	}
	return s + ".0"
}
