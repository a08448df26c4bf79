// Package report renders anomaly findings for humans and machines.
package report

import (
	"encoding/json"
	"fmt"
	goio "io"
	"os"

	"github.com/fatih/color"

	"github.com/flowsentry/flowsentry/pkg/events"
)

// Report is one anomaly finding, ready for display or persistence.
type Report struct {
	Event       events.NetworkEvent `json:"event"`
	Score       float64             `json:"score"`
	EventNumber int                 `json:"event_number"`
}

// Severity buckets a score for display.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// SeverityFor maps a score to its display tier.
func SeverityFor(score float64) Severity {
	switch {
	case score >= 0.8:
		return SeverityHigh
	case score >= 0.7:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Console prints findings and session status to a terminal.
type Console struct {
	out goio.Writer

	tag    *color.Color
	high   *color.Color
	medium *color.Color
	low    *color.Color
	active *color.Color
	idle   *color.Color
	bold   *color.Color
}

// NewConsole creates a console reporter. A nil writer defaults to stderr.
func NewConsole(out goio.Writer) *Console {
	if out == nil {
		out = os.Stderr
	}
	return &Console{
		out:    out,
		tag:    color.New(color.FgRed, color.Bold),
		high:   color.New(color.FgRed, color.Bold),
		medium: color.New(color.FgYellow, color.Bold),
		low:    color.New(color.FgYellow),
		active: color.New(color.FgGreen),
		idle:   color.New(color.FgYellow),
		bold:   color.New(color.Bold),
	}
}

// Print writes one finding with its severity tier.
func (c *Console) Print(r Report) {
	severity := SeverityFor(r.Score)

	var label string
	switch severity {
	case SeverityHigh:
		label = c.high.Sprint(string(severity))
	case SeverityMedium:
		label = c.medium.Sprint(string(severity))
	default:
		label = c.low.Sprint(string(severity))
	}

	fmt.Fprintf(c.out, "%s [%s] #%d | %s | score: %.4f\n",
		c.tag.Sprint("[ANOMALY]"), label, r.EventNumber, r.Event, r.Score)
}

// PrintStatus writes a progress line during processing.
func (c *Console) PrintStatus(totalEvents, totalAnomalies int, trained bool) {
	status := c.idle.Sprint("buffering")
	if trained {
		status = c.active.Sprint("detecting")
	}
	fmt.Fprintf(c.out, "[STATUS] %s | events: %d | anomalies: %d\n",
		status, totalEvents, totalAnomalies)
}

// PrintSummary writes the end-of-session totals.
func (c *Console) PrintSummary(totalEvents, totalAnomalies int) {
	rate := 0.0
	if totalEvents > 0 {
		rate = float64(totalAnomalies) / float64(totalEvents) * 100
	}

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, c.bold.Sprint("=== Detection Summary ==="))
	fmt.Fprintf(c.out, "Total events processed: %d\n", totalEvents)
	fmt.Fprintf(c.out, "Anomalies detected:     %d\n", totalAnomalies)
	fmt.Fprintf(c.out, "Anomaly rate:           %.2f%%\n", rate)
}

// JSONWriter appends findings to a file, one JSON object per line.
type JSONWriter struct {
	file *os.File
	enc  *json.Encoder
}

// NewJSONWriter opens (or creates) the output file in append mode.
func NewJSONWriter(path string) (*JSONWriter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONWriter{file: file, enc: json.NewEncoder(file)}, nil
}

// Write appends one finding.
func (w *JSONWriter) Write(r Report) error {
	return w.enc.Encode(r)
}

// Close releases the underlying file.
func (w *JSONWriter) Close() error {
	return w.file.Close()
}
