package report

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsentry/flowsentry/pkg/events"
)

func init() {
	// Keep console output byte-comparable in tests.
	color.NoColor = true
}

func testEvent() events.NetworkEvent {
	return events.NetworkEvent{
		Timestamp: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		SrcIP:     "192.168.1.10",
		SrcPort:   54321,
		DstIP:     "10.0.0.1",
		DstPort:   443,
		Protocol:  events.ProtocolTCP,
		Bytes:     1500,
		Duration:  0.05,
	}
}

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		score float64
		want  Severity
	}{
		{0.95, SeverityHigh},
		{0.8, SeverityHigh},
		{0.79, SeverityMedium},
		{0.7, SeverityMedium},
		{0.69, SeverityLow},
		{0.65, SeverityLow},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SeverityFor(tt.score), "score %v", tt.score)
	}
}

func TestConsolePrint(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.Print(Report{Event: testEvent(), Score: 0.8213, EventNumber: 42})

	out := buf.String()
	assert.Contains(t, out, "[ANOMALY]")
	assert.Contains(t, out, "[HIGH]")
	assert.Contains(t, out, "#42")
	assert.Contains(t, out, "192.168.1.10:54321 -> 10.0.0.1:443")
	assert.Contains(t, out, "TCP")
	assert.Contains(t, out, "score: 0.8213")
}

func TestConsolePrintStatus(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.PrintStatus(100, 0, false)
	assert.Contains(t, buf.String(), "buffering")

	buf.Reset()
	c.PrintStatus(500, 3, true)
	out := buf.String()
	assert.Contains(t, out, "detecting")
	assert.Contains(t, out, "events: 500")
	assert.Contains(t, out, "anomalies: 3")
}

func TestConsolePrintSummary(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.PrintSummary(400, 6)

	out := buf.String()
	assert.Contains(t, out, "Detection Summary")
	assert.Contains(t, out, "400")
	assert.Contains(t, out, "6")
	assert.Contains(t, out, "1.50%")
}

func TestConsolePrintSummaryNoEvents(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.PrintSummary(0, 0)
	assert.Contains(t, buf.String(), "0.00%")
}

func TestJSONWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "findings.jsonl")

	w, err := NewJSONWriter(path)
	require.NoError(t, err)

	first := Report{Event: testEvent(), Score: 0.91, EventNumber: 7}
	second := Report{Event: testEvent(), Score: 0.72, EventNumber: 19}
	require.NoError(t, w.Write(first))
	require.NoError(t, w.Write(second))
	require.NoError(t, w.Close())

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var lines []Report
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var r Report
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r), "each line is one JSON object")
		lines = append(lines, r)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, lines, 2)
	assert.Equal(t, 7, lines[0].EventNumber)
	assert.Equal(t, 0.91, lines[0].Score)
	assert.Equal(t, "192.168.1.10", lines[0].Event.SrcIP)
	assert.Equal(t, 19, lines[1].EventNumber)
}

func TestJSONWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "findings.jsonl")

	w, err := NewJSONWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(Report{Event: testEvent(), Score: 0.9, EventNumber: 1}))
	require.NoError(t, w.Close())

	// Reopening must append, not truncate.
	w, err = NewJSONWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(Report{Event: testEvent(), Score: 0.8, EventNumber: 2}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(data, []byte("\n")))
}

func TestProtocolRendersAsString(t *testing.T) {
	out, err := json.Marshal(Report{Event: testEvent(), Score: 0.9, EventNumber: 1})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"protocol":"TCP"`)
	assert.Contains(t, string(out), `"event_number":1`)
}
