// Package flowlog reads whitespace-separated network flow records from
// files or streams, one event per line.
package flowlog

import (
	"bufio"
	"context"
	goio "io"
	"os"

	"github.com/flowsentry/flowsentry/pkg/events"
)

// Reader reads NetworkEvents from a flow-log source. Blank lines, comments
// and malformed records are skipped; the skip count is available through
// Skipped after the stream ends.
type Reader struct {
	file    *os.File
	scanner *bufio.Scanner
	skipped int
}

// NewReader opens a flow-log file. The path "-" reads from stdin.
func NewReader(filename string) (*Reader, error) {
	if filename == "-" {
		return &Reader{scanner: bufio.NewScanner(os.Stdin)}, nil
	}

	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return &Reader{
		file:    file,
		scanner: bufio.NewScanner(file),
	}, nil
}

// NewStreamReader wraps an arbitrary stream of flow-log lines.
func NewStreamReader(r goio.Reader) *Reader {
	return &Reader{scanner: bufio.NewScanner(r)}
}

// Events returns a channel of parsed events. The channel is closed at end
// of input or when the context is cancelled.
func (r *Reader) Events(ctx context.Context) (<-chan events.NetworkEvent, error) {
	out := make(chan events.NetworkEvent, 100)

	go func() {
		defer close(out)
		for r.scanner.Scan() {
			event, err := events.ParseLine(r.scanner.Text())
			if err != nil {
				r.skipped++
				continue
			}
			if event == nil {
				// Blank line or comment.
				continue
			}

			select {
			case out <- *event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Skipped returns the number of malformed records dropped so far.
func (r *Reader) Skipped() int {
	return r.skipped
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
