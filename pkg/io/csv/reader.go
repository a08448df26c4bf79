// Package csv provides CSV file reading for tabular numeric data.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Reader reads feature vectors from CSV files. Rows with non-numeric cells
// are skipped rather than failing the whole file.
type Reader struct {
	file      *os.File
	reader    *csv.Reader
	hasHeader bool
	headers   []string
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithHeader indicates whether the CSV has a header row (default true).
func WithHeader(has bool) Option {
	return func(r *Reader) {
		r.hasHeader = has
	}
}

// WithComma sets the field delimiter.
func WithComma(c rune) Option {
	return func(r *Reader) {
		r.reader.Comma = c
	}
}

// NewReader opens a CSV file for reading.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		file:      file,
		reader:    csv.NewReader(file),
		hasHeader: true,
	}
	r.reader.Comment = '#'

	for _, opt := range opts {
		opt(r)
	}

	if r.hasHeader {
		headers, err := r.reader.Read()
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("csv: read header: %w", err)
		}
		r.headers = headers
	}

	return r, nil
}

// Headers returns the column headers, if any.
func (r *Reader) Headers() []string {
	return r.headers
}

// Read returns all remaining rows as feature vectors.
func (r *Reader) Read() ([][]float64, error) {
	var data [][]float64

	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		row, err := parseRow(record)
		if err != nil {
			continue // skip malformed rows
		}
		data = append(data, row)
	}

	return data, nil
}

// Stream returns a channel of rows for real-time processing.
func (r *Reader) Stream(ctx context.Context) (<-chan []float64, error) {
	out := make(chan []float64, 100)

	go func() {
		defer close(out)
		for {
			record, err := r.reader.Read()
			if err != nil {
				return
			}

			row, err := parseRow(record)
			if err != nil {
				continue
			}

			select {
			case out <- row:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// parseRow converts a string record to a feature vector.
func parseRow(record []string) ([]float64, error) {
	if len(record) == 0 {
		return nil, errors.New("csv: empty row")
	}

	row := make([]float64, len(record))
	for i, val := range record {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("csv: column %d: %w", i, err)
		}
		row[i] = f
	}
	return row, nil
}
