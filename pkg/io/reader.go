// Package io provides input/output interfaces for data ingestion.
package io

import (
	"context"
	"fmt"

	"github.com/flowsentry/flowsentry/pkg/events"
)

// Reader is the interface for reading numeric datasets from various sources.
type Reader interface {
	// Read returns the complete dataset.
	Read() ([][]float64, error)

	// Stream returns a channel of samples for real-time processing.
	Stream(ctx context.Context) (<-chan []float64, error)

	// Close releases resources.
	Close() error
}

// EventReader yields structured network observations for streaming
// detection. Ordering matters: it determines buffer contents, training sets
// and event numbers in reports.
type EventReader interface {
	// Events returns a channel of observations. The channel is closed when
	// the source is exhausted or the context is cancelled.
	Events(ctx context.Context) (<-chan events.NetworkEvent, error)

	// Close releases resources.
	Close() error
}

// FeatureExtractor extracts numerical features from raw observations. An
// extractor must be a pure mapping with fixed output dimensionality per
// deployment.
type FeatureExtractor interface {
	// Extract converts a raw observation to a feature vector.
	Extract(data any) ([]float64, error)

	// FeatureNames returns the names of extracted features.
	FeatureNames() []string
}

// PassthroughExtractor accepts observations that already are feature
// vectors and returns them unchanged. Useful for tabular feeds.
type PassthroughExtractor struct {
	Names []string
}

// Extract returns the observation itself, which must be a []float64.
func (p PassthroughExtractor) Extract(data any) ([]float64, error) {
	vector, ok := data.([]float64)
	if !ok {
		return nil, fmt.Errorf("io: expected []float64 observation, got %T", data)
	}
	return vector, nil
}

// FeatureNames returns the configured column names.
func (p PassthroughExtractor) FeatureNames() []string {
	return p.Names
}
