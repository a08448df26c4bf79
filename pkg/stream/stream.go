// Package stream implements the streaming anomaly detection state machine.
//
// A Detector starts in a buffering state, collecting feature vectors until
// the buffer reaches its configured size. It then trains an isolation
// forest and switches to detecting: every subsequent observation is scored
// against the current forest, appended to a bounded sliding window, and the
// forest is periodically rebuilt from that window so the model tracks
// recent traffic. Observations whose score crosses the threshold produce a
// Report.
//
// A Detector is single-threaded by contract: Process must not be called
// concurrently, and training runs synchronously on the calling stack.
package stream

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/flowsentry/flowsentry/pkg/detectors"
	"github.com/flowsentry/flowsentry/pkg/detectors/iforest"
	"github.com/flowsentry/flowsentry/pkg/io"
)

// Config holds the tuning knobs of the streaming detector.
type Config struct {
	// NTrees is the ensemble width of each trained forest.
	NTrees int `mapstructure:"n_trees" json:"n_trees"`

	// BufferSize is both the cold-start training-set size and the target
	// size of the sliding retraining window.
	BufferSize int `mapstructure:"buffer_size" json:"buffer_size"`

	// Threshold is the score in [0, 1] at or above which an observation is
	// reported as anomalous.
	Threshold float64 `mapstructure:"threshold" json:"threshold"`

	// RetrainInterval is the number of scored events between automatic
	// retrains once the detector is trained.
	RetrainInterval int `mapstructure:"retrain_interval" json:"retrain_interval"`
}

// DefaultConfig returns the standard production configuration.
func DefaultConfig() Config {
	return Config{
		NTrees:          100,
		BufferSize:      256,
		Threshold:       0.65,
		RetrainInterval: 1000,
	}
}

// Validate checks the configuration for values the detector cannot run with.
func (c Config) Validate() error {
	if c.NTrees <= 0 {
		return fmt.Errorf("stream: n_trees must be positive, got %d", c.NTrees)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("stream: buffer_size must be positive, got %d", c.BufferSize)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("stream: threshold must be in [0, 1], got %g", c.Threshold)
	}
	if c.RetrainInterval <= 0 {
		return fmt.Errorf("stream: retrain_interval must be positive, got %d", c.RetrainInterval)
	}
	return nil
}

// Report describes one observation whose score crossed the threshold.
// EventNumber is the 1-based position of the observation among all
// observations the detector has seen.
type Report struct {
	Observation any
	Score       float64
	EventNumber int
}

// Detector owns at most one trained forest, a bounded sliding buffer of
// feature vectors, and the session counters.
type Detector struct {
	cfg       Config
	extractor io.FeatureExtractor
	rng       *rand.Rand

	// forest is nil until the first training completes; a non-nil forest
	// is always fully built.
	forest           detectors.Detector
	buffer           [][]float64
	eventsSinceTrain int
	totalEvents      int
	totalAnomalies   int
	trainCount       int
}

// Option configures a Detector.
type Option func(*Detector)

// WithSeed seeds the detector's random stream for reproducible runs. All
// forests the detector builds draw from this one stream.
func WithSeed(seed int64) Option {
	return func(d *Detector) {
		d.rng = rand.New(rand.NewSource(seed))
	}
}

// WithRand supplies the random generator directly.
func WithRand(rng *rand.Rand) Option {
	return func(d *Detector) {
		d.rng = rng
	}
}

// New creates a streaming detector in the buffering state.
func New(cfg Config, extractor io.FeatureExtractor, opts ...Option) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if extractor == nil {
		return nil, errors.New("stream: nil feature extractor")
	}

	d := &Detector{
		cfg:       cfg,
		extractor: extractor,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		buffer:    make([][]float64, 0, cfg.BufferSize),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// Process handles a single observation.
//
// While buffering it returns (nil, nil) and may trigger the initial
// training. Once trained it scores the observation with the pre-retrain
// forest, maintains the sliding window, retrains on the configured cadence,
// and returns a Report when the score meets the threshold.
func (d *Detector) Process(observation any) (*Report, error) {
	d.totalEvents++

	vector, err := d.extractor.Extract(observation)
	if err != nil {
		return nil, fmt.Errorf("stream: extract features: %w", err)
	}

	// Buffering: collect initial samples for training.
	if d.forest == nil {
		d.buffer = append(d.buffer, vector)
		if len(d.buffer) >= d.cfg.BufferSize {
			if err := d.train(); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	score, err := d.forest.PredictOne(vector)
	if err != nil {
		return nil, fmt.Errorf("stream: score event %d: %w", d.totalEvents, err)
	}

	d.eventsSinceTrain++

	// Maintain the sliding window: cap growth at twice the target size,
	// then drain back to exactly the target in one bulk move.
	d.buffer = append(d.buffer, vector)
	if len(d.buffer) > d.cfg.BufferSize*2 {
		d.evict(len(d.buffer) - d.cfg.BufferSize)
	}

	// Retraining is triggered after scoring, so this event was judged by
	// the previous forest even when it crosses the cadence boundary.
	if d.eventsSinceTrain >= d.cfg.RetrainInterval {
		if err := d.train(); err != nil {
			return nil, err
		}
	}

	if score >= d.cfg.Threshold {
		d.totalAnomalies++
		return &Report{
			Observation: observation,
			Score:       score,
			EventNumber: d.totalEvents,
		}, nil
	}

	return nil, nil
}

// train builds a new forest from the current buffer contents and replaces
// the detector's forest. This is the only place the forest is created or
// swapped.
func (d *Detector) train() error {
	forest := iforest.New(
		iforest.WithTrees(d.cfg.NTrees),
		iforest.WithSampleSize(d.cfg.BufferSize),
		iforest.WithRand(d.rng),
	)
	if err := forest.Fit(d.buffer); err != nil {
		return fmt.Errorf("stream: train forest: %w", err)
	}

	d.forest = forest
	d.eventsSinceTrain = 0
	d.trainCount++

	return nil
}

// evict drops the n oldest vectors with a single front drain.
func (d *Detector) evict(n int) {
	kept := copy(d.buffer, d.buffer[n:])
	for i := kept; i < len(d.buffer); i++ {
		d.buffer[i] = nil
	}
	d.buffer = d.buffer[:kept]
}

// TotalEvents returns the number of observations processed.
func (d *Detector) TotalEvents() int {
	return d.totalEvents
}

// TotalAnomalies returns the number of reports emitted.
func (d *Detector) TotalAnomalies() int {
	return d.totalAnomalies
}

// Trained reports whether the detector has left the buffering state.
func (d *Detector) Trained() bool {
	return d.forest != nil
}

// TrainCount returns how many times a forest has been built, including the
// initial training.
func (d *Detector) TrainCount() int {
	return d.trainCount
}

// Config returns the detector's configuration.
func (d *Detector) Config() Config {
	return d.cfg
}
