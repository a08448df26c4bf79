package stream

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsentry/flowsentry/pkg/detectors/iforest"
	fsio "github.com/flowsentry/flowsentry/pkg/io"
)

func newTestDetector(t *testing.T, cfg Config, seed int64) *Detector {
	t.Helper()
	d, err := New(cfg, fsio.PassthroughExtractor{}, WithSeed(seed))
	require.NoError(t, err)
	return d
}

// clusterVector returns a point jittered around the origin.
func clusterVector(rng *rand.Rand) []float64 {
	return []float64{
		rng.Float64()*0.2 - 0.1,
		rng.Float64()*0.2 - 0.1,
		rng.Float64()*0.2 - 0.1,
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{name: "zero trees", mutate: func(c *Config) { c.NTrees = 0 }, wantErr: true},
		{name: "negative buffer", mutate: func(c *Config) { c.BufferSize = -1 }, wantErr: true},
		{name: "threshold above one", mutate: func(c *Config) { c.Threshold = 1.5 }, wantErr: true},
		{name: "negative threshold", mutate: func(c *Config) { c.Threshold = -0.1 }, wantErr: true},
		{name: "zero retrain interval", mutate: func(c *Config) { c.RetrainInterval = 0 }, wantErr: true},
		{name: "threshold bounds are inclusive", mutate: func(c *Config) { c.Threshold = 1.0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 100, cfg.NTrees)
	assert.Equal(t, 256, cfg.BufferSize)
	assert.Equal(t, 0.65, cfg.Threshold)
	assert.Equal(t, 1000, cfg.RetrainInterval)
}

func TestNewRejectsNilExtractor(t *testing.T) {
	_, err := New(DefaultConfig(), nil)
	assert.Error(t, err)
}

func TestBufferingToDetectingTransition(t *testing.T) {
	cfg := Config{NTrees: 10, BufferSize: 8, Threshold: 0.99, RetrainInterval: 1000}
	d := newTestDetector(t, cfg, 1)
	rng := rand.New(rand.NewSource(2))

	// Before the buffer fills: no reports, not trained.
	for i := 0; i < 7; i++ {
		report, err := d.Process(clusterVector(rng))
		require.NoError(t, err)
		assert.Nil(t, report)
		assert.False(t, d.Trained(), "event %d should not trigger training", i+1)
	}
	assert.Equal(t, 7, d.TotalEvents())
	assert.Equal(t, 0, d.TrainCount())

	// The event that fills the buffer trains the forest but is never scored.
	report, err := d.Process(clusterVector(rng))
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.True(t, d.Trained())
	assert.Equal(t, 1, d.TrainCount())
	assert.Equal(t, 8, d.TotalEvents())
	assert.Equal(t, 0, d.eventsSinceTrain)
}

func TestSlidingWindowBounds(t *testing.T) {
	cfg := Config{NTrees: 5, BufferSize: 4, Threshold: 0.99, RetrainInterval: 100000}
	d := newTestDetector(t, cfg, 3)
	rng := rand.New(rand.NewSource(4))

	for i := 0; i < 4; i++ {
		_, err := d.Process(clusterVector(rng))
		require.NoError(t, err)
	}
	require.True(t, d.Trained())
	require.Len(t, d.buffer, 4)

	// Once detecting, the window grows to 2*BufferSize then snaps back to
	// exactly BufferSize.
	sawTrim := false
	prev := len(d.buffer)
	for i := 0; i < 40; i++ {
		_, err := d.Process(clusterVector(rng))
		require.NoError(t, err)

		n := len(d.buffer)
		assert.LessOrEqual(t, n, 2*cfg.BufferSize)
		if n < prev {
			assert.Equal(t, cfg.BufferSize, n, "trim must restore the target size exactly")
			sawTrim = true
		}
		prev = n
	}
	assert.True(t, sawTrim, "window should have been trimmed at least once")
}

func TestRetrainCadence(t *testing.T) {
	cfg := Config{NTrees: 5, BufferSize: 4, Threshold: 1.0, RetrainInterval: 5}
	d := newTestDetector(t, cfg, 5)
	rng := rand.New(rand.NewSource(6))

	for i := 0; i < 4; i++ {
		_, err := d.Process(clusterVector(rng))
		require.NoError(t, err)
	}
	require.Equal(t, 1, d.TrainCount())

	// Every 5th scored event triggers a retrain and resets the counter.
	for i := 1; i <= 14; i++ {
		_, err := d.Process(clusterVector(rng))
		require.NoError(t, err)

		wantTrains := 1 + i/5
		assert.Equal(t, wantTrains, d.TrainCount(), "after %d scored events", i)
		assert.Equal(t, i%5, d.eventsSinceTrain, "after %d scored events", i)
	}
}

func TestCounters(t *testing.T) {
	// Threshold 0 makes every scored event a report, pinning the
	// anomaly counter to the number of scored events.
	cfg := Config{NTrees: 5, BufferSize: 4, Threshold: 0, RetrainInterval: 1000}
	d := newTestDetector(t, cfg, 7)
	rng := rand.New(rand.NewSource(8))

	for i := 0; i < 4; i++ {
		_, err := d.Process(clusterVector(rng))
		require.NoError(t, err)
	}
	assert.Equal(t, 4, d.TotalEvents())
	assert.Equal(t, 0, d.TotalAnomalies())

	for i := 1; i <= 6; i++ {
		report, err := d.Process(clusterVector(rng))
		require.NoError(t, err)
		require.NotNil(t, report)
		assert.Equal(t, 4+i, report.EventNumber)
		assert.Equal(t, 4+i, d.TotalEvents())
		assert.Equal(t, i, d.TotalAnomalies())
	}
}

func TestEndToEndScenario(t *testing.T) {
	cfg := Config{NTrees: 25, BufferSize: 5, Threshold: 0.4, RetrainInterval: 1000}
	d := newTestDetector(t, cfg, 9)

	cluster := [][]float64{
		{0.01, -0.02, 0.03},
		{-0.01, 0.02, 0.01},
		{0.02, 0.01, -0.03},
		{-0.03, -0.01, 0.02},
		{0.01, 0.03, -0.01},
	}

	for i, vec := range cluster[:4] {
		report, err := d.Process(vec)
		require.NoError(t, err)
		assert.Nil(t, report)
		assert.False(t, d.Trained())
		assert.Equal(t, i+1, d.TotalEvents())
	}

	// The fifth vector fills the buffer and triggers training; the event
	// itself is not scored.
	report, err := d.Process(cluster[4])
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.True(t, d.Trained())

	// A far outlier is scored against the tight cluster and reported.
	report, err = d.Process([]float64{1000, 1000, 1000})
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 6, report.EventNumber)
	assert.GreaterOrEqual(t, report.Score, cfg.Threshold)
	assert.LessOrEqual(t, report.Score, 1.0)
	assert.Equal(t, 1, d.TotalAnomalies())
	assert.Equal(t, 6, d.TotalEvents())
}

func TestScoresStableAcrossRetrains(t *testing.T) {
	// Retraining on an overlapping window must not move scores much.
	// Randomized trees are never bit-identical, so compare with a band.
	cfg := Config{NTrees: 100, BufferSize: 64, Threshold: 0.99, RetrainInterval: 64}
	d := newTestDetector(t, cfg, 10)
	rng := rand.New(rand.NewSource(11))

	for i := 0; i < 64; i++ {
		_, err := d.Process(clusterVector(rng))
		require.NoError(t, err)
	}
	require.True(t, d.Trained())

	probe := []float64{100, 100, 100}
	first, err := d.forest.PredictOne(probe)
	require.NoError(t, err)

	trained := d.TrainCount()
	for i := 0; i < 64; i++ {
		_, err := d.Process(clusterVector(rng))
		require.NoError(t, err)
	}
	require.Greater(t, d.TrainCount(), trained, "a retrain should have happened")

	second, err := d.forest.PredictOne(probe)
	require.NoError(t, err)

	assert.InDelta(t, first, second, 0.15)
	assert.NotEqual(t, first, second, "independent forests should not agree exactly")
}

func TestDimensionMismatchSurfaces(t *testing.T) {
	cfg := Config{NTrees: 5, BufferSize: 4, Threshold: 0.99, RetrainInterval: 1000}
	d := newTestDetector(t, cfg, 12)
	rng := rand.New(rand.NewSource(13))

	for i := 0; i < 4; i++ {
		_, err := d.Process(clusterVector(rng))
		require.NoError(t, err)
	}
	require.True(t, d.Trained())

	_, err := d.Process([]float64{1, 2})
	assert.ErrorIs(t, err, iforest.ErrDimensionMismatch)
}

func TestExtractorErrorCountsEvent(t *testing.T) {
	cfg := Config{NTrees: 5, BufferSize: 4, Threshold: 0.99, RetrainInterval: 1000}
	d := newTestDetector(t, cfg, 14)

	_, err := d.Process("not a vector")
	assert.Error(t, err)
	assert.Equal(t, 1, d.TotalEvents(), "the observation was seen even if unusable")
}

func TestUnderfilledBufferStaysBuffering(t *testing.T) {
	cfg := Config{NTrees: 5, BufferSize: 100, Threshold: 0.5, RetrainInterval: 1000}
	d := newTestDetector(t, cfg, 15)
	rng := rand.New(rand.NewSource(16))

	for i := 0; i < 99; i++ {
		report, err := d.Process(clusterVector(rng))
		require.NoError(t, err)
		assert.Nil(t, report)
	}
	assert.False(t, d.Trained())
	assert.Equal(t, 0, d.TotalAnomalies())
}

func BenchmarkProcess(b *testing.B) {
	cfg := Config{NTrees: 100, BufferSize: 256, Threshold: 0.65, RetrainInterval: 1000}
	d, err := New(cfg, fsio.PassthroughExtractor{}, WithSeed(42))
	if err != nil {
		b.Fatal(err)
	}
	rng := rand.New(rand.NewSource(1))

	vectors := make([][]float64, 4096)
	for i := range vectors {
		vectors[i] = clusterVector(rng)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := d.Process(vectors[i%len(vectors)]); err != nil {
			b.Fatal(err)
		}
	}
}
