// Package detectors provides unsupervised anomaly detection algorithms.
package detectors

// Detector is the common interface for all anomaly detection algorithms.
type Detector interface {
	// Fit trains the detector on historical data.
	// data is a 2D slice where each row is a sample and each column is a feature.
	Fit(data [][]float64) error

	// Predict returns anomaly scores for the given samples.
	// Scores are normalized to (0, 1] where higher values indicate anomalies.
	Predict(data [][]float64) ([]float64, error)

	// PredictOne returns the anomaly score for a single sample.
	PredictOne(sample []float64) (float64, error)
}
