// Package iforest implements the Isolation Forest algorithm for anomaly detection.
//
// An isolation forest scores a point by how quickly random recursive
// partitioning isolates it from the rest of the data: anomalies sit in
// sparse regions and are separated after few splits, so their average
// path length across the ensemble is short and their score approaches 1.
package iforest

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// eulerGamma is the Euler-Mascheroni constant, used in the harmonic-number
// approximation of the expected path length.
const eulerGamma = 0.5772156649

// floatEps is the IEEE-754 double precision epsilon. A feature whose value
// range over a partition is below this cannot be split.
const floatEps = 2.220446049250313e-16

var (
	// ErrNotTrained is returned when scoring is attempted before Fit.
	ErrNotTrained = errors.New("iforest: model not trained")

	// ErrEmptyData is returned when Fit is called with no samples.
	ErrEmptyData = errors.New("iforest: empty training data")

	// ErrDimensionMismatch is returned when a sample's length differs from
	// the dimensionality the forest was trained on.
	ErrDimensionMismatch = errors.New("iforest: feature dimension mismatch")
)

// IsolationForest implements unsupervised anomaly detection using an
// ensemble of isolation trees. A forest is immutable once fitted;
// retraining means constructing and fitting a new instance.
type IsolationForest struct {
	// Configuration
	nTrees     int
	sampleSize int
	rng        *rand.Rand

	// Trained model
	trees []*iTree
	// fitSampleSize is the subsample size the trees were actually trained
	// on (min of the configured sample size and the data size). It drives
	// score normalization and must match what the trees saw.
	fitSampleSize int
	nFeatures     int
	trained       bool
}

// iTree is a single isolation tree.
type iTree struct {
	root *node
}

// node is a node in an isolation tree. Leaves are encoded by nil children
// and carry the count of subsample rows that reached them.
type node struct {
	splitFeature int
	splitValue   float64

	left  *node
	right *node

	size int
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *IsolationForest) {
		f.nTrees = n
	}
}

// WithSampleSize sets the subsample size requested for each tree. The depth
// bound of every tree is derived from this value, not from the (possibly
// smaller) training set.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) {
		f.sampleSize = n
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) {
		f.rng = rand.New(rand.NewSource(seed))
	}
}

// WithRand supplies the random generator directly. Use this to share one
// seeded stream across successive forests so retrains draw fresh randomness.
func WithRand(rng *rand.Rand) Option {
	return func(f *IsolationForest) {
		f.rng = rng
	}
}

// New creates a new IsolationForest with the given options.
func New(opts ...Option) *IsolationForest {
	f := &IsolationForest{
		nTrees:     100,
		sampleSize: 256,
		rng:        rand.New(rand.NewSource(42)),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fit trains the forest on the provided data. Each tree is built over an
// independent subsample drawn with replacement.
func (f *IsolationForest) Fit(data [][]float64) error {
	if len(data) == 0 {
		return ErrEmptyData
	}

	nSamples := len(data)
	f.nFeatures = len(data[0])

	sampleSize := f.sampleSize
	if sampleSize > nSamples {
		sampleSize = nSamples
	}

	// The depth bound follows the configured sample size even when the
	// training set is smaller, so tree height is a deployment constant.
	maxDepth := int(math.Ceil(math.Log2(float64(f.sampleSize))))

	f.trees = make([]*iTree, f.nTrees)
	for i := range f.trees {
		subsample := make([][]float64, sampleSize)
		for j := range subsample {
			subsample[j] = data[f.rng.Intn(nSamples)]
		}
		f.trees[i] = &iTree{root: f.buildNode(subsample, 0, maxDepth)}
	}

	f.fitSampleSize = sampleSize
	f.trained = true

	return nil
}

// buildNode recursively partitions data into an isolation subtree.
func (f *IsolationForest) buildNode(data [][]float64, depth, maxDepth int) *node {
	n := len(data)

	if depth >= maxDepth || n <= 1 {
		return &node{size: n}
	}

	feature := f.rng.Intn(f.nFeatures)

	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		if row[feature] < minVal {
			minVal = row[feature]
		}
		if row[feature] > maxVal {
			maxVal = row[feature]
		}
	}

	// Constant feature across this partition: nothing to split on.
	if maxVal-minVal < floatEps {
		return &node{size: n}
	}

	splitValue := minVal + f.rng.Float64()*(maxVal-minVal)

	var leftData, rightData [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			leftData = append(leftData, row)
		} else {
			rightData = append(rightData, row)
		}
	}

	// A degenerate threshold can land on the partition minimum and leave
	// one side empty.
	if len(leftData) == 0 || len(rightData) == 0 {
		return &node{size: n}
	}

	return &node{
		splitFeature: feature,
		splitValue:   splitValue,
		left:         f.buildNode(leftData, depth+1, maxDepth),
		right:        f.buildNode(rightData, depth+1, maxDepth),
	}
}

// Predict returns anomaly scores for the given samples.
func (f *IsolationForest) Predict(data [][]float64) ([]float64, error) {
	scores := make([]float64, len(data))

	for i, sample := range data {
		score, err := f.PredictOne(sample)
		if err != nil {
			return nil, err
		}
		scores[i] = score
	}

	return scores, nil
}

// PredictOne returns the anomaly score for a single sample. The score lies
// in (0, 1]: values near 1 mark points isolated after few splits, values
// near 0 mark points deep inside dense regions.
func (f *IsolationForest) PredictOne(sample []float64) (float64, error) {
	if !f.trained {
		return 0, ErrNotTrained
	}
	if len(sample) != f.nFeatures {
		return 0, fmt.Errorf("%w: sample has %d features, trained on %d",
			ErrDimensionMismatch, len(sample), f.nFeatures)
	}

	var totalPath float64
	for _, tree := range f.trees {
		totalPath += pathLength(sample, tree.root, 0)
	}
	avgPath := totalPath / float64(len(f.trees))

	cn := averagePathLength(float64(f.fitSampleSize))
	if cn == 0 {
		// Degenerate subsample (size <= 1): no meaningful path statistics
		// exist, so every point gets the neutral score.
		return 0.5, nil
	}

	return math.Pow(2, -avgPath/cn), nil
}

// SampleSize returns the subsample size the trees were trained on.
func (f *IsolationForest) SampleSize() int {
	return f.fitSampleSize
}

// NumFeatures returns the dimensionality the forest was trained on.
func (f *IsolationForest) NumFeatures() int {
	return f.nFeatures
}

// pathLength computes the traversal depth of a sample in a subtree. At a
// leaf, the stored size compensates for early termination by adding the
// expected path length of the unbuilt subtree.
func pathLength(sample []float64, n *node, currentDepth int) float64 {
	if n.left == nil && n.right == nil {
		return float64(currentDepth) + averagePathLength(float64(n.size))
	}

	if sample[n.splitFeature] < n.splitValue {
		return pathLength(sample, n.left, currentDepth+1)
	}
	return pathLength(sample, n.right, currentDepth+1)
}

// averagePathLength returns c(n), the expected path length of an
// unsuccessful search in a binary search tree over n items:
// c(n) = 2*(ln(n) + gamma) - 2*(n-1)/n, with c(n) = 0 for n <= 1.
// Strictly increasing for n > 1.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	return 2*(math.Log(n)+eulerGamma) - 2*(n-1)/n
}
