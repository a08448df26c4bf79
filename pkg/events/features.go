package events

import "fmt"

// featureNames lists the feature vector layout. Dimensionality is fixed for
// a deployment: every vector handed to a forest must have this length.
var featureNames = []string{
	"hour_of_day",
	"src_port",
	"dst_port",
	"protocol",
	"bytes",
	"duration",
}

// Features maps an event to its fixed-length feature vector. The vector is
// fed to the forest unscaled; random splits handle varying feature ranges
// inherently.
func Features(e *NetworkEvent) []float64 {
	return []float64{
		float64(e.Timestamp.Hour()),
		float64(e.SrcPort),
		float64(e.DstPort),
		e.Protocol.Float(),
		float64(e.Bytes),
		e.Duration,
	}
}

// Extractor converts NetworkEvent observations to feature vectors. It
// implements io.FeatureExtractor.
type Extractor struct{}

// NewExtractor creates a network event feature extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract converts a NetworkEvent (by value or pointer) to its feature vector.
func (x *Extractor) Extract(data any) ([]float64, error) {
	switch ev := data.(type) {
	case *NetworkEvent:
		return Features(ev), nil
	case NetworkEvent:
		return Features(&ev), nil
	default:
		return nil, fmt.Errorf("events: cannot extract features from %T", data)
	}
}

// FeatureNames returns the names of extracted features.
func (x *Extractor) FeatureNames() []string {
	return featureNames
}
