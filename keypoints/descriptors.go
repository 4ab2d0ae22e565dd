package keypoints

import (
	"image/color"
	"math"
	"math/bits"

	"github.com/pkg/errors"
)

// Metric is the distance metric a descriptor set is matched under.
type Metric int

const (
	// Euclidean is the L2 metric used for floating point descriptors.
	Euclidean Metric = iota
	// Hamming is the bit-count metric used for binary descriptors.
	Hamming
)

func (m Metric) String() string {
	if m == Hamming {
		return "hamming"
	}
	return "euclidean"
}

// BinaryDescriptor is a packed binary descriptor, 64 bits per word.
type BinaryDescriptor []uint64

// FloatDescriptor is a floating point descriptor.
type FloatDescriptor []float64

// FeatureSet is the result of running a detector over one image: keypoints,
// their descriptors, the metric the descriptors are matched under, and the
// color sampled at each keypoint. All descriptors in a set share the same
// dimensionality and metric. Colors are sampled at detection time so the
// source image can be released immediately afterwards.
type FeatureSet struct {
	Points    KeyPoints
	Binary    []BinaryDescriptor
	Float     []FloatDescriptor
	Metric    Metric
	Algorithm string
	Colors    []color.NRGBA
}

// Len returns the number of keypoints in the set.
func (fs *FeatureSet) Len() int {
	return len(fs.Points)
}

// HammingDistance computes the hamming distance between two packed binary
// descriptors.
func HammingDistance(d1, d2 BinaryDescriptor) (int, error) {
	if len(d1) != len(d2) {
		return -1, errors.Errorf("binary descriptors must have the same length (%d != %d)", len(d1), len(d2))
	}
	distance := 0
	for i := range d1 {
		distance += bits.OnesCount64(d1[i] ^ d2[i])
	}
	return distance, nil
}

// EuclideanDistance computes the L2 distance between two float descriptors.
func EuclideanDistance(d1, d2 FloatDescriptor) (float64, error) {
	if len(d1) != len(d2) {
		return -1, errors.Errorf("float descriptors must have the same length (%d != %d)", len(d1), len(d2))
	}
	var sum float64
	for i := range d1 {
		diff := d1[i] - d2[i]
		sum += diff * diff
	}
	return math.Sqrt(sum), nil
}
