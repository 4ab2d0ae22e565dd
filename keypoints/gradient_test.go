package keypoints

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestGradientConfigValidate(t *testing.T) {
	test.That(t, DefaultGradientConfig().Validate(""), test.ShouldBeNil)

	bad := &GradientConfig{PatchSize: 16, Cells: 0, Bins: 8, FastConf: DefaultFASTConfig()}
	test.That(t, bad.Validate(""), test.ShouldNotBeNil)
	bad = &GradientConfig{PatchSize: 15, Cells: 4, Bins: 8, FastConf: DefaultFASTConfig()}
	test.That(t, bad.Validate(""), test.ShouldNotBeNil)
	bad = &GradientConfig{PatchSize: 16, Cells: 4, Bins: 8}
	test.That(t, bad.Validate(""), test.ShouldNotBeNil)
}

func TestComputeGradientDescriptors(t *testing.T) {
	rectImage := createTestImage()
	kps := &FASTKeypoints{
		// the first keypoint sits on the rectangle edge so its patch sees a
		// strong vertical gradient
		Points:       KeyPoints{{50, 90}, {1, 1}},
		Orientations: []float64{0.0, 0.0},
		Scores:       []float64{10, 10},
	}
	cfg := DefaultGradientConfig()
	descs, err := ComputeGradientDescriptors(rectImage, kps, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(descs), test.ShouldEqual, 2)
	dims := cfg.Cells * cfg.Cells * cfg.Bins
	test.That(t, len(descs[0]), test.ShouldEqual, dims)

	// an interior keypoint near an edge gets a unit-norm descriptor
	var norm float64
	for _, v := range descs[0] {
		test.That(t, v, test.ShouldBeLessThanOrEqualTo, descriptorClamp+1e-9)
		norm += v * v
	}
	test.That(t, math.Sqrt(norm), test.ShouldAlmostEqual, 1.0, 1e-9)

	// a border keypoint keeps an all-zero descriptor
	for _, v := range descs[1] {
		test.That(t, v, test.ShouldEqual, 0)
	}
}

func TestGradientDetector(t *testing.T) {
	rectImage := createTestImage()
	detector := &GradientDetector{Config: DefaultGradientConfig()}
	fs, err := detector.Detect(rectImage, 100)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fs.Algorithm, test.ShouldEqual, "gradient")
	test.That(t, fs.Metric, test.ShouldEqual, Euclidean)
	test.That(t, fs.Len(), test.ShouldBeGreaterThan, 0)
	test.That(t, len(fs.Float), test.ShouldEqual, fs.Len())
	test.That(t, len(fs.Colors), test.ShouldEqual, fs.Len())
}
