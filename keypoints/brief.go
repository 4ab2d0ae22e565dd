package keypoints

import (
	"image"
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/sfm/rimage"
	sfmutils "go.viam.com/sfm/utils"
)

// SamplingType selects how BRIEF point pairs are drawn within a patch.
type SamplingType int

const (
	// SamplingUniform draws pair coordinates uniformly over the patch.
	SamplingUniform SamplingType = iota
	// SamplingNormal draws pair coordinates from a normal distribution
	// centered on the patch.
	SamplingNormal
)

// SamplePairs are N pairs of points used to create the BRIEF descriptor of a
// patch.
type SamplePairs struct {
	P0 []image.Point
	P1 []image.Point
	N  int
}

// GenerateSamplePairs generates n sample pairs for a patch size with the
// chosen sampling type. The pairs are drawn from the given rand.Rand so that
// two images described in one run share the same sampling pattern.
func GenerateSamplePairs(dist SamplingType, n, patchSize int, r *rand.Rand) *SamplePairs {
	vMin := math.Round(-(float64(patchSize) - 2) / 2.)
	vMax := math.Round(float64(patchSize) / 2.)
	sample := func() []int {
		if dist == SamplingNormal {
			return sfmutils.SampleNIntegersNormal(n, vMin, vMax, r)
		}
		return sfmutils.SampleNIntegersUniform(n, vMin, vMax, r)
	}
	xs0, ys0, xs1, ys1 := sample(), sample(), sample(), sample()
	p0 := make([]image.Point, 0, n)
	p1 := make([]image.Point, 0, n)
	for i := 0; i < n; i++ {
		p0 = append(p0, image.Point{X: xs0[i], Y: ys0[i]})
		p1 = append(p1, image.Point{X: xs1[i], Y: ys1[i]})
	}
	return &SamplePairs{P0: p0, P1: p1, N: n}
}

// BRIEFConfig stores the parameters for BRIEF descriptor computation.
type BRIEFConfig struct {
	// N is the number of point pairs sampled, i.e. descriptor bits.
	N              int          `json:"n"`
	Sampling       SamplingType `json:"sampling"`
	UseOrientation bool         `json:"use_orientation"`
	PatchSize      int          `json:"patch_size"`
}

// DefaultBRIEFConfig returns 256-bit oriented BRIEF parameters.
func DefaultBRIEFConfig() *BRIEFConfig {
	return &BRIEFConfig{
		N:              256,
		Sampling:       SamplingUniform,
		UseOrientation: true,
		PatchSize:      48,
	}
}

// Validate ensures all parts of the BRIEFConfig are valid.
func (config *BRIEFConfig) Validate(path string) error {
	if config.N < 64 || config.N%64 != 0 {
		return utils.NewConfigValidationError(path, errors.New("n should be a positive multiple of 64"))
	}
	if config.PatchSize < 4 {
		return utils.NewConfigValidationError(path, errors.New("patch_size should be >= 4"))
	}
	return nil
}

// ComputeBRIEFDescriptors computes BRIEF descriptors on image img at the
// given keypoints. The image is smoothed first so single-pixel comparisons
// are stable under noise.
func ComputeBRIEFDescriptors(img *image.Gray, sp *SamplePairs, kps *FASTKeypoints, cfg *BRIEFConfig) ([]BinaryDescriptor, error) {
	kernel := rimage.GetGaussian5()
	normalized := kernel.Normalize()
	blurred, err := rimage.ConvolveGray(img, normalized, image.Point{2, 2}, rimage.BorderConstant)
	if err != nil {
		return nil, err
	}

	descs := make([]BinaryDescriptor, len(kps.Points))
	bnd := blurred.Bounds()
	halfSize := cfg.PatchSize / 2
	for k, kp := range kps.Points {
		p1 := image.Point{kp.X + halfSize, kp.Y + halfSize}
		p2 := image.Point{kp.X + halfSize, kp.Y - halfSize}
		p3 := image.Point{kp.X - halfSize, kp.Y + halfSize}
		p4 := image.Point{kp.X - halfSize, kp.Y - halfSize}
		// Divide by 64 since we store a descriptor as a uint64 array.
		descriptor := make(BinaryDescriptor, sp.N/64)
		if !p1.In(bnd) || !p2.In(bnd) || !p3.In(bnd) || !p4.In(bnd) {
			descs[k] = descriptor
			continue
		}
		cosTheta := 1.0
		sinTheta := 0.0
		// if use orientation and keypoints are oriented, compute rotation matrix
		if cfg.UseOrientation && kps.Orientations != nil {
			angle := kps.Orientations[k]
			cosTheta = math.Cos(angle)
			sinTheta = math.Sin(angle)
		}
		for i := 0; i < sp.N; i++ {
			x0, y0 := float64(sp.P0[i].X), float64(sp.P0[i].Y)
			x1, y1 := float64(sp.P1[i].X), float64(sp.P1[i].Y)
			// compute rotated sample coordinates (identity if no orientation)
			outx0 := int(math.Round(cosTheta*x0 - sinTheta*y0))
			outy0 := int(math.Round(sinTheta*x0 + cosTheta*y0))
			outx1 := int(math.Round(cosTheta*x1 - sinTheta*y1))
			outy1 := int(math.Round(sinTheta*x1 + cosTheta*y1))
			p0Val := blurred.GrayAt(kp.X+outx0, kp.Y+outy0).Y
			p1Val := blurred.GrayAt(kp.X+outx1, kp.Y+outy1).Y
			if p0Val > p1Val {
				descriptor[i/64] |= 1 << (i % 64)
			}
		}
		descs[k] = descriptor
	}
	return descs, nil
}
