package keypoints

import (
	"image"
	"math/rand"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/sfm/rimage"
)

// ORBConfig contains the parameters needed to compute ORB features.
type ORBConfig struct {
	Layers          int          `json:"n_layers"`
	DownscaleFactor int          `json:"downscale_factor"`
	FastConf        *FASTConfig  `json:"fast"`
	BRIEFConf       *BRIEFConfig `json:"brief"`
}

// DefaultORBConfig returns a 2-layer ORB configuration with default FAST and
// BRIEF parameters.
func DefaultORBConfig() *ORBConfig {
	return &ORBConfig{
		Layers:          2,
		DownscaleFactor: 2,
		FastConf:        DefaultFASTConfig(),
		BRIEFConf:       DefaultBRIEFConfig(),
	}
}

// Validate ensures all parts of the ORBConfig are valid.
func (config *ORBConfig) Validate(path string) error {
	if config.Layers < 1 {
		return utils.NewConfigValidationError(path, errors.New("n_layers should be >= 1"))
	}
	if config.DownscaleFactor <= 1 {
		return utils.NewConfigValidationError(path, errors.New("downscale_factor should be greater than 1"))
	}
	if config.FastConf == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "fast")
	}
	if config.BRIEFConf == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "brief")
	}
	if err := config.FastConf.Validate(path); err != nil {
		return err
	}
	return config.BRIEFConf.Validate(path)
}

// ImagePyramid contains a successively downscaled stack of one image.
type ImagePyramid struct {
	Images []*image.Gray
	Scales []int
}

// GetImagePyramid computes the pyramid of an image for the given number of
// layers and downscale factor.
func GetImagePyramid(img *image.Gray, layers, factor int) *ImagePyramid {
	images := []*image.Gray{img}
	scales := []int{1}
	current := img
	for i := 1; i < layers; i++ {
		size := current.Bounds().Size()
		resized := imaging.Resize(current, size.X/factor, size.Y/factor, imaging.Linear)
		gray := rimage.MakeGray(resized)
		images = append(images, gray)
		scales = append(scales, scales[i-1]*factor)
		current = gray
	}
	return &ImagePyramid{Images: images, Scales: scales}
}

// ComputeORBKeypoints computes ORB keypoints and descriptors on a gray
// image: FAST corners over an image pyramid, oriented BRIEF descriptors.
func ComputeORBKeypoints(im *image.Gray, sp *SamplePairs, cfg *ORBConfig, featureCap int) ([]BinaryDescriptor, KeyPoints, error) {
	if cfg.Layers <= 0 {
		return nil, nil, errors.New("number of layers should be > 0")
	}
	if cfg.DownscaleFactor <= 1 {
		return nil, nil, errors.New("downscale factor should be >= 2")
	}
	pyramid := GetImagePyramid(im, cfg.Layers, cfg.DownscaleFactor)
	orbDescriptors := make([]BinaryDescriptor, 0)
	orbPoints := make(KeyPoints, 0)
	for i := 0; i < cfg.Layers; i++ {
		currentImage := pyramid.Images[i]
		currentScale := pyramid.Scales[i]
		fastKps, err := NewFASTKeypointsFromImage(currentImage, cfg.FastConf)
		if err != nil {
			return nil, nil, err
		}
		// spread the cap across layers so coarse layers still contribute
		layerCap := featureCap / cfg.Layers
		fastKps = fastKps.SelectStrongest(layerCap)
		descs, err := ComputeBRIEFDescriptors(currentImage, sp, fastKps, cfg.BRIEFConf)
		if err != nil {
			return nil, nil, err
		}
		rescaledKps := RescaleKeypoints(fastKps.Points, currentScale)
		orbPoints = append(orbPoints, rescaledKps...)
		orbDescriptors = append(orbDescriptors, descs...)
	}
	return orbDescriptors, orbPoints, nil
}

// ORBDetector detects ORB features: binary descriptors matched under the
// Hamming metric.
type ORBDetector struct {
	Config *ORBConfig
	// Seed fixes the BRIEF sampling pattern; runs sharing a seed produce
	// comparable descriptors.
	Seed int64
}

// Name implements Detector.
func (d *ORBDetector) Name() string {
	return "orb"
}

// Detect implements Detector. A zero-keypoint image yields an empty
// FeatureSet, not an error.
func (d *ORBDetector) Detect(img image.Image, featureCap int) (*FeatureSet, error) {
	cfg := d.Config
	if cfg == nil {
		cfg = DefaultORBConfig()
	}
	gray := rimage.MakeGray(img)
	r := rand.New(rand.NewSource(d.Seed))
	sp := GenerateSamplePairs(cfg.BRIEFConf.Sampling, cfg.BRIEFConf.N, cfg.BRIEFConf.PatchSize, r)
	descs, kps, err := ComputeORBKeypoints(gray, sp, cfg, featureCap)
	if err != nil {
		return nil, err
	}
	return &FeatureSet{
		Points:    kps,
		Binary:    descs,
		Metric:    Hamming,
		Algorithm: d.Name(),
		Colors:    SampleColors(img, kps),
	}, nil
}
