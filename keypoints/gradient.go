package keypoints

import (
	"image"
	"math"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/sfm/rimage"
)

// GradientConfig stores the parameters for the gradient-histogram float
// descriptor used by the balanced and quality modes.
type GradientConfig struct {
	// PatchSize is the square window described around a keypoint.
	PatchSize int `json:"patch_size"`
	// Cells is the number of cells per patch axis.
	Cells int `json:"cells"`
	// Bins is the number of orientation bins per cell.
	Bins int `json:"bins"`
	// FastConf configures the underlying corner detection.
	FastConf *FASTConfig `json:"fast"`
}

// DefaultGradientConfig returns a 4x4-cell, 8-bin (128 dimensional)
// configuration over a 16 pixel patch.
func DefaultGradientConfig() *GradientConfig {
	return &GradientConfig{
		PatchSize: 16,
		Cells:     4,
		Bins:      8,
		FastConf:  DefaultFASTConfig(),
	}
}

// Validate ensures all parts of the GradientConfig are valid.
func (config *GradientConfig) Validate(path string) error {
	if config.Cells < 1 || config.Bins < 2 {
		return utils.NewConfigValidationError(path, errors.New("cells should be >= 1 and bins >= 2"))
	}
	if config.PatchSize < config.Cells || config.PatchSize%config.Cells != 0 {
		return utils.NewConfigValidationError(path, errors.New("patch_size should be a positive multiple of cells"))
	}
	if config.FastConf == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "fast")
	}
	return config.FastConf.Validate(path)
}

// descriptorClamp bounds single histogram entries before renormalization so
// one dominant gradient cannot swamp the descriptor.
const descriptorClamp = 0.2

// ComputeGradientDescriptors computes per-keypoint gradient orientation
// histograms: Cells x Cells cells of Bins bins each, rotated by the keypoint
// orientation, L2 normalized with entry clamping.
func ComputeGradientDescriptors(img *image.Gray, kps *FASTKeypoints, cfg *GradientConfig) ([]FloatDescriptor, error) {
	blurred, err := rimage.ConvolveGray(img, rimage.GetGaussian5().Normalize(), image.Point{2, 2}, rimage.BorderReplicate)
	if err != nil {
		return nil, err
	}
	bounds := blurred.Bounds()
	half := cfg.PatchSize / 2
	cellSize := cfg.PatchSize / cfg.Cells
	dims := cfg.Cells * cfg.Cells * cfg.Bins

	grayAt := func(x, y int) float64 {
		return float64(blurred.GrayAt(x, y).Y)
	}

	descs := make([]FloatDescriptor, len(kps.Points))
	for k, kp := range kps.Points {
		desc := make(FloatDescriptor, dims)
		descs[k] = desc
		if kp.X-half-1 < bounds.Min.X || kp.Y-half-1 < bounds.Min.Y ||
			kp.X+half+1 >= bounds.Max.X || kp.Y+half+1 >= bounds.Max.Y {
			continue
		}
		cosTheta, sinTheta := 1.0, 0.0
		if kps.Orientations != nil {
			cosTheta = math.Cos(kps.Orientations[k])
			sinTheta = math.Sin(kps.Orientations[k])
		}
		for dy := -half; dy < half; dy++ {
			for dx := -half; dx < half; dx++ {
				x, y := kp.X+dx, kp.Y+dy
				gx := grayAt(x+1, y) - grayAt(x-1, y)
				gy := grayAt(x, y+1) - grayAt(x, y-1)
				mag := math.Hypot(gx, gy)
				if mag == 0 {
					continue
				}
				// gradient orientation relative to the keypoint orientation
				theta := math.Atan2(gy, gx) - math.Atan2(sinTheta, cosTheta)
				for theta < 0 {
					theta += 2 * math.Pi
				}
				bin := int(theta/(2*math.Pi)*float64(cfg.Bins)) % cfg.Bins
				cellX := (dx + half) / cellSize
				cellY := (dy + half) / cellSize
				desc[(cellY*cfg.Cells+cellX)*cfg.Bins+bin] += mag
			}
		}
		normalizeDescriptor(desc)
		clamped := false
		for i := range desc {
			if desc[i] > descriptorClamp {
				desc[i] = descriptorClamp
				clamped = true
			}
		}
		if clamped {
			normalizeDescriptor(desc)
		}
	}
	return descs, nil
}

func normalizeDescriptor(desc FloatDescriptor) {
	var norm float64
	for _, v := range desc {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return
	}
	for i := range desc {
		desc[i] /= norm
	}
}

// GradientDetector detects FAST corners and describes them with float
// gradient histograms matched under the Euclidean metric.
type GradientDetector struct {
	Config *GradientConfig
}

// Name implements Detector.
func (d *GradientDetector) Name() string {
	return "gradient"
}

// Detect implements Detector.
func (d *GradientDetector) Detect(img image.Image, featureCap int) (*FeatureSet, error) {
	cfg := d.Config
	if cfg == nil {
		cfg = DefaultGradientConfig()
	}
	gray := rimage.MakeGray(img)
	fastKps, err := NewFASTKeypointsFromImage(gray, cfg.FastConf)
	if err != nil {
		return nil, err
	}
	fastKps = fastKps.SelectStrongest(featureCap)
	descs, err := ComputeGradientDescriptors(gray, fastKps, cfg)
	if err != nil {
		return nil, err
	}
	return &FeatureSet{
		Points:    fastKps.Points,
		Float:     descs,
		Metric:    Euclidean,
		Algorithm: d.Name(),
		Colors:    SampleColors(img, fastKps.Points),
	}, nil
}
