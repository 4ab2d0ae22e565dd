package sfm

import (
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/sfm/keypoints"
)

// Mode trades reconstruction speed against density and accuracy. It is
// the only algorithm selector exposed to callers; everything it implies
// (detector, RANSAC threshold, mesh resolution) is a pure lookup.
type Mode string

// The three supported reconstruction modes.
const (
	ModeFast     Mode = "fast"
	ModeBalanced Mode = "balanced"
	ModeQuality  Mode = "quality"
)

// minImages is the smallest capture an incremental reconstruction can
// chain poses across.
const minImages = 8

// Capabilities describes optional algorithm support. Balanced and
// quality modes prefer float gradient descriptors and fall back to ORB
// when they are unavailable.
type Capabilities struct {
	FloatDescriptors bool
}

// DefaultCapabilities enables everything this build ships.
func DefaultCapabilities() Capabilities {
	return Capabilities{FloatDescriptors: true}
}

// Config is the full configuration of one reconstruction run.
type Config struct {
	ImagePaths      []string `json:"image_paths"`
	Mode            Mode     `json:"mode"`
	FeatureCap      int      `json:"feature_cap"`
	MinMatches      int      `json:"min_matches"`
	MatchRatio      float64  `json:"match_ratio"`
	WrapMatch       bool     `json:"wrap_match"`
	OutputDirectory string   `json:"output_directory"`
	SkipMesh        bool     `json:"skip_mesh"`
	PlotKeypoints   bool     `json:"plot_keypoints"`
	// Seed fixes descriptor sampling and RANSAC; runs sharing a seed over
	// the same input produce the same counts.
	Seed int64 `json:"seed"`
}

// DefaultConfig returns a balanced-mode configuration with the standard
// caps and thresholds.
func DefaultConfig() *Config {
	return &Config{
		Mode:       ModeBalanced,
		FeatureCap: 4000,
		MinMatches: 80,
		MatchRatio: 0.75,
		Seed:       1,
	}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if len(c.ImagePaths) == 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "image_paths")
	}
	if c.OutputDirectory == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "output_directory")
	}
	switch c.Mode {
	case ModeFast, ModeBalanced, ModeQuality:
	default:
		return goutils.NewConfigValidationError(path, errors.Errorf("unknown mode %q", c.Mode))
	}
	if c.FeatureCap <= 0 {
		return goutils.NewConfigValidationError(path, errors.New("feature_cap should be > 0"))
	}
	if c.MinMatches < 8 {
		return goutils.NewConfigValidationError(path, errors.New("min_matches should be >= 8"))
	}
	if c.MatchRatio < 0.70 || c.MatchRatio > 0.75 {
		return goutils.NewConfigValidationError(path, errors.New("match_ratio should be in [0.70, 0.75]"))
	}
	return nil
}

// detector returns the feature detector implied by the mode. Balanced
// and quality modes use float gradient descriptors when the build
// supports them; fast mode always uses binary ORB.
func (m Mode) detector(caps Capabilities, seed int64) keypoints.Detector {
	if m != ModeFast && caps.FloatDescriptors {
		return &keypoints.GradientDetector{Config: keypoints.DefaultGradientConfig()}
	}
	return &keypoints.ORBDetector{Config: keypoints.DefaultORBConfig(), Seed: seed}
}

// defaultFeatureCap is the keypoint cap applied when the config leaves
// feature_cap unset; fast mode trades density for speed.
func (m Mode) defaultFeatureCap() int {
	if m == ModeFast {
		return 2000
	}
	return 4000
}

// ransacThresholdPx is the Sampson distance threshold in pixels for the
// mode: looser thresholds converge faster, tighter ones keep fewer but
// cleaner inliers.
func (m Mode) ransacThresholdPx() float64 {
	switch m {
	case ModeFast:
		return 2.0
	case ModeQuality:
		return 1.0
	case ModeBalanced:
		fallthrough
	default:
		return 1.5
	}
}

// voxelResolution is the density grid resolution along the longest
// bounding box axis used for implicit meshing.
func (m Mode) voxelResolution() int {
	switch m {
	case ModeFast:
		return 48
	case ModeQuality:
		return 80
	case ModeBalanced:
		fallthrough
	default:
		return 64
	}
}
