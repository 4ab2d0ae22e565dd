package keypoints

import (
	"image"
	"sort"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/floats"
)

// FASTConfig holds the parameters for FAST corner detection.
type FASTConfig struct {
	// Threshold is the relative intensity delta (fraction of full scale) a
	// circle pixel must differ from the center by to count.
	Threshold float64 `json:"threshold"`
	// NMatchesCircle is the number of contiguous circle pixels that must all
	// be brighter or all darker than the center.
	NMatchesCircle int `json:"n_matches_circle"`
	// NMSWinSize is the window size for non-maximum suppression.
	NMSWinSize int `json:"nms_win_size"`
}

// DefaultFASTConfig returns the FAST parameters used when a caller does not
// provide their own.
func DefaultFASTConfig() *FASTConfig {
	return &FASTConfig{
		Threshold:      0.15,
		NMatchesCircle: 9,
		NMSWinSize:     7,
	}
}

// Validate ensures all parts of the FASTConfig are valid.
func (config *FASTConfig) Validate(path string) error {
	if config.Threshold <= 0 || config.Threshold >= 1 {
		return utils.NewConfigValidationError(path, errors.New("threshold should be in (0, 1)"))
	}
	if config.NMatchesCircle < 2 || config.NMatchesCircle > 16 {
		return utils.NewConfigValidationError(path, errors.New("n_matches_circle should be in [2, 16]"))
	}
	if config.NMSWinSize < 1 {
		return utils.NewConfigValidationError(path, errors.New("nms_win_size should be >= 1"))
	}
	return nil
}

var (
	// CircleIdx are the 16 Bresenham circle offsets of radius 3 around a
	// candidate corner, in clockwise order.
	CircleIdx = []image.Point{
		{0, -3}, {1, -3}, {2, -2}, {3, -1}, {3, 0}, {3, 1}, {2, 2}, {1, 3},
		{0, 3}, {-1, 3}, {-2, 2}, {-3, 1}, {-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
	}
	// CrossIdx are the 4 cardinal offsets used for the fast rejection test.
	CrossIdx = []image.Point{{0, -3}, {3, 0}, {0, 3}, {-3, 0}}
)

// FASTKeypoints stores keypoints and their corresponding orientations and
// corner scores.
type FASTKeypoints struct {
	Points       KeyPoints
	Orientations []float64
	Scores       []float64
}

// GetPointValuesInNeighborhood returns the intensities at the given offsets
// around point p.
func GetPointValuesInNeighborhood(img *image.Gray, p image.Point, neighborhood []image.Point) []float64 {
	vals := make([]float64, len(neighborhood))
	for i, off := range neighborhood {
		vals[i] = float64(img.GrayAt(p.X+off.X, p.Y+off.Y).Y)
	}
	return vals
}

func getBrighterValues(s []float64, t float64) []float64 {
	brighter := make([]float64, len(s))
	for i := range s {
		if s[i] > t {
			brighter[i] = 1
		}
	}
	return brighter
}

func getDarkerValues(s []float64, t float64) []float64 {
	darker := make([]float64, len(s))
	for i := range s {
		if s[i] < t {
			darker[i] = 1
		}
	}
	return darker
}

// isValidSliceVals returns true if s, treated as a circular binary slice,
// contains a run of at least n consecutive ones.
func isValidSliceVals(s []float64, n int) bool {
	if sumOfPositiveValuesSlice(s) < float64(n) {
		return false
	}
	run := 0
	// wrap around once to catch runs crossing the seam
	for i := 0; i < 2*len(s); i++ {
		if s[i%len(s)] > 0 {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

func sumOfPositiveValuesSlice(s []float64) float64 {
	var sum float64
	for _, v := range s {
		if v > 0 {
			sum += v
		}
	}
	return sum
}

func sumOfNegativeValuesSlice(s []float64) float64 {
	var sum float64
	for _, v := range s {
		if v < 0 {
			sum += v
		}
	}
	return sum
}

// cornerScore is the sum of absolute intensity differences between the
// center pixel and its circle, used to rank and suppress corners.
func cornerScore(center float64, circleVals []float64) float64 {
	var score float64
	for _, v := range circleVals {
		d := v - center
		if d < 0 {
			d = -d
		}
		score += d
	}
	return score
}

// NewFASTKeypointsFromImage detects FAST corners in a grayscale image and
// computes their orientations. Corners are non-maximum suppressed within the
// configured window.
func NewFASTKeypointsFromImage(img *image.Gray, cfg *FASTConfig) (*FASTKeypoints, error) {
	if cfg == nil {
		cfg = DefaultFASTConfig()
	}
	bounds := img.Bounds()
	w, h := bounds.Max.X, bounds.Max.Y
	threshold := cfg.Threshold * 255.

	candidates := make(KeyPoints, 0, 256)
	scores := make([]float64, 0, 256)
	for y := 3; y < h-3; y++ {
		for x := 3; x < w-3; x++ {
			p := image.Point{x, y}
			center := float64(img.GrayAt(x, y).Y)
			// cheap rejection on the cross neighborhood first
			crossVals := GetPointValuesInNeighborhood(img, p, CrossIdx)
			nBrightCross := sumOfPositiveValuesSlice(getBrighterValues(crossVals, center+threshold))
			nDarkCross := sumOfPositiveValuesSlice(getDarkerValues(crossVals, center-threshold))
			if nBrightCross < 3 && nDarkCross < 3 {
				continue
			}
			circleVals := GetPointValuesInNeighborhood(img, p, CircleIdx)
			brighter := getBrighterValues(circleVals, center+threshold)
			darker := getDarkerValues(circleVals, center-threshold)
			if !isValidSliceVals(brighter, cfg.NMatchesCircle) && !isValidSliceVals(darker, cfg.NMatchesCircle) {
				continue
			}
			candidates = append(candidates, p)
			scores = append(scores, cornerScore(center, circleVals))
		}
	}
	points, kept := nonMaximumSuppression(candidates, scores, cfg.NMSWinSize)
	orientations, err := ComputeKeypointsOrientations(img, points)
	if err != nil {
		return nil, err
	}
	return &FASTKeypoints{Points: points, Orientations: orientations, Scores: kept}, nil
}

// nonMaximumSuppression keeps only the highest-scoring corner within each
// winSize x winSize neighborhood.
func nonMaximumSuppression(kps KeyPoints, scores []float64, winSize int) (KeyPoints, []float64) {
	bestInCell := make(map[image.Point]int)
	for i, kp := range kps {
		cell := image.Point{kp.X / winSize, kp.Y / winSize}
		if j, ok := bestInCell[cell]; !ok || scores[i] > scores[j] {
			bestInCell[cell] = i
		}
	}
	// deterministic output order regardless of map iteration
	indices := make([]int, 0, len(bestInCell))
	for _, idx := range bestInCell {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	points := make(KeyPoints, 0, len(indices))
	kept := make([]float64, 0, len(indices))
	for _, idx := range indices {
		points = append(points, kps[idx])
		kept = append(kept, scores[idx])
	}
	return points, kept
}

// SelectStrongest keeps at most cap keypoints, preferring the highest corner
// scores. The input order is preserved for the survivors.
func (kps *FASTKeypoints) SelectStrongest(cap int) *FASTKeypoints {
	if cap <= 0 || len(kps.Points) <= cap {
		return kps
	}
	negScores := make([]float64, len(kps.Scores))
	for i, s := range kps.Scores {
		negScores[i] = -s
	}
	indices := make([]int, len(negScores))
	floats.Argsort(negScores, indices)

	keep := make(map[int]bool, cap)
	for _, idx := range indices[:cap] {
		keep[idx] = true
	}
	out := &FASTKeypoints{
		Points:       make(KeyPoints, 0, cap),
		Orientations: make([]float64, 0, cap),
		Scores:       make([]float64, 0, cap),
	}
	for i := range kps.Points {
		if !keep[i] {
			continue
		}
		out.Points = append(out.Points, kps.Points[i])
		out.Orientations = append(out.Orientations, kps.Orientations[i])
		out.Scores = append(out.Scores, kps.Scores[i])
	}
	return out
}
