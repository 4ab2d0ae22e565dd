package keypoints

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// MatchingConfig contains the parameters for matching two descriptor sets.
type MatchingConfig struct {
	// Ratio is Lowe's ratio: a correspondence is kept only if its best
	// distance is strictly less than Ratio times the second best.
	Ratio float64 `json:"ratio"`
	// DoCrossCheck additionally requires the match to be mutual.
	DoCrossCheck bool `json:"do_cross_check"`
}

// DefaultMatchingConfig returns the standard 0.75 ratio test without
// cross-checking.
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{Ratio: 0.75}
}

// Correspondence pairs a keypoint index in the first set with one in the
// second set.
type Correspondence struct {
	Idx1 int
	Idx2 int
}

// two nearest neighbors of one query descriptor.
type twoNearest struct {
	bestIdx    int
	bestDist   float64
	secondDist float64
}

func searchTwoNearest(query int, fs1, fs2 *FeatureSet) (twoNearest, error) {
	nearest := twoNearest{bestIdx: -1, bestDist: math.Inf(1), secondDist: math.Inf(1)}
	for j := 0; j < fs2.Len(); j++ {
		var d float64
		switch fs1.Metric {
		case Hamming:
			di, err := HammingDistance(fs1.Binary[query], fs2.Binary[j])
			if err != nil {
				return nearest, err
			}
			d = float64(di)
		case Euclidean:
			de, err := EuclideanDistance(fs1.Float[query], fs2.Float[j])
			if err != nil {
				return nearest, err
			}
			d = de
		}
		if d < nearest.bestDist {
			nearest.secondDist = nearest.bestDist
			nearest.bestDist = d
			nearest.bestIdx = j
		} else if d < nearest.secondDist {
			nearest.secondDist = d
		}
	}
	return nearest, nil
}

// MatchDescriptors matches two feature sets of the same metric: for every
// descriptor in fs1 its two nearest neighbors in fs2 are found and the pair
// is accepted only if it passes the ratio test. Accepted correspondences are
// returned ordered by ascending best distance.
func MatchDescriptors(fs1, fs2 *FeatureSet, cfg *MatchingConfig, logger golog.Logger) ([]Correspondence, error) {
	if fs1.Metric != fs2.Metric {
		return nil, errors.Errorf("feature sets have different metrics (%s != %s)", fs1.Metric, fs2.Metric)
	}
	if cfg == nil {
		cfg = DefaultMatchingConfig()
	}
	if fs1.Len() == 0 || fs2.Len() < 2 {
		return nil, nil
	}

	idx1 := make([]int, 0, fs1.Len())
	idx2 := make([]int, 0, fs1.Len())
	dists := make([]float64, 0, fs1.Len())
	for i := 0; i < fs1.Len(); i++ {
		nearest, err := searchTwoNearest(i, fs1, fs2)
		if err != nil {
			return nil, err
		}
		if nearest.bestIdx < 0 || math.IsInf(nearest.secondDist, 1) {
			continue
		}
		if nearest.bestDist >= cfg.Ratio*nearest.secondDist {
			continue
		}
		idx1 = append(idx1, i)
		idx2 = append(idx2, nearest.bestIdx)
		dists = append(dists, nearest.bestDist)
	}

	if cfg.DoCrossCheck {
		kept1 := idx1[:0]
		kept2 := idx2[:0]
		keptD := dists[:0]
		for k := range idx1 {
			reverse, err := searchTwoNearest(idx2[k], fs2, fs1)
			if err != nil {
				return nil, err
			}
			if reverse.bestIdx == idx1[k] {
				kept1 = append(kept1, idx1[k])
				kept2 = append(kept2, idx2[k])
				keptD = append(keptD, dists[k])
			}
		}
		idx1, idx2, dists = kept1, kept2, keptD
	}

	// order by match quality
	sortedIndices := make([]int, len(dists))
	floats.Argsort(dists, sortedIndices)
	matches := make([]Correspondence, len(sortedIndices))
	for i, idx := range sortedIndices {
		matches[i] = Correspondence{Idx1: idx1[idx], Idx2: idx2[idx]}
	}
	if logger != nil {
		logger.Debugf("matched %d/%d descriptors", len(matches), fs1.Len())
	}
	return matches, nil
}

// GetMatchingKeyPoints returns the two keypoint slices referenced by the
// given correspondences.
func GetMatchingKeyPoints(matches []Correspondence, fs1, fs2 *FeatureSet) (KeyPoints, KeyPoints, error) {
	kps1 := make(KeyPoints, len(matches))
	kps2 := make(KeyPoints, len(matches))
	for i, m := range matches {
		if m.Idx1 >= fs1.Len() || m.Idx2 >= fs2.Len() {
			return nil, nil, errors.New("correspondence references a keypoint outside its set")
		}
		kps1[i] = fs1.Points[m.Idx1]
		kps2[i] = fs2.Points[m.Idx2]
	}
	return kps1, kps2, nil
}
