package pointcloud

import (
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"go.viam.com/sfm/utils"
)

// Centroid returns the component-wise median of the cloud positions. The
// median is preferred over the mean so a long tail of spurious far-away
// points cannot drag the center.
func Centroid(pc *PointCloud) (r3.Vector, error) {
	if pc.Size() == 0 {
		return r3.Vector{}, errors.New("cannot compute the centroid of an empty point cloud")
	}
	xs := make([]float64, 0, pc.Size())
	ys := make([]float64, 0, pc.Size())
	zs := make([]float64, 0, pc.Size())
	pc.Iterate(func(p r3.Vector, _ Data) bool {
		xs = append(xs, p.X)
		ys = append(ys, p.Y)
		zs = append(zs, p.Z)
		return true
	})
	return r3.Vector{
		X: utils.Median(xs...),
		Y: utils.Median(ys...),
		Z: utils.Median(zs...),
	}, nil
}

// StatisticalOutlierFilter removes points whose distance to the cloud
// centroid exceeds the given quantile of the distance distribution.
// Triangulation from noisy correspondences produces a long tail of spurious
// far-away points that would otherwise dominate the bounding volume and
// corrupt meshing.
func StatisticalOutlierFilter(pc *PointCloud, quantile float64) (*PointCloud, error) {
	if quantile <= 0 || quantile > 1 {
		return nil, errors.Errorf("quantile must be in (0, 1], got %f", quantile)
	}
	if pc.Size() == 0 {
		return New(), nil
	}
	center, err := Centroid(pc)
	if err != nil {
		return nil, err
	}
	dists := make([]float64, 0, pc.Size())
	pc.Iterate(func(p r3.Vector, _ Data) bool {
		dists = append(dists, p.Sub(center).Norm())
		return true
	})
	sorted := make([]float64, len(dists))
	copy(sorted, dists)
	sort.Float64s(sorted)
	cutoff := stat.Quantile(quantile, stat.Empirical, sorted, nil)

	filtered := NewWithPrealloc(pc.Size())
	for i := range dists {
		if dists[i] < cutoff {
			p, d := pc.At(i)
			filtered.Append(p, d)
		}
	}
	// a degenerate distribution (all points identical) keeps everything
	if filtered.Size() == 0 {
		return pc, nil
	}
	return filtered, nil
}
