package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// nearZeroW guards dehomogenization against points at infinity.
const nearZeroW = 1e-9

// getCrossProductMatFromPoint returns the skew-symmetric cross product
// matrix of p.
func getCrossProductMatFromPoint(p r3.Vector) *mat.Dense {
	cross := mat.NewDense(3, 3, nil)
	cross.Set(0, 1, -p.Z)
	cross.Set(0, 2, p.Y)
	cross.Set(1, 0, p.Z)
	cross.Set(1, 2, -p.X)
	cross.Set(2, 0, -p.Y)
	cross.Set(2, 1, p.X)
	return cross
}

// TriangulatePoints lifts 2D correspondences into 3D points with the direct
// linear transform: for each pair the system p×(PX)=0 is stacked for both
// cameras and solved by SVD. Points whose homogeneous scale is near zero or
// whose coordinates are not finite are returned as (NaN, NaN, NaN) for the
// caller to drop.
func TriangulatePoints(p1Mat, p2Mat *mat.Dense, pts1, pts2 []r3.Vector) ([]r3.Vector, error) {
	if len(pts1) != len(pts2) {
		return nil, errors.New("the 2 sets of points don't have the same number of elements")
	}
	pts3d := make([]r3.Vector, len(pts1))
	for i := range pts1 {
		p1Cross := getCrossProductMatFromPoint(pts1[i])
		p2Cross := getCrossProductMatFromPoint(pts2[i])
		p1CrossP := mat.NewDense(3, 4, nil)
		p1CrossP.Mul(p1Cross, p1Mat)
		p2CrossP := mat.NewDense(3, 4, nil)
		p2CrossP.Mul(p2Cross, p2Mat)
		var a mat.Dense
		a.Stack(p1CrossP, p2CrossP)

		var svd mat.SVD
		if ok := svd.Factorize(&a, mat.SVDFull); !ok {
			return nil, errors.New("failed to factorize triangulation system")
		}
		var v mat.Dense
		svd.VTo(&v)
		w := v.At(3, 3)
		if math.Abs(w) < nearZeroW {
			pts3d[i] = r3.Vector{X: math.NaN(), Y: math.NaN(), Z: math.NaN()}
			continue
		}
		pts3d[i] = r3.Vector{
			X: v.At(0, 3) / w,
			Y: v.At(1, 3) / w,
			Z: v.At(2, 3) / w,
		}
	}
	return pts3d, nil
}

// IsFinite reports whether all components of v are finite.
func IsFinite(v r3.Vector) bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}
