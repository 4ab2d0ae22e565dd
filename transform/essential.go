package transform

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/sfm/utils"
)

// CamPose stores the 3x4 pose matrix as well as the 3D rotation and
// translation matrices of the second camera relative to the first.
type CamPose struct {
	PoseMat     *mat.Dense
	Rotation    *mat.Dense
	Translation *mat.Dense
}

// NewCamPoseFromMat creates a camera pose from a 3x4 pose matrix.
func NewCamPoseFromMat(pose *mat.Dense) *CamPose {
	u3 := pose.ColView(3)
	t := mat.NewDense(3, 1, []float64{u3.AtVec(0), u3.AtVec(1), u3.AtVec(2)})
	rot := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot.Set(i, j, pose.At(i, j))
		}
	}
	return &CamPose{
		PoseMat:     pose,
		Rotation:    rot,
		Translation: t,
	}
}

// GetEssentialMatrixFromFundamental returns the essential matrix from the
// fundamental matrix and intrinsic parameters, with rank 2 enforced.
func GetEssentialMatrixFromFundamental(k1, k2, f *mat.Dense) (*mat.Dense, error) {
	var essMat, tmp mat.Dense
	tmp.Mul(transposeDense(k2), f)
	essMat.Mul(&tmp, k1)
	mats := performSVD(&essMat)
	if mats == nil {
		return nil, errors.New("failed to factorize essential matrix")
	}
	s := eye(3)
	s.Set(2, 2, 0)
	essMat.Mul(mats.U, s)
	essMat.Mul(&essMat, mats.VT)
	return &essMat, nil
}

// DecomposeEssentialMatrix decomposes the essential matrix into 2 possible
// 3D rotations and a 3D translation.
func DecomposeEssentialMatrix(essMat *mat.Dense) (*mat.Dense, *mat.Dense, *mat.Dense, error) {
	mats := performSVD(essMat)
	if mats == nil {
		return nil, nil, nil, errors.New("failed to factorize essential matrix")
	}
	// check determinant sign of U and V
	if mat.Det(mats.U) < 0 {
		mats.U.Scale(-1, mats.U)
	}
	if mat.Det(mats.VT) < 0 {
		mats.VT.Scale(-1, mats.VT)
	}
	w := mat.NewDense(3, 3, nil)
	w.Set(0, 1, 1)
	w.Set(1, 0, -1)
	w.Set(2, 2, 1)

	var r1, r2 mat.Dense
	// UWV^T
	r1.Mul(mats.U, w)
	r1.Mul(&r1, mats.VT)
	u3 := mats.U.ColView(2)
	t := mat.NewDense(3, 1, []float64{u3.AtVec(0), u3.AtVec(1), u3.AtVec(2)})
	// UW^TV^T
	r2.Mul(mats.U, transposeDense(w))
	r2.Mul(&r2, mats.VT)
	return &r1, &r2, t, nil
}

// adjustPoseSign flips a pose matrix whose rotation block has a negative
// determinant.
func adjustPoseSign(pose *mat.Dense) *mat.Dense {
	subPose := pose.Slice(0, 3, 0, 3)
	if m := mat.DenseCopyOf(subPose); mat.Det(m) < 0 {
		pose.Scale(-1, pose)
	}
	return pose
}

// GetPossibleCameraPoses computes all 4 possible poses from the essential
// matrix.
func GetPossibleCameraPoses(essMat *mat.Dense) ([]*mat.Dense, error) {
	r1, r2, t, err := DecomposeEssentialMatrix(essMat)
	if err != nil {
		return nil, err
	}
	var tOpp mat.Dense
	tOpp.Scale(-1, t)
	poses := make([]mat.Dense, 4)
	poses[0].Augment(r1, t)
	poses[1].Augment(r1, &tOpp)
	poses[2].Augment(r2, t)
	poses[3].Augment(r2, &tOpp)
	posesOut := make([]*mat.Dense, 4)
	for i := range poses {
		posesOut[i] = mat.DenseCopyOf(adjustPoseSign(&poses[i]))
	}
	return posesOut, nil
}

// GetNumberPositiveDepth computes the number of triangulated points lying in
// front of the camera described by pose (the cheirality check).
func GetNumberPositiveDepth(pose *mat.Dense, pts1, pts2 []r3.Vector) int {
	rot3 := r3.Vector{X: pose.At(2, 0), Y: pose.At(2, 1), Z: pose.At(2, 2)}
	c := r3.Vector{X: pose.At(0, 3), Y: pose.At(1, 3), Z: pose.At(2, 3)}

	identity := mat.NewDense(3, 4, nil)
	identity.Set(0, 0, 1)
	identity.Set(1, 1, 1)
	identity.Set(2, 2, 1)
	pts3D, err := TriangulatePoints(identity, pose, pts1, pts2)
	if err != nil {
		return 0
	}
	nPositiveDepth := 0
	for _, pt := range pts3D {
		if pt.Z > 0 && rot3.Dot(pt.Sub(c)) > 0 {
			nPositiveDepth++
		}
	}
	return nPositiveDepth
}

// GetCorrectCameraPose returns the pose with the most positive depth values.
func GetCorrectCameraPose(poses []*mat.Dense, pts1, pts2 []r3.Vector) *mat.Dense {
	maxNumPosDepth := 0
	correctPose := poses[0]
	for _, pose := range poses {
		nPosDepth := GetNumberPositiveDepth(pose, pts1, pts2)
		if nPosDepth > maxNumPosDepth {
			maxNumPosDepth = nPosDepth
			correctPose = mat.DenseCopyOf(pose)
		}
	}
	return correctPose
}

// sampsonDistance is the first-order approximation of the geometric
// reprojection error of a correspondence under F.
func sampsonDistance(f *mat.Dense, p1, p2 r3.Vector) float64 {
	fp1 := r3.Vector{
		X: f.At(0, 0)*p1.X + f.At(0, 1)*p1.Y + f.At(0, 2),
		Y: f.At(1, 0)*p1.X + f.At(1, 1)*p1.Y + f.At(1, 2),
		Z: f.At(2, 0)*p1.X + f.At(2, 1)*p1.Y + f.At(2, 2),
	}
	ftp2 := r3.Vector{
		X: f.At(0, 0)*p2.X + f.At(1, 0)*p2.Y + f.At(2, 0),
		Y: f.At(0, 1)*p2.X + f.At(1, 1)*p2.Y + f.At(2, 1),
		Z: f.At(0, 2)*p2.X + f.At(1, 2)*p2.Y + f.At(2, 2),
	}
	p2tFp1 := p2.X*fp1.X + p2.Y*fp1.Y + fp1.Z
	denom := fp1.X*fp1.X + fp1.Y*fp1.Y + ftp2.X*ftp2.X + ftp2.Y*ftp2.Y
	if denom == 0 {
		return math.Inf(1)
	}
	return p2tFp1 * p2tFp1 / denom
}

// RANSACOptions bundle the robust estimation parameters.
type RANSACOptions struct {
	// Probability is the desired confidence that at least one sample was
	// outlier free.
	Probability float64
	// ThresholdPx is the Sampson distance threshold in pixels.
	ThresholdPx float64
	// MaxIterations caps the sampling loop.
	MaxIterations int
	// Seed makes the estimation reproducible.
	Seed int64
}

// DefaultRANSACOptions returns the standard confidence and a 2 pixel
// threshold.
func DefaultRANSACOptions() RANSACOptions {
	return RANSACOptions{
		Probability:   0.999,
		ThresholdPx:   2.0,
		MaxIterations: 500,
		Seed:          1,
	}
}

const ransacSampleSize = 8

// EstimatePoseRANSAC robustly estimates the relative pose of the camera
// producing pts2 with respect to the camera producing pts1. A fundamental
// matrix is estimated from random 8-point samples, scored by Sampson
// distance, refit on the best inlier set, upgraded to an essential matrix
// with the camera matrix k, and decomposed with a cheirality check.
func EstimatePoseRANSAC(pts1, pts2 []r2.Point, k *mat.Dense, opts RANSACOptions) (*CamPose, []int, error) {
	if len(pts1) != len(pts2) {
		return nil, nil, errors.New("the 2 sets of points don't have the same number of elements")
	}
	if len(pts1) < ransacSampleSize {
		return nil, nil, errors.Errorf("pose estimation needs at least %d correspondences, got %d", ransacSampleSize, len(pts1))
	}
	r := rand.New(rand.NewSource(opts.Seed))
	thresholdSq := opts.ThresholdPx * opts.ThresholdPx

	pts1H := Convert2DPointsToHomogeneousPoints(pts1)
	pts2H := Convert2DPointsToHomogeneousPoints(pts2)

	var bestInliers []int
	nIterations := opts.MaxIterations
	for it := 0; it < nIterations; it++ {
		sampleIdx := utils.SampleNRandomUniqueInts(ransacSampleSize, len(pts1), r)
		sample1 := make([]r2.Point, ransacSampleSize)
		sample2 := make([]r2.Point, ransacSampleSize)
		for i, idx := range sampleIdx {
			sample1[i] = pts1[idx]
			sample2[i] = pts2[idx]
		}
		f, err := ComputeFundamentalMatrixAllPoints(sample1, sample2, true)
		if err != nil {
			continue
		}
		inliers := make([]int, 0, len(pts1))
		for i := range pts1H {
			if sampsonDistance(f, pts1H[i], pts2H[i]) < thresholdSq {
				inliers = append(inliers, i)
			}
		}
		if len(inliers) > len(bestInliers) {
			bestInliers = inliers
			// adapt the iteration count to the observed inlier ratio
			w := float64(len(inliers)) / float64(len(pts1))
			if w > 0 && w < 1 {
				denom := math.Log(1 - math.Pow(w, ransacSampleSize))
				if denom < 0 {
					if n := int(math.Ceil(math.Log(1-opts.Probability) / denom)); n < nIterations {
						nIterations = n
					}
				}
			}
		}
	}
	if len(bestInliers) < ransacSampleSize {
		return nil, nil, errors.Errorf("pose estimation found only %d inliers", len(bestInliers))
	}

	// refit on the inlier set
	in1 := make([]r2.Point, len(bestInliers))
	in2 := make([]r2.Point, len(bestInliers))
	for i, idx := range bestInliers {
		in1[i] = pts1[idx]
		in2[i] = pts2[idx]
	}
	f, err := ComputeFundamentalMatrixAllPoints(in1, in2, true)
	if err != nil {
		return nil, nil, err
	}
	essMat, err := GetEssentialMatrixFromFundamental(k, k, f)
	if err != nil {
		return nil, nil, err
	}
	poses, err := GetPossibleCameraPoses(essMat)
	if err != nil {
		return nil, nil, err
	}
	in1H := Convert2DPointsToHomogeneousPoints(in1)
	in2H := Convert2DPointsToHomogeneousPoints(in2)
	pose := GetCorrectCameraPose(poses, in1H, in2H)
	return NewCamPoseFromMat(pose), bestInliers, nil
}
