package transform

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

// synthetic two-view scene: camera 1 at the origin, camera 2 rotated about Y
// and shifted along X, both observing the same random points.
type twoViewScene struct {
	k      *mat.Dense
	rot    *mat.Dense
	trans  *mat.Dense
	points []r3.Vector
	pts1   []r2.Point
	pts2   []r2.Point
}

func makeTwoViewScene(nPoints int, seed int64) *twoViewScene {
	intrinsics := &PinholeCameraIntrinsics{
		Width: 640, Height: 480,
		Fx: 600, Fy: 600, Ppx: 320, Ppy: 240,
	}
	k := intrinsics.GetCameraMatrix()

	theta := 0.1
	rot := mat.NewDense(3, 3, []float64{
		math.Cos(theta), 0, math.Sin(theta),
		0, 1, 0,
		-math.Sin(theta), 0, math.Cos(theta),
	})
	trans := mat.NewDense(3, 1, []float64{1, 0, 0})

	r := rand.New(rand.NewSource(seed))
	scene := &twoViewScene{k: k, rot: rot, trans: trans}
	for i := 0; i < nPoints; i++ {
		p := r3.Vector{
			X: r.Float64()*4 - 2,
			Y: r.Float64()*3 - 1.5,
			Z: r.Float64()*4 + 4,
		}
		scene.points = append(scene.points, p)
		scene.pts1 = append(scene.pts1, projectPoint(k, nil, nil, p))
		scene.pts2 = append(scene.pts2, projectPoint(k, rot, trans, p))
	}
	return scene
}

func projectPoint(k, rot, trans *mat.Dense, p r3.Vector) r2.Point {
	x, y, z := p.X, p.Y, p.Z
	if rot != nil {
		x = rot.At(0, 0)*p.X + rot.At(0, 1)*p.Y + rot.At(0, 2)*p.Z + trans.At(0, 0)
		y = rot.At(1, 0)*p.X + rot.At(1, 1)*p.Y + rot.At(1, 2)*p.Z + trans.At(1, 0)
		z = rot.At(2, 0)*p.X + rot.At(2, 1)*p.Y + rot.At(2, 2)*p.Z + trans.At(2, 0)
	}
	return r2.Point{
		X: k.At(0, 0)*x/z + k.At(0, 2),
		Y: k.At(1, 1)*y/z + k.At(1, 2),
	}
}

func TestNewEstimatedIntrinsics(t *testing.T) {
	intrinsics, err := NewEstimatedIntrinsics(640, 480)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, intrinsics.Fx, test.ShouldAlmostEqual, 1.2*640)
	test.That(t, intrinsics.Fy, test.ShouldAlmostEqual, 1.2*640)
	test.That(t, intrinsics.Ppx, test.ShouldAlmostEqual, 320)
	test.That(t, intrinsics.Ppy, test.ShouldAlmostEqual, 240)

	// portrait images take the focal length from the height
	portrait, err := NewEstimatedIntrinsics(480, 640)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, portrait.Fx, test.ShouldAlmostEqual, 1.2*640)

	_, err = NewEstimatedIntrinsics(0, 480)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestProjectionMatrix(t *testing.T) {
	intrinsics := &PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 600, Fy: 600, Ppx: 320, Ppy: 240}
	rot := eye(3)
	trans := mat.NewDense(3, 1, []float64{0, 0, 0})
	p := intrinsics.ProjectionMatrix(rot, trans)
	rows, cols := p.Dims()
	test.That(t, rows, test.ShouldEqual, 3)
	test.That(t, cols, test.ShouldEqual, 4)
	test.That(t, p.At(0, 0), test.ShouldAlmostEqual, 600)
	test.That(t, p.At(0, 2), test.ShouldAlmostEqual, 320)
	test.That(t, p.At(2, 3), test.ShouldAlmostEqual, 0)
}

func TestComputeFundamentalMatrixAllPoints(t *testing.T) {
	scene := makeTwoViewScene(40, 3)
	f, err := ComputeFundamentalMatrixAllPoints(scene.pts1, scene.pts2, true)
	test.That(t, err, test.ShouldBeNil)

	// every noiseless correspondence satisfies the epipolar constraint
	pts1H := Convert2DPointsToHomogeneousPoints(scene.pts1)
	pts2H := Convert2DPointsToHomogeneousPoints(scene.pts2)
	for i := range pts1H {
		test.That(t, sampsonDistance(f, pts1H[i], pts2H[i]), test.ShouldBeLessThan, 1e-6)
	}

	_, err = ComputeFundamentalMatrixAllPoints(scene.pts1[:7], scene.pts2[:7], true)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ComputeFundamentalMatrixAllPoints(scene.pts1, scene.pts2[:10], true)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestGetEssentialMatrixFromFundamental(t *testing.T) {
	scene := makeTwoViewScene(40, 4)
	f, err := ComputeFundamentalMatrixAllPoints(scene.pts1, scene.pts2, true)
	test.That(t, err, test.ShouldBeNil)
	essMat, err := GetEssentialMatrixFromFundamental(scene.k, scene.k, f)
	test.That(t, err, test.ShouldBeNil)

	// rank 2
	test.That(t, math.Abs(mat.Det(essMat)), test.ShouldBeLessThan, 1e-8)

	// the normalized correspondences satisfy x2n^T E x1n = 0
	var kInv mat.Dense
	test.That(t, kInv.Inverse(scene.k), test.ShouldBeNil)
	var scale float64
	for i := range scene.pts1 {
		x1 := mat.NewVecDense(3, []float64{scene.pts1[i].X, scene.pts1[i].Y, 1})
		x2 := mat.NewVecDense(3, []float64{scene.pts2[i].X, scene.pts2[i].Y, 1})
		var n1, n2, ex1 mat.VecDense
		n1.MulVec(&kInv, x1)
		n2.MulVec(&kInv, x2)
		ex1.MulVec(essMat, &n1)
		residual := mat.Dot(&n2, &ex1)
		test.That(t, math.Abs(residual), test.ShouldBeLessThan, 1e-8)
		scale += ex1.Norm(2)
	}
	// E is not degenerate: the epipolar lines have nonzero magnitude
	test.That(t, scale, test.ShouldBeGreaterThan, 1e-3)
}

func TestGetPossibleCameraPoses(t *testing.T) {
	scene := makeTwoViewScene(40, 5)
	f, err := ComputeFundamentalMatrixAllPoints(scene.pts1, scene.pts2, true)
	test.That(t, err, test.ShouldBeNil)
	essMat, err := GetEssentialMatrixFromFundamental(scene.k, scene.k, f)
	test.That(t, err, test.ShouldBeNil)
	poses, err := GetPossibleCameraPoses(essMat)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(poses), test.ShouldEqual, 4)
	for _, pose := range poses {
		rows, cols := pose.Dims()
		test.That(t, rows, test.ShouldEqual, 3)
		test.That(t, cols, test.ShouldEqual, 4)
		rot := mat.DenseCopyOf(pose.Slice(0, 3, 0, 3))
		test.That(t, mat.Det(rot), test.ShouldAlmostEqual, 1.0, 1e-6)
	}
}

func TestEstimatePoseRANSAC(t *testing.T) {
	scene := makeTwoViewScene(100, 6)

	// corrupt a tail of the correspondences with gross outliers
	pts2 := make([]r2.Point, len(scene.pts2))
	copy(pts2, scene.pts2)
	nOutliers := 20
	for i := len(pts2) - nOutliers; i < len(pts2); i++ {
		pts2[i].X += 150 + float64(i)
		pts2[i].Y -= 120 + float64(i)
	}

	opts := DefaultRANSACOptions()
	pose, inliers, err := EstimatePoseRANSAC(scene.pts1, pts2, scene.k, opts)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(inliers), test.ShouldBeGreaterThanOrEqualTo, len(pts2)-nOutliers-5)
	for _, idx := range inliers {
		test.That(t, idx, test.ShouldBeLessThan, len(pts2)-nOutliers)
	}

	// recovered rotation matches the ground truth
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			test.That(t, pose.Rotation.At(i, j), test.ShouldAlmostEqual, scene.rot.At(i, j), 0.02)
		}
	}
	// translation is recovered up to scale; the ground truth is already unit
	tNorm := math.Hypot(math.Hypot(pose.Translation.At(0, 0), pose.Translation.At(1, 0)), pose.Translation.At(2, 0))
	test.That(t, tNorm, test.ShouldAlmostEqual, 1.0, 1e-6)
	test.That(t, pose.Translation.At(0, 0), test.ShouldAlmostEqual, 1.0, 0.05)
	test.That(t, math.Abs(pose.Translation.At(1, 0)), test.ShouldBeLessThan, 0.05)
	test.That(t, math.Abs(pose.Translation.At(2, 0)), test.ShouldBeLessThan, 0.05)

	// the same seed reproduces the same inlier set
	_, inliersAgain, err := EstimatePoseRANSAC(scene.pts1, pts2, scene.k, opts)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, inliersAgain, test.ShouldResemble, inliers)

	_, _, err = EstimatePoseRANSAC(scene.pts1[:5], pts2[:5], scene.k, opts)
	test.That(t, err, test.ShouldNotBeNil)
	_, _, err = EstimatePoseRANSAC(scene.pts1, pts2[:50], scene.k, opts)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestTriangulatePoints(t *testing.T) {
	scene := makeTwoViewScene(30, 7)
	intrinsics := &PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 600, Fy: 600, Ppx: 320, Ppy: 240}
	p1 := intrinsics.ProjectionMatrix(eye(3), mat.NewDense(3, 1, nil))
	p2 := intrinsics.ProjectionMatrix(scene.rot, scene.trans)

	pts3d, err := TriangulatePoints(
		p1, p2,
		Convert2DPointsToHomogeneousPoints(scene.pts1),
		Convert2DPointsToHomogeneousPoints(scene.pts2),
	)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(pts3d), test.ShouldEqual, len(scene.points))
	for i, p := range pts3d {
		test.That(t, IsFinite(p), test.ShouldBeTrue)
		test.That(t, p.X, test.ShouldAlmostEqual, scene.points[i].X, 1e-5)
		test.That(t, p.Y, test.ShouldAlmostEqual, scene.points[i].Y, 1e-5)
		test.That(t, p.Z, test.ShouldAlmostEqual, scene.points[i].Z, 1e-5)
	}

	_, err = TriangulatePoints(p1, p2, nil, Convert2DPointsToHomogeneousPoints(scene.pts2))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestIsFinite(t *testing.T) {
	test.That(t, IsFinite(r3.Vector{X: 1, Y: 2, Z: 3}), test.ShouldBeTrue)
	test.That(t, IsFinite(r3.Vector{X: math.NaN()}), test.ShouldBeFalse)
	test.That(t, IsFinite(r3.Vector{Z: math.Inf(1)}), test.ShouldBeFalse)
	test.That(t, IsFinite(r3.Vector{Y: math.Inf(-1)}), test.ShouldBeFalse)
}
