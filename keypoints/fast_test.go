package keypoints

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"go.viam.com/test"
)

func createTestImage() *image.Gray {
	rectImage := image.NewGray(image.Rect(0, 0, 300, 200))
	whiteRect := image.Rect(50, 30, 100, 150)
	white := color.Gray{255}
	black := color.Gray{0}
	draw.Draw(rectImage, rectImage.Bounds(), &image.Uniform{black}, image.Point{0, 0}, draw.Src)
	draw.Draw(rectImage, whiteRect, &image.Uniform{white}, image.Point{0, 0}, draw.Src)
	return rectImage
}

func TestFASTConfigValidate(t *testing.T) {
	cfg := DefaultFASTConfig()
	test.That(t, cfg.Threshold, test.ShouldEqual, 0.15)
	test.That(t, cfg.NMatchesCircle, test.ShouldEqual, 9)
	test.That(t, cfg.NMSWinSize, test.ShouldEqual, 7)
	test.That(t, cfg.Validate(""), test.ShouldBeNil)

	bad := &FASTConfig{Threshold: 0, NMatchesCircle: 9, NMSWinSize: 7}
	test.That(t, bad.Validate(""), test.ShouldNotBeNil)
	bad = &FASTConfig{Threshold: 0.15, NMatchesCircle: 17, NMSWinSize: 7}
	test.That(t, bad.Validate(""), test.ShouldNotBeNil)
	bad = &FASTConfig{Threshold: 0.15, NMatchesCircle: 9, NMSWinSize: 0}
	test.That(t, bad.Validate(""), test.ShouldNotBeNil)
}

func TestGetPointValuesInNeighborhood(t *testing.T) {
	rectImage := createTestImage()
	// cross neighborhood at the top-left rectangle corner
	vals := GetPointValuesInNeighborhood(rectImage, image.Point{50, 30}, CrossIdx)
	test.That(t, len(vals), test.ShouldEqual, 4)
	test.That(t, vals[0], test.ShouldEqual, 0)
	test.That(t, vals[1], test.ShouldEqual, 255)
	test.That(t, vals[2], test.ShouldEqual, 255)
	test.That(t, vals[3], test.ShouldEqual, 0)
	// circle neighborhood at the same corner
	valsCircle := GetPointValuesInNeighborhood(rectImage, image.Point{50, 30}, CircleIdx)
	test.That(t, len(valsCircle), test.ShouldEqual, 16)
	for i := 0; i < 4; i++ {
		test.That(t, valsCircle[i], test.ShouldEqual, 0)
	}
	for i := 4; i < 9; i++ {
		test.That(t, valsCircle[i], test.ShouldEqual, 255)
	}
	for i := 9; i < len(valsCircle); i++ {
		test.That(t, valsCircle[i], test.ShouldEqual, 0)
	}
}

func TestIsValidSlice(t *testing.T) {
	tests := []struct {
		s        []float64
		n        int
		expected bool
	}{
		{[]float64{0, 0, 0, 0, 0}, 9, false},
		{[]float64{1, 1, 1, 1, 1, 1, 1}, 3, true},
		{[]float64{0, 1, 1, 1, 0, 1, 1}, 2, true},
		{[]float64{0, 1, 1, 0, 0, 1, 0}, 2, true},
		{[]float64{0, 1, 0, 0, 0, 1, 0}, 2, false},
		// runs crossing the circular seam count too
		{[]float64{1, 1, 0, 0, 0, 0, 1, 1}, 4, true},
	}
	for _, tst := range tests {
		test.That(t, isValidSliceVals(tst.s, tst.n), test.ShouldEqual, tst.expected)
	}
}

func TestSumPositiveValues(t *testing.T) {
	tests := []struct {
		s        []float64
		expected float64
	}{
		{[]float64{0, 0, 0, 0, 0}, 0},
		{[]float64{1, -1, -1, 0, 1, 1, 1}, 4},
		{[]float64{-1, -1, -1, 0, -1, -1, -1}, 0},
	}
	for _, tst := range tests {
		test.That(t, sumOfPositiveValuesSlice(tst.s), test.ShouldEqual, tst.expected)
	}
}

func TestSumNegativeValues(t *testing.T) {
	tests := []struct {
		s        []float64
		expected float64
	}{
		{[]float64{0, 0, 0, 0, 0}, 0},
		{[]float64{1, -1, -1, 0, 1, 1, 1}, -2},
		{[]float64{-1, -1, -1, 0, -1, -1, -1}, -6},
	}
	for _, tst := range tests {
		test.That(t, sumOfNegativeValuesSlice(tst.s), test.ShouldEqual, tst.expected)
	}
}

func TestGetBrighterValues(t *testing.T) {
	tests := []struct {
		s        []float64
		t        float64
		expected []float64
	}{
		{[]float64{1, 10, 3, 1, 20, 11}, 10, []float64{0, 0, 0, 0, 1, 1}},
		{[]float64{1, 1, 1, 1}, 1, []float64{0, 0, 0, 0}},
	}
	for _, tst := range tests {
		test.That(t, getBrighterValues(tst.s, tst.t), test.ShouldResemble, tst.expected)
	}
}

func TestGetDarkerValues(t *testing.T) {
	tests := []struct {
		s        []float64
		t        float64
		expected []float64
	}{
		{[]float64{1, 10, 3, 1, 20, 11}, 10, []float64{1, 0, 1, 1, 0, 0}},
		{[]float64{1, 1, 1, 1}, 1, []float64{0, 0, 0, 0}},
	}
	for _, tst := range tests {
		test.That(t, getDarkerValues(tst.s, tst.t), test.ShouldResemble, tst.expected)
	}
}

func TestNewFASTKeypointsFromImage(t *testing.T) {
	rectImage := createTestImage()
	fastKps, err := NewFASTKeypointsFromImage(rectImage, DefaultFASTConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(fastKps.Points), test.ShouldBeGreaterThan, 0)
	test.That(t, len(fastKps.Orientations), test.ShouldEqual, len(fastKps.Points))
	test.That(t, len(fastKps.Scores), test.ShouldEqual, len(fastKps.Points))

	// every detected corner must be near a corner of the white rectangle
	corners := []image.Point{{50, 30}, {99, 30}, {50, 149}, {99, 149}}
	for _, kp := range fastKps.Points {
		nearCorner := false
		for _, c := range corners {
			dx, dy := kp.X-c.X, kp.Y-c.Y
			if dx*dx+dy*dy <= 36 {
				nearCorner = true
				break
			}
		}
		test.That(t, nearCorner, test.ShouldBeTrue)
	}

	// a uniform image has no corners
	flat := image.NewGray(image.Rect(0, 0, 100, 100))
	flatKps, err := NewFASTKeypointsFromImage(flat, DefaultFASTConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(flatKps.Points), test.ShouldEqual, 0)
}

func TestSelectStrongest(t *testing.T) {
	kps := &FASTKeypoints{
		Points:       KeyPoints{{1, 1}, {2, 2}, {3, 3}, {4, 4}},
		Orientations: []float64{0.1, 0.2, 0.3, 0.4},
		Scores:       []float64{5, 20, 10, 1},
	}
	strongest := kps.SelectStrongest(2)
	test.That(t, len(strongest.Points), test.ShouldEqual, 2)
	test.That(t, strongest.Points[0], test.ShouldResemble, image.Point{2, 2})
	test.That(t, strongest.Points[1], test.ShouldResemble, image.Point{3, 3})
	test.That(t, strongest.Scores, test.ShouldResemble, []float64{20, 10})

	// a cap larger than the set is a no-op
	all := kps.SelectStrongest(10)
	test.That(t, len(all.Points), test.ShouldEqual, 4)
}
