package rimage

import (
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"
)

func TestKernelNormalize(t *testing.T) {
	k := GetGaussian5()
	test.That(t, k.AbSum(), test.ShouldEqual, 256)
	normalized := k.Normalize()
	test.That(t, normalized.AbSum(), test.ShouldAlmostEqual, 1.0, 1e-12)
	// the original kernel is untouched
	test.That(t, k.At(2, 2), test.ShouldEqual, 36)
	test.That(t, normalized.At(2, 2), test.ShouldAlmostEqual, 36./256.)
}

func TestGaussianKernel(t *testing.T) {
	k := GaussianKernel(1.0)
	test.That(t, k.Width, test.ShouldEqual, 5)
	test.That(t, k.Height, test.ShouldEqual, 5)
	test.That(t, k.AbSum(), test.ShouldAlmostEqual, 1.0, 1e-12)
	// center dominates
	test.That(t, k.At(2, 2), test.ShouldBeGreaterThan, k.At(0, 0))

	small := GaussianKernel(0.1)
	test.That(t, small.Width, test.ShouldEqual, 3)
}

func TestPaddingGray(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetGray(x, y, color.Gray{100})
		}
	}

	padded, err := PaddingGray(img, image.Point{3, 3}, image.Point{1, 1}, BorderConstant)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, padded.Bounds().Size(), test.ShouldResemble, image.Point{6, 6})
	test.That(t, padded.GrayAt(0, 0).Y, test.ShouldEqual, uint8(0))
	test.That(t, padded.GrayAt(1, 1).Y, test.ShouldEqual, uint8(100))

	replicated, err := PaddingGray(img, image.Point{3, 3}, image.Point{1, 1}, BorderReplicate)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, replicated.GrayAt(0, 0).Y, test.ShouldEqual, uint8(100))

	_, err = PaddingGray(img, image.Point{3, 3}, image.Point{3, 1}, BorderConstant)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestConvolveGrayUniform(t *testing.T) {
	// a normalized kernel over a uniform image leaves it unchanged away from
	// constant-border effects
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.SetGray(x, y, color.Gray{128})
		}
	}
	kernel := GetGaussian5().Normalize()
	out, err := ConvolveGray(img, kernel, image.Point{2, 2}, BorderReplicate)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Bounds(), test.ShouldResemble, img.Bounds())
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			test.That(t, out.GrayAt(x, y).Y, test.ShouldEqual, uint8(128))
		}
	}
}

func TestConvolveGraySmoothsEdge(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 5; x < 10; x++ {
			img.SetGray(x, y, color.Gray{255})
		}
	}
	out, err := ConvolveGray(img, GetGaussian5().Normalize(), image.Point{2, 2}, BorderReplicate)
	test.That(t, err, test.ShouldBeNil)
	// pixels straddling the step end up strictly between the two levels
	mid := out.GrayAt(5, 5).Y
	test.That(t, mid, test.ShouldBeGreaterThan, uint8(0))
	test.That(t, mid, test.ShouldBeLessThan, uint8(255))
	// far from the step the levels survive
	test.That(t, out.GrayAt(0, 5).Y, test.ShouldEqual, uint8(0))
	test.That(t, out.GrayAt(9, 5).Y, test.ShouldEqual, uint8(255))
}
