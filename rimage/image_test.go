package rimage

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
	"go.viam.com/utils"
)

func writeTempPNG(t *testing.T, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "img.png")
	f, err := os.Create(path)
	test.That(t, err, test.ShouldBeNil)
	defer utils.UncheckedErrorFunc(f.Close)
	test.That(t, png.Encode(f, img), test.ShouldBeNil)
	return path
}

func TestReadImageFromFile(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 20, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 20; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 20), B: 7, A: 255})
		}
	}
	path := writeTempPNG(t, src)

	img, err := ReadImageFromFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Size(), test.ShouldResemble, image.Point{20, 10})

	_, err = ReadImageFromFile(filepath.Join(t.TempDir(), "missing.png"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestValidateImageFile(t *testing.T) {
	path := writeTempPNG(t, image.NewGray(image.Rect(0, 0, 32, 24)))
	w, h, err := ValidateImageFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, w, test.ShouldEqual, 32)
	test.That(t, h, test.ShouldEqual, 24)

	_, _, err = ValidateImageFile(filepath.Join(t.TempDir(), "missing.png"))
	test.That(t, err, test.ShouldNotBeNil)

	// not an image at all
	badPath := filepath.Join(t.TempDir(), "bad.png")
	test.That(t, os.WriteFile(badPath, []byte("not an image"), 0o600), test.ShouldBeNil)
	_, _, err = ValidateImageFile(badPath)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestMakeGray(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	src.SetNRGBA(1, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	gray := MakeGray(src)
	test.That(t, gray.Bounds(), test.ShouldResemble, src.Bounds())
	test.That(t, gray.GrayAt(1, 1).Y, test.ShouldEqual, uint8(255))
	test.That(t, gray.GrayAt(0, 0).Y, test.ShouldEqual, uint8(0))
}

func TestSampleColorAt(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	src.SetNRGBA(2, 3, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	c := SampleColorAt(src, 2, 3)
	test.That(t, c, test.ShouldResemble, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	// out-of-bounds samples fall back to neutral gray
	c = SampleColorAt(src, -1, 0)
	test.That(t, c, test.ShouldResemble, color.NRGBA{R: 204, G: 204, B: 204, A: 255})
	c = SampleColorAt(src, 4, 4)
	test.That(t, c, test.ShouldResemble, color.NRGBA{R: 204, G: 204, B: 204, A: 255})
}
