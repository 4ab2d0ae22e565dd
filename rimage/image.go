// Package rimage provides image loading, validation and the small set of
// raster operations the reconstruction pipeline needs: grayscale
// conversion, convolution and color sampling.
package rimage

import (
	"image"
	"image/color"
	"image/draw"
	// register decoders for DecodeConfig.
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// neutralGray is the fallback color sample for out-of-bounds keypoints,
// roughly 0.8 of full scale per channel.
var neutralGray = color.NRGBA{R: 204, G: 204, B: 204, A: 255}

// ReadImageFromFile decodes an image (JPEG or PNG) from disk.
func ReadImageFromFile(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read image %q", path)
	}
	return img, nil
}

// ValidateImageFile decodes only the header of an image file and returns its
// dimensions. It is cheap enough to run over every input before full
// decoding starts.
func ValidateImageFile(path string) (width, height int, err error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "cannot decode image %q", path)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, errors.Errorf("image %q has invalid dimensions (%d, %d)", path, cfg.Width, cfg.Height)
	}
	return cfg.Width, cfg.Height, nil
}

// MakeGray converts any image to a grayscale image.Gray.
func MakeGray(pic image.Image) *image.Gray {
	result := image.NewGray(pic.Bounds())
	draw.Draw(result, result.Bounds(), pic, pic.Bounds().Min, draw.Src)
	return result
}

// SampleColorAt returns the color of the pixel at (x, y). Samples outside
// the image bounds fall back to a neutral gray.
func SampleColorAt(img image.Image, x, y int) color.NRGBA {
	bounds := img.Bounds()
	if !(image.Point{x, y}).In(bounds) {
		return neutralGray
	}
	r, g, b, _ := img.At(x, y).RGBA()
	return color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 255}
}
