// Package keypoints implements the feature detection, description and
// matching primitives of the reconstruction pipeline: FAST keypoints, BRIEF
// and gradient-histogram descriptors, and ratio-test matching.
package keypoints

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"go.viam.com/sfm/rimage"
)

type (
	// KeyPoint is an image.Point that contains coordinates of a kp.
	KeyPoint image.Point
	// KeyPoints is a slice of image.Point that contains several kps.
	KeyPoints []image.Point
)

// computeMaskOrientation creates the disk mask used to compute orientations
// of corners from intensity moments.
func computeMaskOrientation() *image.Gray {
	mask := image.NewGray(image.Rect(0, 0, 31, 31))
	indices := []int{15, 15, 15, 15, 14, 14, 14, 13, 13, 12, 11, 10, 9, 8, 6, 3}
	for i := -15; i < 16; i++ {
		for j := -indices[int(math.Abs(float64(i)))]; j < indices[int(math.Abs(float64(i)))]+1; j++ {
			mask.Set(j+15, i+15, color.Gray{1})
		}
	}
	return mask
}

// ComputeKeypointsOrientations computes the intensity-centroid orientation of
// every keypoint in the corresponding image.
func ComputeKeypointsOrientations(img *image.Gray, kps KeyPoints) ([]float64, error) {
	nRows, nCols := 31, 31
	nRows2 := (nRows - 1) / 2
	nCols2 := (nCols - 1) / 2
	mask := computeMaskOrientation()
	padded, err := rimage.PaddingGray(img, image.Point{nCols, nRows}, image.Point{nCols2, nRows2}, rimage.BorderConstant)
	if err != nil {
		return nil, err
	}
	orientations := make([]float64, len(kps))
	for i, kp := range kps {
		m01, m10 := 0, 0
		for y := 0; y < nRows; y++ {
			m01Temp := 0
			for x := 0; x < nCols; x++ {
				if mask.At(x, y).(color.Gray).Y > 0 {
					pixVal := int(padded.At(x+kp.X, y+kp.Y).(color.Gray).Y)
					m10 += pixVal * (x - nCols2)
					m01Temp += pixVal
				}
			}
			m01 += m01Temp * (y - nRows2)
		}
		orientations[i] = math.Atan2(float64(m01), float64(m10))
	}
	return orientations, nil
}

// RescaleKeypoints rescales keypoints detected on a downscaled pyramid layer
// back into original image coordinates.
func RescaleKeypoints(kps KeyPoints, scale int) KeyPoints {
	rescaled := make(KeyPoints, len(kps))
	for i, kp := range kps {
		rescaled[i] = image.Point{kp.X * scale, kp.Y * scale}
	}
	return rescaled
}

// SampleColors samples the source image at every keypoint location.
func SampleColors(img image.Image, kps KeyPoints) []color.NRGBA {
	colors := make([]color.NRGBA, len(kps))
	for i, kp := range kps {
		colors[i] = rimage.SampleColorAt(img, kp.X, kp.Y)
	}
	return colors
}

// PlotKeypoints plots keypoints on the image and saves the result as a PNG.
// Debug helper, only wired when plotting is enabled in the config.
func PlotKeypoints(img *image.Gray, kps KeyPoints, outName string) error {
	w, h := img.Bounds().Max.X, img.Bounds().Max.Y

	dc := gg.NewContext(w, h)
	dc.DrawImage(img, 0, 0)

	dc.SetRGBA(0, 0, 1, 0.5)
	for _, p := range kps {
		dc.DrawCircle(float64(p.X), float64(p.Y), 3.0)
		dc.Fill()
	}
	dc.SetFontFace(basicfont.Face7x13)
	dc.SetRGB(1, 1, 0)
	dc.DrawString(fmt.Sprintf("%d keypoints", len(kps)), 5, 15)
	return dc.SavePNG(outName)
}
