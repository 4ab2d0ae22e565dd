package rimage

import (
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"

	"go.viam.com/sfm/utils"
)

// Kernel is a 2 dimensional convolution kernel.
type Kernel struct {
	Content [][]float64
	Width   int
	Height  int
}

// NewKernel creates a zero kernel of the given size.
func NewKernel(width, height int) *Kernel {
	content := make([][]float64, height)
	for i := range content {
		content[i] = make([]float64, width)
	}
	return &Kernel{content, width, height}
}

// At returns the kernel value at (x, y).
func (k *Kernel) At(x, y int) float64 {
	return k.Content[y][x]
}

// Set sets the kernel value at (x, y).
func (k *Kernel) Set(x, y int, v float64) {
	k.Content[y][x] = v
}

// Size returns the kernel size as an image.Point.
func (k *Kernel) Size() image.Point {
	return image.Point{k.Width, k.Height}
}

// AbSum returns the sum of absolute values of kernel entries.
func (k *Kernel) AbSum() float64 {
	var sum float64
	for y := 0; y < k.Height; y++ {
		for x := 0; x < k.Width; x++ {
			sum += math.Abs(k.Content[y][x])
		}
	}
	return sum
}

// Normalize returns a copy of the kernel scaled so its entries sum to 1.
func (k *Kernel) Normalize() *Kernel {
	normalized := NewKernel(k.Width, k.Height)
	sum := k.AbSum()
	if sum == 0 {
		sum = 1
	}
	for y := 0; y < k.Height; y++ {
		for x := 0; x < k.Width; x++ {
			normalized.Set(x, y, k.Content[y][x]/sum)
		}
	}
	return normalized
}

// GetGaussian5 returns the 5x5 integer Gaussian smoothing kernel.
func GetGaussian5() *Kernel {
	return &Kernel{[][]float64{
		{1, 4, 6, 4, 1},
		{4, 16, 24, 16, 4},
		{6, 24, 36, 24, 6},
		{4, 16, 24, 16, 4},
		{1, 4, 6, 4, 1},
	}, 5, 5}
}

// GaussianKernel returns a Gaussian kernel whose size is derived from sigma.
func GaussianKernel(sigma float64) *Kernel {
	size := utils.MaxInt(3, 1+2*int(math.Ceil(2.*sigma)))
	half := size / 2
	k := NewKernel(size, size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x-half), float64(y-half)
			k.Set(x, y, math.Exp(-0.5*(dx*dx+dy*dy)/(sigma*sigma)))
		}
	}
	return k.Normalize()
}

// BorderPad is the padding scheme used at image borders.
type BorderPad int

const (
	// BorderConstant pads the image with zeros.
	BorderConstant BorderPad = iota
	// BorderReplicate pads the image by replicating the edge pixels.
	BorderReplicate
)

// PaddingGray pads img by the kernel size around the anchor point so a
// convolution can visit every original pixel.
func PaddingGray(img *image.Gray, kernelSize, anchor image.Point, border BorderPad) (*image.Gray, error) {
	if anchor.X < 0 || anchor.Y < 0 || anchor.X >= kernelSize.X || anchor.Y >= kernelSize.Y {
		return nil, errors.New("anchor must lie inside the kernel")
	}
	original := img.Bounds().Size()
	top, left := anchor.Y, anchor.X
	bottom, right := kernelSize.Y-anchor.Y-1, kernelSize.X-anchor.X-1
	padded := image.NewGray(image.Rect(0, 0, original.X+left+right, original.Y+top+bottom))
	size := padded.Bounds().Size()
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			sx, sy := x-left, y-top
			switch border {
			case BorderConstant:
				if sx < 0 || sy < 0 || sx >= original.X || sy >= original.Y {
					padded.SetGray(x, y, color.Gray{0})
					continue
				}
			case BorderReplicate:
				sx = utils.MinInt(utils.MaxInt(sx, 0), original.X-1)
				sy = utils.MinInt(utils.MaxInt(sy, 0), original.Y-1)
			}
			padded.SetGray(x, y, img.GrayAt(sx, sy))
		}
	}
	return padded, nil
}

// ConvolveGray applies a convolution kernel to a grayscale image. The anchor
// represents a point inside the area of the kernel; after every step of the
// convolution the position specified by the anchor point gets updated on the
// result image.
func ConvolveGray(img *image.Gray, kernel *Kernel, anchor image.Point, border BorderPad) (*image.Gray, error) {
	kernelSize := kernel.Size()
	padded, err := PaddingGray(img, kernelSize, anchor, border)
	if err != nil {
		return nil, err
	}
	originalSize := img.Bounds().Size()
	resultImage := image.NewGray(img.Bounds())
	utils.ParallelForEachPixel(originalSize, func(x, y int) {
		sum := float64(0)
		for ky := 0; ky < kernelSize.Y; ky++ {
			for kx := 0; kx < kernelSize.X; kx++ {
				pixel := padded.GrayAt(x+kx, y+ky)
				sum += float64(pixel.Y) * kernel.At(kx, ky)
			}
		}
		sum = utils.ClampF64(sum, 0, 255)
		resultImage.SetGray(x, y, color.Gray{uint8(sum)})
	})
	return resultImage, nil
}
