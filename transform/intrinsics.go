// Package transform implements the two-view geometry of the reconstruction
// pipeline: pinhole intrinsics, fundamental/essential matrix estimation with
// RANSAC, relative pose recovery with a cheirality check, and linear
// triangulation.
package transform

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// PinholeCameraIntrinsics holds the parameters necessary to project a 3D
// scene onto the 2D image plane. One approximate calibration is shared by
// all images of a capture.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// focalScale approximates the focal length as a multiple of the larger image
// dimension when no calibration is available.
const focalScale = 1.2

// NewEstimatedIntrinsics derives an approximate pinhole calibration from
// image dimensions alone: focal length proportional to the larger dimension
// and the principal point at the image center.
func NewEstimatedIntrinsics(width, height int) (*PinholeCameraIntrinsics, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("cannot estimate intrinsics from dimensions (%d, %d)", width, height)
	}
	f := focalScale * float64(max(width, height))
	return &PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     f,
		Fy:     f,
		Ppx:    float64(width) / 2.,
		Ppy:    float64(height) / 2.,
	}, nil
}

// GetCameraMatrix returns the intrinsics as a 3x3 camera matrix K.
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	k := mat.NewDense(3, 3, nil)
	k.Set(0, 0, params.Fx)
	k.Set(1, 1, params.Fy)
	k.Set(0, 2, params.Ppx)
	k.Set(1, 2, params.Ppy)
	k.Set(2, 2, 1)
	return k
}

// ProjectionMatrix composes the 3x4 projection K[R|t] for a camera with the
// given extrinsics.
func (params *PinholeCameraIntrinsics) ProjectionMatrix(rotation, translation *mat.Dense) *mat.Dense {
	var rt mat.Dense
	rt.Augment(rotation, translation)
	p := mat.NewDense(3, 4, nil)
	p.Mul(params.GetCameraMatrix(), &rt)
	return p
}
