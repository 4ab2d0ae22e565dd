package keypoints

import "image"

// Detector turns an image into a FeatureSet. Implementations form a closed
// set; which one runs is a pure lookup on the reconstruction mode.
type Detector interface {
	// Detect finds at most featureCap keypoints in img and describes them.
	// An image with no detectable keypoints yields an empty FeatureSet.
	Detect(img image.Image, featureCap int) (*FeatureSet, error)
	// Name identifies the algorithm, e.g. "orb".
	Name() string
}
