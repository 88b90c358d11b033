// Package imageprocessor defines the face extraction contract used by the
// Aadhaar step and the pure policies around it. The OpenCV-backed
// implementation lives in the opencv subpackage.
package imageprocessor

import (
	"errors"
	"image"
)

var (
	// ErrInvalidImage means the bytes did not decode to a raster.
	ErrInvalidImage = errors.New("invalid image data")
	// ErrNoFaceDetected means the cascade found no frontal face.
	ErrNoFaceDetected = errors.New("no face detected in image")
	// ErrEncode means the cropped region could not be re-encoded.
	ErrEncode = errors.New("failed to encode cropped face")
	// ErrExtractorUnavailable is returned when no cascade model could be loaded.
	ErrExtractorUnavailable = errors.New("face extractor unavailable")
)

// FaceExtractor crops the primary face out of an encoded image and returns it
// as PNG bytes.
type FaceExtractor interface {
	ExtractFace(imageBytes []byte) ([]byte, error)
}

// DetectionParams are the cascade parameters used for Aadhaar captures.
type DetectionParams struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      image.Point
}

// DefaultDetectionParams: scale 1.1, 5 neighbours, 40x40 minimum.
var DefaultDetectionParams = DetectionParams{
	ScaleFactor:  1.1,
	MinNeighbors: 5,
	MinSize:      image.Pt(40, 40),
}

// SelectFace picks the region to crop: the first one in detector output
// order. Size and confidence are deliberately ignored.
func SelectFace(regions []image.Rectangle) (image.Rectangle, error) {
	if len(regions) == 0 {
		return image.Rectangle{}, ErrNoFaceDetected
	}
	return regions[0], nil
}

// Unavailable is a FaceExtractor that always fails with ErrExtractorUnavailable.
type Unavailable struct{}

// ExtractFace implements FaceExtractor.
func (Unavailable) ExtractFace([]byte) ([]byte, error) {
	return nil, ErrExtractorUnavailable
}

// Outcome maps an extraction error to a short metrics label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidImage):
		return "invalid_image"
	case errors.Is(err, ErrNoFaceDetected):
		return "no_face"
	case errors.Is(err, ErrEncode):
		return "encode_error"
	case errors.Is(err, ErrExtractorUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
