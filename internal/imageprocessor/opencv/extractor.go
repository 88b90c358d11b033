// Package opencv implements imageprocessor.FaceExtractor with an OpenCV Haar
// cascade through gocv. Building it requires the OpenCV 4 libraries.
package opencv

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/example/kyc-voice/internal/imageprocessor"
)

// CascadeFile is the frontal face model shipped with OpenCV.
const CascadeFile = "haarcascade_frontalface_default.xml"

var fallbackCascadeDirs = []string{
	".",
	"./models/haarcascades",
	"/usr/local/share/opencv4/haarcascades",
	"/usr/share/opencv4/haarcascades",
	"/opt/homebrew/share/opencv4/haarcascades",
}

// Extractor detects and crops faces. The classifier is not safe for
// concurrent detection, so calls are serialized.
type Extractor struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
	params     imageprocessor.DetectionParams
	logger     *zap.Logger
}

// NewExtractor loads the frontal face cascade. cascadePath may be the XML file
// itself or a directory containing it; when empty or unusable the common
// OpenCV install locations are tried.
func NewExtractor(cascadePath string, logger *zap.Logger) (*Extractor, error) {
	classifier := gocv.NewCascadeClassifier()
	loaded := ""
	for _, candidate := range cascadeCandidates(cascadePath) {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if classifier.Load(candidate) {
			loaded = candidate
			break
		}
	}
	if loaded == "" {
		classifier.Close()
		return nil, fmt.Errorf("%w: could not load %s (OPENCV_CASCADE_PATH=%q)", imageprocessor.ErrExtractorUnavailable, CascadeFile, cascadePath)
	}

	logger.Named("face_extractor").Info("face cascade loaded", zap.String("path", loaded))
	return &Extractor{
		classifier: classifier,
		params:     imageprocessor.DefaultDetectionParams,
		logger:     logger.Named("face_extractor"),
	}, nil
}

func cascadeCandidates(cascadePath string) []string {
	var candidates []string
	if cascadePath != "" {
		if filepath.Ext(cascadePath) == ".xml" {
			candidates = append(candidates, cascadePath)
		} else {
			candidates = append(candidates, filepath.Join(cascadePath, CascadeFile))
		}
	}
	for _, dir := range fallbackCascadeDirs {
		candidates = append(candidates, filepath.Join(dir, CascadeFile))
	}
	return candidates
}

// ExtractFace implements imageprocessor.FaceExtractor.
func (e *Extractor) ExtractFace(imageBytes []byte) ([]byte, error) {
	if len(imageBytes) == 0 {
		return nil, imageprocessor.ErrInvalidImage
	}
	img, err := gocv.IMDecode(imageBytes, gocv.IMReadColor)
	if err != nil {
		return nil, imageprocessor.ErrInvalidImage
	}
	defer img.Close()
	if img.Empty() {
		return nil, imageprocessor.ErrInvalidImage
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	regions := e.detect(gray)
	face, err := imageprocessor.SelectFace(regions)
	if err != nil {
		return nil, err
	}
	face = face.Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
	if face.Empty() {
		return nil, imageprocessor.ErrNoFaceDetected
	}

	e.logger.Debug("face detected",
		zap.Int("faces", len(regions)),
		zap.Int("x", face.Min.X), zap.Int("y", face.Min.Y),
		zap.Int("w", face.Dx()), zap.Int("h", face.Dy()))

	cropped := img.Region(face)
	defer cropped.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, cropped)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", imageprocessor.ErrEncode, err)
	}
	defer buf.Close()

	encoded := buf.GetBytes()
	if len(encoded) == 0 {
		return nil, imageprocessor.ErrEncode
	}
	out := make([]byte, len(encoded))
	copy(out, encoded)
	return out, nil
}

func (e *Extractor) detect(gray gocv.Mat) []image.Rectangle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.classifier.DetectMultiScaleWithParams(
		gray,
		e.params.ScaleFactor,
		e.params.MinNeighbors,
		0,
		e.params.MinSize,
		image.Point{},
	)
}

// Close releases the native classifier.
func (e *Extractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.classifier.Close()
}
