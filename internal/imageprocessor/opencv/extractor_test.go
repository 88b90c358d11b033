package opencv

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/example/kyc-voice/internal/imageprocessor"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	extractor, err := NewExtractor(os.Getenv("OPENCV_CASCADE_PATH"), zap.NewNop())
	if err != nil {
		t.Skipf("cascade model not available: %v", err)
	}
	t.Cleanup(func() { extractor.Close() })
	return extractor
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode fixture: %v", err)
	}
	return buf.Bytes()
}

func TestExtractFaceRejectsGarbage(t *testing.T) {
	extractor := newTestExtractor(t)

	_, err := extractor.ExtractFace([]byte("definitely not an image"))
	if !errors.Is(err, imageprocessor.ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
}

func TestExtractFaceBlankCanvas(t *testing.T) {
	extractor := newTestExtractor(t)

	canvas := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			canvas.Set(x, y, color.White)
		}
	}

	_, err := extractor.ExtractFace(encodePNG(t, canvas))
	if !errors.Is(err, imageprocessor.ErrNoFaceDetected) {
		t.Fatalf("expected ErrNoFaceDetected, got %v", err)
	}
}

// TestExtractFaceFixture runs against a real portrait when one is provided
// through KYC_FACE_FIXTURE.
func TestExtractFaceFixture(t *testing.T) {
	fixture := os.Getenv("KYC_FACE_FIXTURE")
	if fixture == "" {
		t.Skip("KYC_FACE_FIXTURE not set")
	}
	extractor := newTestExtractor(t)

	input, err := os.ReadFile(fixture)
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}
	original, _, err := image.DecodeConfig(bytes.NewReader(input))
	if err != nil {
		t.Fatalf("fixture is not decodable: %v", err)
	}

	out, err := extractor.ExtractFace(input)
	if err != nil {
		t.Fatalf("expected a face, got error: %v", err)
	}
	cropped, err := png.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if cropped.Width > original.Width || cropped.Height > original.Height {
		t.Fatalf("crop %dx%d larger than input %dx%d", cropped.Width, cropped.Height, original.Width, original.Height)
	}
}

func TestCascadeCandidates(t *testing.T) {
	dir := filepath.Join("models", "custom")
	candidates := cascadeCandidates(dir)
	if candidates[0] != filepath.Join(dir, CascadeFile) {
		t.Fatalf("expected directory candidate first, got %s", candidates[0])
	}

	file := filepath.Join("models", "face.xml")
	if got := cascadeCandidates(file)[0]; got != file {
		t.Fatalf("expected explicit file first, got %s", got)
	}

	if got := len(cascadeCandidates("")); got != len(fallbackCascadeDirs) {
		t.Fatalf("expected %d fallback candidates, got %d", len(fallbackCascadeDirs), got)
	}
}
