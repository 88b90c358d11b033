package imageprocessor

import (
	"errors"
	"fmt"
	"image"
	"testing"
)

func TestSelectFaceReturnsFirstRegion(t *testing.T) {
	small := image.Rect(10, 10, 50, 50)
	large := image.Rect(100, 100, 400, 400)

	got, err := SelectFace([]image.Rectangle{small, large})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if got != small {
		t.Fatalf("expected first region %v, got %v", small, got)
	}
}

func TestSelectFaceWithoutRegions(t *testing.T) {
	for _, regions := range [][]image.Rectangle{nil, {}} {
		if _, err := SelectFace(regions); !errors.Is(err, ErrNoFaceDetected) {
			t.Fatalf("expected ErrNoFaceDetected, got %v", err)
		}
	}
}

func TestDefaultDetectionParams(t *testing.T) {
	if DefaultDetectionParams.ScaleFactor != 1.1 || DefaultDetectionParams.MinNeighbors != 5 {
		t.Fatalf("unexpected params: %+v", DefaultDetectionParams)
	}
	if DefaultDetectionParams.MinSize != image.Pt(40, 40) {
		t.Fatalf("unexpected min size: %v", DefaultDetectionParams.MinSize)
	}
}

func TestUnavailableExtractor(t *testing.T) {
	if _, err := (Unavailable{}).ExtractFace([]byte("img")); !errors.Is(err, ErrExtractorUnavailable) {
		t.Fatalf("expected ErrExtractorUnavailable, got %v", err)
	}
}

func TestOutcome(t *testing.T) {
	cases := map[error]string{
		nil:                                  "ok",
		ErrInvalidImage:                      "invalid_image",
		fmt.Errorf("x: %w", ErrNoFaceDetected): "no_face",
		ErrEncode:                            "encode_error",
		ErrExtractorUnavailable:              "unavailable",
		errors.New("other"):                  "error",
	}
	for err, want := range cases {
		if got := Outcome(err); got != want {
			t.Errorf("Outcome(%v) = %q, want %q", err, got, want)
		}
	}
}
