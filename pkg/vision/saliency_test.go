package vision

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

// createTestImage creates a simple test image with some patterns
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			switch {
			case x > width/4 && x < width/2 && y > height/4 && y < 3*height/4:
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			case x > 3*width/4 && y > height/4 && y < 3*height/4:
				img.Set(x, y, color.RGBA{0, 0, 0, 255})
			default:
				r := uint8((x * 128) / width)
				g := uint8((y * 128) / height)
				img.Set(x, y, color.RGBA{r, g, 64, 255})
			}
		}
	}
	return img
}

func TestNew(t *testing.T) {
	detector := New()
	if detector.config != DefaultConfig() {
		t.Errorf("New() config = %+v, want defaults", detector.config)
	}

	cfg := DefaultConfig()
	cfg.EdgeThreshold = 0.2
	if got := NewWithConfig(cfg).config.EdgeThreshold; got != 0.2 {
		t.Errorf("Expected edge threshold 0.2, got %f", got)
	}
}

func TestRegion(t *testing.T) {
	region := Region{X: 10, Y: 20, Width: 100, Height: 80}

	if x, y := region.Center(); x != 60 || y != 60 {
		t.Errorf("Center() = (%d, %d), want (60, 60)", x, y)
	}
	if region.Area() != 8000 {
		t.Errorf("Area() = %d, want 8000", region.Area())
	}
	if region.Rect() != image.Rect(10, 20, 110, 100) {
		t.Errorf("Rect() = %v", region.Rect())
	}
}

func TestSaliency(t *testing.T) {
	m := New().Saliency(createTestImage(100, 100))

	if m.Width != 100 || m.Height != 100 {
		t.Fatalf("map size %dx%d, want 100x100", m.Width, m.Height)
	}
	if m.At(0, 0) != 0 {
		t.Error("border should be zero")
	}
	// an edge pixel of the white square scores above its interior
	if m.At(25, 50) <= m.At(24, 50) && m.At(26, 50) <= m.At(24, 50) {
		t.Error("expected higher saliency on the square edge")
	}
	if m.At(40, 50) <= m.At(90, 50) {
		t.Error("white interior should beat black interior")
	}
}

func TestDetectSubjects(t *testing.T) {
	regions, err := New().DetectSubjects(createTestImage(400, 300))
	if err != nil {
		t.Fatalf("DetectSubjects failed: %v", err)
	}
	if len(regions) == 0 || len(regions) > 10 {
		t.Fatalf("got %d regions", len(regions))
	}
	for i, region := range regions {
		if region.Width <= 0 || region.Height <= 0 {
			t.Errorf("Region %d has invalid dimensions: %dx%d", i, region.Width, region.Height)
		}
		if i > 0 && region.Score > regions[i-1].Score {
			t.Errorf("Region %d out of order", i)
		}
	}
}

func TestDetectSubjectsEmpty(t *testing.T) {
	_, err := New().DetectSubjects(image.NewGray(image.Rect(0, 0, 0, 0)))
	if !errors.Is(err, ErrEmptyImage) {
		t.Errorf("err = %v, want ErrEmptyImage", err)
	}
}

func TestMask(t *testing.T) {
	img := createTestImage(400, 300)
	mask, err := New().Mask(img, 1)
	if err != nil {
		t.Fatalf("Mask failed: %v", err)
	}
	if mask.Bounds() != img.Bounds() {
		t.Fatalf("mask bounds %v, want %v", mask.Bounds(), img.Bounds())
	}
	if mask.GrayAt(150, 150).Y != 255 {
		t.Error("expected the white square to be masked in")
	}
	if mask.GrayAt(350, 30).Y != 0 {
		t.Error("expected the background corner to be masked out")
	}
}

func TestMaskNoSubject(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EdgeThreshold = 10
	_, err := NewWithConfig(cfg).Mask(createTestImage(400, 300), 0)
	if !errors.Is(err, ErrNoSubject) {
		t.Errorf("err = %v, want ErrNoSubject", err)
	}
}

func TestRectMask(t *testing.T) {
	bounds := image.Rect(5, 5, 15, 15)
	mask := RectMask(bounds, image.Rect(0, 0, 8, 8), image.Rect(12, 12, 40, 40))

	if mask.GrayAt(7, 7).Y != 255 || mask.GrayAt(14, 14).Y != 255 {
		t.Error("expected rectangles to be set")
	}
	if mask.GrayAt(10, 10).Y != 0 {
		t.Error("expected gap to be clear")
	}
}

func BenchmarkDetectSubjects(b *testing.B) {
	detector := New()
	img := createTestImage(400, 300)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = detector.DetectSubjects(img)
	}
}
