package types

import (
	"image"
	"testing"
)

func TestBoxRect(t *testing.T) {
	bounds := image.Rect(10, 20, 110, 220)
	b := Box{X: 0.25, Y: 0.5, W: 0.5, H: 0.25}

	got := b.Rect(bounds)
	want := image.Rect(35, 120, 85, 170)
	if got != want {
		t.Errorf("Rect() = %v, want %v", got, want)
	}

	back := BoxFromRect(got, bounds)
	if back != b {
		t.Errorf("BoxFromRect() = %+v, want %+v", back, b)
	}
}

func TestBoxRectClamps(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 100)
	got := Box{X: -0.5, Y: 0.9, W: 2, H: 0.5}.Rect(bounds)
	want := image.Rect(0, 90, 100, 100)
	if got != want {
		t.Errorf("Rect() = %v, want %v", got, want)
	}
}

func TestBoxEmpty(t *testing.T) {
	if !(Box{W: 0, H: 1}).Empty() {
		t.Error("zero-width box should be empty")
	}
	if (Box{W: 0.1, H: 0.1}).Empty() {
		t.Error("box with area should not be empty")
	}
}
