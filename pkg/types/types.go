package types

import "image"

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Empty reports whether the box has no area
func (b Box) Empty() bool {
	return b.W <= 0 || b.H <= 0
}

// Rect converts the box to pixel coordinates within bounds
func (b Box) Rect(bounds image.Rectangle) image.Rectangle {
	fw, fh := float64(bounds.Dx()), float64(bounds.Dy())
	r := image.Rect(
		int(clamp(b.X, 0, 1)*fw+0.5),
		int(clamp(b.Y, 0, 1)*fh+0.5),
		int(clamp(b.X+b.W, 0, 1)*fw+0.5),
		int(clamp(b.Y+b.H, 0, 1)*fh+0.5),
	)
	return r.Add(bounds.Min).Intersect(bounds)
}

// BoxFromRect normalizes a pixel rectangle against bounds
func BoxFromRect(r, bounds image.Rectangle) Box {
	fw, fh := float64(bounds.Dx()), float64(bounds.Dy())
	if fw == 0 || fh == 0 {
		return Box{}
	}
	r = r.Sub(bounds.Min)
	return Box{
		X: float64(r.Min.X) / fw,
		Y: float64(r.Min.Y) / fh,
		W: float64(r.Dx()) / fw,
		H: float64(r.Dy()) / fh,
	}
}

// Subject is the dominant object a vision model located in an image
type Subject struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
	Cx         float64 `json:"cx"`
	Cy         float64 `json:"cy"`
}

// LocateResult is the vision model answer for a subject query
type LocateResult struct {
	Primary     Subject  `json:"primary"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// OverlayConfig controls how keypoint overlays are written
type OverlayConfig struct {
	Format   string
	Quality  int
	Lossless bool
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
