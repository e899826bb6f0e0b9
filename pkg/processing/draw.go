package processing

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/menta2k/siftkit/pkg/sift"
	"github.com/menta2k/siftkit/pkg/types"
)

// DrawOptions controls keypoint markers. A negative Thickness fills the circle.
type DrawOptions struct {
	Color     color.NRGBA
	Radius    int
	Thickness int
}

// DefaultDrawOptions returns white rings of radius 1 and thickness 5
func DefaultDrawOptions() DrawOptions {
	return DrawOptions{Color: color.NRGBA{255, 255, 255, 255}, Radius: 1, Thickness: 5}
}

// DrawCircle draws a circle centered on pt. Pixels within Thickness/2 of the
// circle line are set; a negative Thickness fills the disk instead.
func DrawCircle(img *image.NRGBA, pt image.Point, opts DrawOptions) {
	r := float64(max(opts.Radius, 0))
	inner, outer := r-float64(opts.Thickness)/2, r+float64(opts.Thickness)/2
	if opts.Thickness < 0 {
		inner, outer = -1, r
	}
	ext := int(math.Ceil(outer))
	area := image.Rect(pt.X-ext, pt.Y-ext, pt.X+ext+1, pt.Y+ext+1).Intersect(img.Bounds())
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			d := math.Hypot(float64(x-pt.X), float64(y-pt.Y))
			if d <= outer && d >= inner {
				img.SetNRGBA(x, y, opts.Color)
			}
		}
	}
}

// DrawPoint draws a filled circle
func DrawPoint(img *image.NRGBA, pt image.Point, opts DrawOptions) {
	opts.Thickness = -1
	DrawCircle(img, pt, opts)
}

// DrawKeypoints returns a copy of img with a marker at every location in c
func DrawKeypoints(img image.Image, c sift.Collection, opts DrawOptions) *image.NRGBA {
	out := imaging.Clone(img)
	origin := img.Bounds().Min
	for i := range c.Len() {
		x, y := c.Location(i)
		DrawCircle(out, toPoint(x, y).Sub(origin), opts)
	}
	return out
}

// DrawFeatures draws each feature as a circle scaled to its detection scale
// with a tick along its orientation
func DrawFeatures(img image.Image, fs []sift.Feature, opts DrawOptions) *image.NRGBA {
	out := imaging.Clone(img)
	origin := img.Bounds().Min
	for _, f := range fs {
		center := toPoint(f.X, f.Y).Sub(origin)
		ring := opts
		ring.Radius = max(int(math.Round(2*f.Scale)), opts.Radius)
		ring.Thickness = 1
		DrawCircle(out, center, ring)
		tip := center.Add(toPoint(float64(ring.Radius)*math.Cos(f.Orientation), float64(ring.Radius)*math.Sin(f.Orientation)))
		DrawLine(out, center, tip, opts.Color)
	}
	return out
}

// DrawMatches places a and b side by side and joins each pair of matched points
func DrawMatches(a, b image.Image, pa, pb []r2.Vec, opts DrawOptions) *image.NRGBA {
	ab, bb := a.Bounds(), b.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, ab.Dx()+bb.Dx(), max(ab.Dy(), bb.Dy())))
	draw.Draw(out, image.Rect(0, 0, ab.Dx(), ab.Dy()), a, ab.Min, draw.Src)
	draw.Draw(out, image.Rect(ab.Dx(), 0, ab.Dx()+bb.Dx(), bb.Dy()), b, bb.Min, draw.Src)

	shift := image.Pt(ab.Dx(), 0)
	for i := range min(len(pa), len(pb)) {
		p := toPoint(pa[i].X, pa[i].Y).Sub(ab.Min)
		q := toPoint(pb[i].X, pb[i].Y).Sub(bb.Min).Add(shift)
		DrawLine(out, p, q, opts.Color)
		DrawPoint(out, p, opts)
		DrawPoint(out, q, opts)
	}
	return out
}

// DrawBox outlines a normalized box with the given stroke width
func DrawBox(img *image.NRGBA, box types.Box, c color.NRGBA, stroke int) {
	r := box.Rect(img.Bounds())
	if r.Empty() {
		return
	}
	for s := range max(stroke, 1) {
		drawHLine(img, r.Min.Y+s, r.Min.X, r.Max.X, c)
		drawHLine(img, r.Max.Y-1-s, r.Min.X, r.Max.X, c)
		drawVLine(img, r.Min.X+s, r.Min.Y, r.Max.Y, c)
		drawVLine(img, r.Max.X-1-s, r.Min.Y, r.Max.Y, c)
	}
}

// DrawLine draws a one pixel line from p to q
func DrawLine(img *image.NRGBA, p, q image.Point, c color.NRGBA) {
	dx, dy := abs(q.X-p.X), -abs(q.Y-p.Y)
	sx, sy := sign(q.X-p.X), sign(q.Y-p.Y)
	e := dx + dy
	for {
		if p.In(img.Bounds()) {
			img.SetNRGBA(p.X, p.Y, c)
		}
		if p == q {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			p.X += sx
		}
		if e2 <= dx {
			e += dx
			p.Y += sy
		}
	}
}

func toPoint(x, y float64) image.Point {
	return image.Pt(int(math.Round(x)), int(math.Round(y)))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	b := img.Bounds()
	if y < b.Min.Y || y >= b.Max.Y {
		return
	}
	for x := max(x0, b.Min.X); x < min(x1, b.Max.X); x++ {
		img.SetNRGBA(x, y, c)
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	b := img.Bounds()
	if x < b.Min.X || x >= b.Max.X {
		return
	}
	for y := max(y0, b.Min.Y); y < min(y1, b.Max.Y); y++ {
		img.SetNRGBA(x, y, c)
	}
}
