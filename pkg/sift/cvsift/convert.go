// Package cvsift is a sift.Backend over OpenCV's SIFT through gocv. The
// backend itself is only built with the gocv build tag; the keypoint
// conversions in this file are always available.
package cvsift

import (
	"math"

	"github.com/menta2k/siftkit/pkg/sift"
)

// Name is the registry name of the backend.
const Name = "opencv"

const sigma = 1.6

// Octave is OpenCV's packed keypoint octave field: the octave index in the
// low byte (-1 for the doubled base image), the layer in the second byte and
// the sub-layer offset, scaled to 0..255, in the third.
type Octave struct {
	Index int
	Layer int
	Sub   float64
}

// UnpackOctave decodes a packed octave field.
func UnpackOctave(packed int) Octave {
	idx := packed & 0xff
	if idx >= 128 {
		idx -= 256
	}
	return Octave{
		Index: idx,
		Layer: (packed >> 8) & 0xff,
		Sub:   float64((packed>>16)&0xff)/255 - 0.5,
	}
}

// Pack encodes o as an OpenCV octave field.
func (o Octave) Pack() int {
	sub := int(math.Round((o.Sub + 0.5) * 255))
	sub = min(max(sub, 0), 255)
	return (o.Index & 0xff) | (o.Layer&0xff)<<8 | sub<<16
}

// angleToOrientation maps an OpenCV angle in degrees to an orientation in
// radians in [-pi, pi). OpenCV measures angles clockwise in image space.
func angleToOrientation(deg float64) float64 {
	if deg < 0 {
		return 0
	}
	ori := -deg * math.Pi / 180
	for ori < -math.Pi {
		ori += 2 * math.Pi
	}
	for ori >= math.Pi {
		ori -= 2 * math.Pi
	}
	return ori
}

func orientationToAngle(ori float64) float64 {
	deg := math.Mod(-ori*180/math.Pi, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// keypoint carries the OpenCV keypoint fields the conversions need, so they
// do not depend on gocv.
type keypoint struct {
	X, Y, Size, Angle, Response float64
	Octave                      int
}

// toFeature converts an OpenCV keypoint. Octave indexes are shifted by one
// so that the doubled base image is octave 0, as in the pure backend.
func toFeature(kp keypoint, layers int, recalc bool) sift.Feature {
	o := UnpackOctave(kp.Octave)
	scale := math.Ldexp(1, -o.Index)
	f := sift.Feature{
		X:        kp.X,
		Y:        kp.Y,
		Scale:    kp.Size / 2,
		Response: float32(kp.Response),
		Data: sift.FeatureData{
			R:           int(math.Round(kp.Y * scale)),
			C:           int(math.Round(kp.X * scale)),
			Octave:      o.Index + 1,
			Interval:    o.Layer,
			SubInterval: o.Sub,
			ScaleOctave: sigma * math.Pow(2, (float64(o.Layer)+o.Sub)/float64(max(layers, 1))),
		},
	}
	if recalc {
		f.Orientation = angleToOrientation(kp.Angle)
	}
	return f
}

// fromRecord rebuilds the OpenCV keypoint for a stored record.
func fromRecord(rec *sift.CFeature, d *sift.CFeatureData) keypoint {
	return keypoint{
		X:        rec.X,
		Y:        rec.Y,
		Size:     2 * rec.Scale,
		Angle:    orientationToAngle(rec.Orientation),
		Response: float64(rec.Response),
		Octave: Octave{
			Index: int(d.Octv) - 1,
			Layer: int(d.Intvl),
			Sub:   d.SubIntvl,
		}.Pack(),
	}
}
