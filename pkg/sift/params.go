package sift

// Params configures a detection call. Values are passed to the backend as
// is; range checking is the backend's business.
type Params struct {
	Octaves           int     `json:"octaves"`
	Intervals         int     `json:"intervals"`
	Threshold         float64 `json:"threshold"`
	EdgeThreshold     float64 `json:"edge_threshold"`
	Magnification     float64 `json:"magnification"`
	RecalculateAngles int     `json:"recalculate_angles"`
}

// DefaultParams returns the detector defaults.
func DefaultParams() Params {
	return Params{
		Octaves:           4,
		Intervals:         5,
		Threshold:         0.04,
		EdgeThreshold:     10.0,
		Magnification:     3.0,
		RecalculateAngles: 1,
	}
}

// C returns the parameter block in backend layout.
func (p Params) C() CParams {
	return CParams{
		Octaves:           int32(p.Octaves),   //nolint:gosec // layout width
		Intervals:         int32(p.Intervals), //nolint:gosec // layout width
		Threshold:         p.Threshold,
		EdgeThreshold:     p.EdgeThreshold,
		Magnification:     p.Magnification,
		RecalculateAngles: int32(p.RecalculateAngles), //nolint:gosec // layout width
	}
}

// CParams mirrors the backend's parameter struct:
//
//	struct CvSIFTParams {
//	    int    octaves;           // 0
//	    int    intervals;         // 4
//	    double threshold;         // 8
//	    double edgeThreshold;     // 16
//	    double magnification;     // 24
//	    int    recalculateAngles; // 32
//	};                            // sizeof 40
//
// It is passed by value.
type CParams struct {
	Octaves           int32
	Intervals         int32
	Threshold         float64
	EdgeThreshold     float64
	Magnification     float64
	RecalculateAngles int32
}

// Params converts the block back to its Go form.
func (c CParams) Params() Params {
	return Params{
		Octaves:           int(c.Octaves),
		Intervals:         int(c.Intervals),
		Threshold:         c.Threshold,
		EdgeThreshold:     c.EdgeThreshold,
		Magnification:     c.Magnification,
		RecalculateAngles: int(c.RecalculateAngles),
	}
}

// Recalculate reports whether the backend should assign orientations.
func (c CParams) Recalculate() bool { return c.RecalculateAngles != 0 }
