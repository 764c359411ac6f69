package orient

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/NHMDenmark/NHMDlabelreader/internal/mask"
	"github.com/NHMDenmark/NHMDlabelreader/internal/region"
)

var (
	// ErrOrientationUndetermined marks an estimate that fell back to 0
	// because too few marker pixels were found.
	ErrOrientationUndetermined = errors.New("orientation undetermined: too few marker pixels")

	// ErrShapeMismatch is returned when the label image and the reference
	// mask differ in size.
	ErrShapeMismatch = errors.New("label image and reference mask differ in size")
)

// Strategy selects how a label's orientation is estimated.
type Strategy int

const (
	// Moment uses the principal axis of the region's pixel distribution.
	Moment Strategy = iota
	// Line fits a straight line through a printed marker stripe inside the
	// label and uses its position to tell up from down.
	Line
)

func (s Strategy) String() string {
	if s == Line {
		return "line"
	}
	return "moment"
}

// ParseStrategy accepts "moment" (or "") and "line".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "moment":
		return Moment, nil
	case "line":
		return Line, nil
	}
	return Moment, fmt.Errorf("unknown orientation strategy %q (want moment or line)", s)
}

// Estimate is an orientation in the convention of region.LabelRegion: the
// angle from the row axis toward the column axis of the direction that should
// become the rectified label's width.
type Estimate struct {
	Angle        float64  `json:"angle"`
	Strategy     Strategy `json:"-"`
	Confident    bool     `json:"confident"`
	MarkerPixels int      `json:"marker_pixels,omitempty"`
}

// Err returns ErrOrientationUndetermined for a fallback estimate.
func (e Estimate) Err() error {
	if e.Confident {
		return nil
	}
	return ErrOrientationUndetermined
}

// FromMoments returns the principal-axis orientation computed at extraction
// time. It cannot tell the two ends of the axis apart.
func FromMoments(r region.LabelRegion) Estimate {
	return Estimate{Angle: r.Orientation, Strategy: Moment, Confident: true}
}

// FromMarkerLine estimates the orientation of region r from a marker stripe.
//
// The marker pixels are those of r that are 0 in reference. They are cleaned
// with a radius 1 opening/closing, then a least-squares line is fitted
// through them. The line gives the axis; the side of the centroid the marker
// lies on gives the direction, so that the marker ends up in the upper half
// of the rectified label.
//
// With fewer than two marker pixels the estimate falls back to angle 0 with
// Confident set to false. The only error is ErrShapeMismatch.
func FromMarkerLine(r region.LabelRegion, labels *region.LabelImage, reference *mask.BinaryMask) (Estimate, error) {
	if labels.Width != reference.Width || labels.Height != reference.Height {
		return Estimate{}, fmt.Errorf("%w: labels %dx%d, reference %dx%d", ErrShapeMismatch,
			labels.Width, labels.Height, reference.Width, reference.Height)
	}

	lineMask := mask.New(labels.Width, labels.Height)
	for y := r.BBox.MinRow; y < r.BBox.MaxRow; y++ {
		for x := r.BBox.MinCol; x < r.BBox.MaxCol; x++ {
			if labels.At(x, y) == r.ID && reference.At(x, y) == 0 {
				lineMask.Set(x, y, 1)
			}
		}
	}
	lineMask = mask.Refine(lineMask, 1, 0)

	rows := make([]float64, 0)
	cols := make([]float64, 0)
	for y := r.BBox.MinRow; y < r.BBox.MaxRow; y++ {
		for x := r.BBox.MinCol; x < r.BBox.MaxCol; x++ {
			if lineMask.At(x, y) != 0 {
				rows = append(rows, float64(y))
				cols = append(cols, float64(x))
			}
		}
	}

	fallback := Estimate{Angle: 0, Strategy: Line, Confident: false, MarkerPixels: len(rows)}
	if len(rows) < 2 {
		return fallback, nil
	}

	dr, dc, ok := fitDirection(rows, cols)
	if !ok {
		return fallback, nil
	}
	theta := region.NormalizeAxis(math.Atan2(dc, dr))

	// Offset of the marker from the centroid, projected onto the rectified
	// vertical axis. Positive means the marker would land below the middle.
	or := stat.Mean(rows, nil) - r.Centroid.Row
	oc := stat.Mean(cols, nil) - r.Centroid.Col
	if oc*math.Cos(theta)-or*math.Sin(theta) > 0 {
		theta = region.NormalizeAngle(theta + math.Pi)
	}

	return Estimate{Angle: theta, Strategy: Line, Confident: true, MarkerPixels: len(rows)}, nil
}

// fitDirection fits a line through the points and returns its direction as
// (drow, dcol). The coordinate with the larger spread is the regressor.
func fitDirection(rows, cols []float64) (dr, dc float64, ok bool) {
	varRow := stat.Variance(rows, nil)
	varCol := stat.Variance(cols, nil)
	if varRow == 0 && varCol == 0 {
		return 0, 0, false
	}
	if varRow >= varCol {
		_, beta := stat.LinearRegression(rows, cols, nil, false)
		return 1, beta, !math.IsNaN(beta)
	}
	_, beta := stat.LinearRegression(cols, rows, nil, false)
	return beta, 1, !math.IsNaN(beta)
}
