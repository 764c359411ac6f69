package orient

import (
	"errors"
	"math"
	"testing"

	"github.com/NHMDenmark/NHMDlabelreader/internal/mask"
	"github.com/NHMDenmark/NHMDlabelreader/internal/region"
)

// labelScene is a rotated label with a marker stripe running parallel to its
// long side. Local coordinates: along the long side (u) and across it (v).
type labelScene struct {
	labels    *region.LabelImage
	region    region.LabelRegion
	reference *mask.BinaryMask
}

// newScene draws a length x width label centered at (cx, cy) with its long
// side along (sin(theta), cos(theta)). Pixels with v in [stripeLo, stripeHi]
// are the marker and are 0 in the reference mask.
func newScene(t *testing.T, w, h int, cx, cy, length, width, theta, stripeLo, stripeHi float64) labelScene {
	t.Helper()
	m := mask.New(w, h)
	ref := mask.New(w, h)
	ux, uy := math.Sin(theta), math.Cos(theta)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ref.Set(x, y, 1)
			dx, dy := float64(x)-cx, float64(y)-cy
			u := dx*ux + dy*uy
			v := -dx*uy + dy*ux
			if math.Abs(u) > length/2 || math.Abs(v) > width/2 {
				continue
			}
			m.Set(x, y, 1)
			if v >= stripeLo && v <= stripeHi && math.Abs(u) < length/2-5 {
				ref.Set(x, y, 0)
			}
		}
	}
	labels, regions := region.Extract(m, region.Eight)
	if len(regions) != 1 {
		t.Fatalf("scene has %d regions, want 1", len(regions))
	}
	return labelScene{labels: labels, region: regions[0], reference: ref}
}

// markerSide returns the rectified vertical offset of the marker for an
// angle; negative means the marker is in the upper half.
func markerSide(angle, or, oc float64) float64 {
	return oc*math.Cos(angle) - or*math.Sin(angle)
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"", Moment, false},
		{"moment", Moment, false},
		{"LINE", Line, false},
		{"hough", Moment, true},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseStrategy(%q) = %v, %v", tt.in, got, err)
		}
	}
	if Line.String() != "line" || Moment.String() != "moment" {
		t.Error("Strategy.String() mismatch")
	}
}

func TestFromMoments(t *testing.T) {
	r := region.LabelRegion{Orientation: 0.4}
	e := FromMoments(r)
	if e.Angle != 0.4 || !e.Confident || e.Strategy != Moment {
		t.Errorf("FromMoments = %+v", e)
	}
	if e.Err() != nil {
		t.Errorf("Err() = %v, want nil", e.Err())
	}
}

func TestFromMarkerLine_Horizontal(t *testing.T) {
	// v grows with y for theta = pi/2, so negative v is the top of the label.
	tests := []struct {
		name      string
		lo, hi    float64
		wantAngle float64
	}{
		{"marker on top", -30, -26, -math.Pi / 2},
		{"marker at bottom", 26, 30, math.Pi / 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newScene(t, 300, 200, 150, 100, 200, 80, math.Pi/2, tt.lo, tt.hi)
			e, err := FromMarkerLine(s.region, s.labels, s.reference)
			if err != nil {
				t.Fatalf("FromMarkerLine failed: %v", err)
			}
			if !e.Confident {
				t.Fatalf("estimate not confident: %+v", e)
			}
			if e.Strategy != Line {
				t.Errorf("Strategy = %v, want line", e.Strategy)
			}
			if math.Abs(e.Angle-tt.wantAngle) > 0.01 {
				t.Errorf("Angle = %g, want %g", e.Angle, tt.wantAngle)
			}
		})
	}
}

func TestFromMarkerLine_Rotated(t *testing.T) {
	tests := []float64{0.3, -0.6, 1.0, 0.0}

	for _, theta := range tests {
		s := newScene(t, 400, 400, 200, 200, 240, 100, theta, -40, -35)
		e, err := FromMarkerLine(s.region, s.labels, s.reference)
		if err != nil {
			t.Fatalf("theta %g: FromMarkerLine failed: %v", theta, err)
		}
		if !e.Confident {
			t.Fatalf("theta %g: estimate not confident", theta)
		}

		// The fitted axis matches the label's long side
		diff := region.NormalizeAxis(e.Angle - theta)
		if math.Abs(diff) > 0.02 {
			t.Errorf("theta %g: axis of Angle %g is off by %g", theta, e.Angle, diff)
		}

		// and the marker, on the v<0 side, ends up on top.
		ux, uy := math.Sin(theta), math.Cos(theta)
		or, oc := -37.5*ux, 37.5*uy // v = -37.5 in (row, col)
		if markerSide(e.Angle, or, oc) >= 0 {
			t.Errorf("theta %g: Angle %g puts the marker in the lower half", theta, e.Angle)
		}
	}
}

func TestFromMarkerLine_ResolvesMomentAmbiguity(t *testing.T) {
	top := newScene(t, 300, 200, 150, 100, 200, 80, math.Pi/2, -30, -26)
	bottom := newScene(t, 300, 200, 150, 100, 200, 80, math.Pi/2, 26, 30)

	et, err := FromMarkerLine(top.region, top.labels, top.reference)
	if err != nil {
		t.Fatalf("FromMarkerLine failed: %v", err)
	}
	eb, err := FromMarkerLine(bottom.region, bottom.labels, bottom.reference)
	if err != nil {
		t.Fatalf("FromMarkerLine failed: %v", err)
	}

	if FromMoments(top.region).Angle != FromMoments(bottom.region).Angle {
		t.Fatal("moment orientation should not depend on the marker")
	}
	if d := math.Abs(region.NormalizeAngle(et.Angle - eb.Angle)); math.Abs(d-math.Pi) > 0.02 {
		t.Errorf("line estimates should differ by pi, got %g and %g", et.Angle, eb.Angle)
	}
}

func TestFromMarkerLine_Fallback(t *testing.T) {
	tests := []struct {
		name   string
		lo, hi float64
	}{
		{"no marker", 100, 101},
		{"marker too thin", -30, -30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newScene(t, 300, 200, 150, 100, 200, 80, math.Pi/2, tt.lo, tt.hi)
			e, err := FromMarkerLine(s.region, s.labels, s.reference)
			if err != nil {
				t.Fatalf("FromMarkerLine failed: %v", err)
			}
			if e.Confident {
				t.Errorf("estimate should not be confident: %+v", e)
			}
			if e.Angle != 0 {
				t.Errorf("fallback Angle = %g, want 0", e.Angle)
			}
			if !errors.Is(e.Err(), ErrOrientationUndetermined) {
				t.Errorf("Err() = %v, want ErrOrientationUndetermined", e.Err())
			}
		})
	}
}

func TestFromMarkerLine_ShapeMismatch(t *testing.T) {
	s := newScene(t, 300, 200, 150, 100, 200, 80, math.Pi/2, -30, -26)
	_, err := FromMarkerLine(s.region, s.labels, mask.New(100, 100))
	if !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("error = %v, want ErrShapeMismatch", err)
	}
}

func TestFromMarkerLine_IgnoresOtherRegions(t *testing.T) {
	s := newScene(t, 300, 200, 150, 100, 200, 80, math.Pi/2, -30, -26)
	// Zero the reference everywhere outside the label: only pixels of the
	// region itself may count as marker.
	for y := 0; y < 200; y++ {
		for x := 0; x < 300; x++ {
			if s.labels.At(x, y) != s.region.ID {
				s.reference.Set(x, y, 0)
			}
		}
	}
	e, err := FromMarkerLine(s.region, s.labels, s.reference)
	if err != nil {
		t.Fatalf("FromMarkerLine failed: %v", err)
	}
	if math.Abs(e.Angle+math.Pi/2) > 0.01 {
		t.Errorf("Angle = %g, want -pi/2", e.Angle)
	}
}
