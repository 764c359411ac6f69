package region

import (
	"math"
	"reflect"
	"testing"

	"github.com/NHMDenmark/NHMDlabelreader/internal/mask"
)

func fillRect(m *mask.BinaryMask, x0, y0, x1, y1 int) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			m.Set(x, y, 1)
		}
	}
}

// fillRotatedRect draws a length x width rectangle centered at (cx, cy) whose
// long side points along (sin(theta), cos(theta)) in (x, y).
func fillRotatedRect(m *mask.BinaryMask, cx, cy, length, width, theta float64) {
	ux, uy := math.Sin(theta), math.Cos(theta)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			along := dx*ux + dy*uy
			across := -dx*uy + dy*ux
			if math.Abs(along) <= length/2 && math.Abs(across) <= width/2 {
				m.Set(x, y, 1)
			}
		}
	}
}

func TestExtract_Empty(t *testing.T) {
	labels, regions := Extract(mask.New(30, 20), Eight)
	if len(regions) != 0 {
		t.Errorf("empty mask gave %d regions", len(regions))
	}
	if labels.Width != 30 || labels.Height != 20 || len(labels.Labels) != 600 {
		t.Errorf("label image size = %dx%d", labels.Width, labels.Height)
	}
}

func TestExtract_HorizontalRect(t *testing.T) {
	m := mask.New(60, 30)
	fillRect(m, 5, 5, 45, 15)

	_, regions := Extract(m, Eight)
	if len(regions) != 1 {
		t.Fatalf("got %d regions, want 1", len(regions))
	}
	r := regions[0]

	if r.ID != 1 {
		t.Errorf("ID = %d, want 1", r.ID)
	}
	if r.Area != 400 {
		t.Errorf("Area = %d, want 400", r.Area)
	}
	if r.Centroid.Row != 9.5 || r.Centroid.Col != 24.5 {
		t.Errorf("Centroid = %+v, want (9.5, 24.5)", r.Centroid)
	}
	if want := (BoundingBox{MinRow: 5, MinCol: 5, MaxRow: 15, MaxCol: 45}); r.BBox != want {
		t.Errorf("BBox = %+v, want %+v", r.BBox, want)
	}
	if math.Abs(r.Orientation-math.Pi/2) > 1e-9 {
		t.Errorf("Orientation = %g, want pi/2 for a wide region", r.Orientation)
	}

	wantMajor := 4 * math.Sqrt((40*40-1)/12.0)
	wantMinor := 4 * math.Sqrt((10*10-1)/12.0)
	if math.Abs(r.AxisMajor-wantMajor) > 1e-6 {
		t.Errorf("AxisMajor = %g, want %g", r.AxisMajor, wantMajor)
	}
	if math.Abs(r.AxisMinor-wantMinor) > 1e-6 {
		t.Errorf("AxisMinor = %g, want %g", r.AxisMinor, wantMinor)
	}
}

func TestExtract_VerticalRect(t *testing.T) {
	m := mask.New(30, 60)
	fillRect(m, 5, 5, 15, 45)

	_, regions := Extract(m, Eight)
	if len(regions) != 1 {
		t.Fatalf("got %d regions, want 1", len(regions))
	}
	if math.Abs(regions[0].Orientation) > 1e-9 {
		t.Errorf("Orientation = %g, want 0 for a tall region", regions[0].Orientation)
	}
}

func TestExtract_RotatedOrientation(t *testing.T) {
	tests := []float64{0.5, -0.7, 1.2, -1.3}

	for _, theta := range tests {
		m := mask.New(200, 200)
		fillRotatedRect(m, 100, 100, 120, 40, theta)

		_, regions := Extract(m, Eight)
		if len(regions) != 1 {
			t.Fatalf("theta %g: got %d regions, want 1", theta, len(regions))
		}
		r := regions[0]
		if math.Abs(r.Orientation-theta) > 0.02 {
			t.Errorf("theta %g: Orientation = %g", theta, r.Orientation)
		}
		if math.Abs(r.Aspect()-40.0/120) > 0.02 {
			t.Errorf("theta %g: Aspect = %g, want about %g", theta, r.Aspect(), 40.0/120)
		}
	}
}

func TestExtract_Connectivity(t *testing.T) {
	m := mask.New(10, 10)
	m.Set(2, 2, 1)
	m.Set(3, 3, 1)

	_, eight := Extract(m, Eight)
	if len(eight) != 1 {
		t.Errorf("8-connected: got %d regions, want 1", len(eight))
	}
	_, four := Extract(m, Four)
	if len(four) != 2 {
		t.Errorf("4-connected: got %d regions, want 2", len(four))
	}
}

func TestExtract_RasterOrderIDs(t *testing.T) {
	m := mask.New(50, 50)
	fillRect(m, 30, 5, 40, 10)  // top right, first in raster order
	fillRect(m, 5, 20, 10, 30)  // middle left
	fillRect(m, 20, 40, 45, 45) // bottom

	labels, regions := Extract(m, Eight)
	if len(regions) != 3 {
		t.Fatalf("got %d regions, want 3", len(regions))
	}
	for i, r := range regions {
		if r.ID != i+1 {
			t.Errorf("regions[%d].ID = %d", i, r.ID)
		}
	}
	if labels.At(35, 7) != 1 || labels.At(7, 25) != 2 || labels.At(30, 42) != 3 {
		t.Error("labels not assigned in raster order of first pixel")
	}
	if labels.At(0, 0) != 0 || labels.At(-1, 3) != 0 {
		t.Error("background and out-of-range positions should be 0")
	}
	if got := labels.Mask(2).Count(); got != 50 {
		t.Errorf("Mask(2).Count() = %d, want 50", got)
	}
}

func TestExtract_Deterministic(t *testing.T) {
	m := mask.New(120, 80)
	fillRotatedRect(m, 40, 40, 50, 20, 0.3)
	fillRect(m, 80, 10, 110, 70)
	m.Set(5, 75, 1)

	l1, r1 := Extract(m, Eight)
	l2, r2 := Extract(m, Eight)
	if !reflect.DeepEqual(r1, r2) {
		t.Error("region descriptors differ between runs")
	}
	if !reflect.DeepEqual(l1.Labels, l2.Labels) {
		t.Error("label images differ between runs")
	}
}

func TestExtract_SinglePixel(t *testing.T) {
	m := mask.New(5, 5)
	m.Set(1, 3, 1)
	_, regions := Extract(m, Eight)
	if len(regions) != 1 {
		t.Fatalf("got %d regions, want 1", len(regions))
	}
	r := regions[0]
	if r.Area != 1 || r.AxisMajor != 0 || r.AxisMinor != 0 {
		t.Errorf("single pixel region = %+v", r)
	}
	if r.Centroid != (Point{Row: 3, Col: 1}) {
		t.Errorf("Centroid = %+v", r.Centroid)
	}
	if r.Aspect() != 1 {
		t.Errorf("degenerate Aspect() = %g, want 1", r.Aspect())
	}
}

func TestExtract_KPlausible(t *testing.T) {
	m := mask.New(400, 300)
	// three well separated 60x20 labels plus noise
	fillRect(m, 20, 20, 80, 40)
	fillRect(m, 200, 50, 260, 70)
	fillRotatedRect(m, 150, 200, 60, 20, 0.8)
	fillRect(m, 350, 250, 353, 253)
	fillRect(m, 300, 100, 340, 140) // square

	_, regions := Extract(m, Eight)
	if len(regions) != 5 {
		t.Fatalf("got %d regions, want 5", len(regions))
	}
	kept, rejected := Filter{MaxAspect: 0.8, MinArea: 1000}.Apply(regions)
	if len(kept) != 3 {
		t.Errorf("kept %d regions, want 3", len(kept))
	}
	if len(rejected) != 2 {
		t.Errorf("rejected %d regions, want 2", len(rejected))
	}
}

func TestParseConnectivity(t *testing.T) {
	tests := []struct {
		in      int
		want    Connectivity
		wantErr bool
	}{
		{0, Eight, false},
		{8, Eight, false},
		{4, Four, false},
		{6, 0, true},
	}
	for _, tt := range tests {
		got, err := ParseConnectivity(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseConnectivity(%d) = %v, %v", tt.in, got, err)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, axis, angle float64
	}{
		{0, 0, 0},
		{math.Pi, 0, math.Pi},
		{-math.Pi / 2, math.Pi / 2, -math.Pi / 2},
		{3 * math.Pi / 4, -math.Pi / 4, 3 * math.Pi / 4},
		{-2*math.Pi - 1, -1, -1},
	}
	for _, tt := range tests {
		if got := NormalizeAxis(tt.in); math.Abs(got-tt.axis) > 1e-9 {
			t.Errorf("NormalizeAxis(%g) = %g, want %g", tt.in, got, tt.axis)
		}
		if got := NormalizeAngle(tt.in); math.Abs(got-tt.angle) > 1e-9 {
			t.Errorf("NormalizeAngle(%g) = %g, want %g", tt.in, got, tt.angle)
		}
	}
}

func TestBoundingBox_Rect(t *testing.T) {
	b := BoundingBox{MinRow: 2, MinCol: 3, MaxRow: 7, MaxCol: 11}
	r := b.Rect()
	if r.Min.X != 3 || r.Min.Y != 2 || r.Dx() != 8 || r.Dy() != 5 {
		t.Errorf("Rect() = %v", r)
	}
}

func TestPoint_Vec(t *testing.T) {
	v := Point{Row: 2, Col: 5}.Vec()
	if v.X != 5 || v.Y != 2 {
		t.Errorf("Vec() = %+v, want X=col, Y=row", v)
	}
}
