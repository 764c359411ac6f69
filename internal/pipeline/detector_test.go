package pipeline

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/NHMDenmark/NHMDlabelreader/internal/correspond"
	"github.com/NHMDenmark/NHMDlabelreader/internal/orient"
	"github.com/NHMDenmark/NHMDlabelreader/internal/rectify"
	"github.com/NHMDenmark/NHMDlabelreader/internal/region"
	"github.com/NHMDenmark/NHMDlabelreader/internal/segment"
)

var (
	sheetRed  = color.RGBA{220, 20, 30, 255}
	sheetBlue = color.RGBA{30, 60, 200, 255}
	paper     = color.RGBA{245, 245, 240, 255}
	ink       = color.RGBA{200, 0, 0, 255}
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.RefineRadius = 3
	opts.Filter = region.Filter{MaxAspect: 0.8, MinArea: 5000}
	opts.ExpectedCount = 0
	return opts
}

func newSheet(w, h int, bg color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	return img
}

func fill(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
}

// threeCardSheet has three 200x60 cards on a sheet.
func threeCardSheet(bg color.Color) *image.RGBA {
	img := newSheet(600, 400, bg)
	fill(img, image.Rect(50, 50, 250, 110), paper)
	fill(img, image.Rect(330, 50, 530, 110), paper)
	fill(img, image.Rect(50, 250, 250, 310), paper)
	return img
}

// markedCard is one 300x100 card on a blue sheet with a red rule near its
// top edge (or bottom edge when flipped).
func markedCard(bottom bool) *image.RGBA {
	img := newSheet(500, 300, sheetBlue)
	fill(img, image.Rect(100, 100, 400, 200), paper)
	if bottom {
		fill(img, image.Rect(115, 182, 385, 190), ink)
	} else {
		fill(img, image.Rect(115, 110, 385, 118), ink)
	}
	return img
}

// inkRows returns the mean row of the red pixels in img and how many there
// are.
func inkRows(img image.Image) (mean float64, n int) {
	b := img.Bounds()
	sum := 0.0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r>>8 > 150 && g>>8 < 90 && bl>>8 < 90 {
				sum += float64(y - b.Min.Y)
				n++
			}
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

func TestProcess_ThreeCards(t *testing.T) {
	d := New(testOptions(), nil, quietLogger())
	res, err := d.Process(threeCardSheet(sheetRed))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if res.Background != segment.Red {
		t.Errorf("Background = %v, want red", res.Background)
	}
	if res.Side != correspond.Front {
		t.Errorf("Side = %v, want front", res.Side)
	}
	if len(res.Labels) != 3 {
		t.Fatalf("got %d labels, want 3", len(res.Labels))
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}

	for _, det := range res.Labels {
		w, h := rectify.OutputSize(det.Label.Region)
		b := det.Label.Image.Bounds()
		if b.Dx() != w || b.Dy() != h {
			t.Errorf("label %d is %v, want %dx%d", det.Label.Region.ID, b, w, h)
		}
		if b.Dx() <= b.Dy() {
			t.Errorf("label %d should be wider than tall, got %v", det.Label.Region.ID, b)
		}
		if det.Orientation.Strategy != orient.Moment || !det.Orientation.Confident {
			t.Errorf("label %d orientation = %+v", det.Label.Region.ID, det.Orientation)
		}
	}
}

func TestProcess_RegionCountMismatch(t *testing.T) {
	opts := testOptions()
	opts.ExpectedCount = 9
	res, err := New(opts, nil, quietLogger()).Process(threeCardSheet(sheetRed))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(res.Labels) != 3 {
		t.Errorf("got %d labels, want 3 (mismatch is not fatal)", len(res.Labels))
	}
	if len(res.Warnings) != 1 || !errors.Is(res.Warnings[0], ErrRegionCountMismatch) {
		t.Errorf("warnings = %v, want one ErrRegionCountMismatch", res.Warnings)
	}
}

func TestProcess_BlueSheetIsBack(t *testing.T) {
	res, err := New(testOptions(), nil, quietLogger()).Process(threeCardSheet(sheetBlue))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if res.Background != segment.Blue || res.Side != correspond.Back {
		t.Errorf("got %v/%v, want blue/back", res.Background, res.Side)
	}
	if len(res.Labels) != 3 {
		t.Errorf("got %d labels, want 3", len(res.Labels))
	}
}

func TestProcess_ConfiguredBackground(t *testing.T) {
	opts := testOptions()
	opts.Background = segment.Blue
	opts.Sides = map[segment.BackgroundKind]correspond.Side{segment.Blue: correspond.Front}

	res, err := New(opts, nil, quietLogger()).Process(threeCardSheet(sheetBlue))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if res.Side != correspond.Front {
		t.Errorf("Side = %v, want the configured front", res.Side)
	}
}

func TestProcess_MarkerLine(t *testing.T) {
	tests := []struct {
		name     string
		strategy orient.Strategy
		bottom   bool
		wantTop  bool
	}{
		{"line strategy, rule on top", orient.Line, false, true},
		{"line strategy, rule at bottom", orient.Line, true, true},
		{"moment strategy, rule on top", orient.Moment, false, false},
		{"moment strategy, rule at bottom", orient.Moment, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			opts.Strategy = tt.strategy
			res, err := New(opts, nil, quietLogger()).Process(markedCard(tt.bottom))
			if err != nil {
				t.Fatalf("Process failed: %v", err)
			}
			if len(res.Labels) != 1 {
				t.Fatalf("got %d labels, want 1", len(res.Labels))
			}
			det := res.Labels[0]
			h := det.Label.Image.Bounds().Dy()

			mean, n := inkRows(det.Label.Image)
			if n == 0 {
				t.Fatal("rectified label shows no rule")
			}
			if top := mean < float64(h)/2; top != tt.wantTop {
				t.Errorf("rule at mean row %.1f of %d, want top=%v", mean, h, tt.wantTop)
			}
			if tt.strategy == orient.Line && det.Orientation.MarkerPixels == 0 {
				t.Error("line estimate should report its marker pixels")
			}
		})
	}
}

func TestProcess_MarkerMissing(t *testing.T) {
	opts := testOptions()
	opts.Strategy = orient.Line
	res, err := New(opts, nil, quietLogger()).Process(threeCardSheet(sheetBlue))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(res.Labels) != 3 {
		t.Fatalf("got %d labels, want 3", len(res.Labels))
	}
	if len(res.Warnings) != 3 {
		t.Fatalf("got %d warnings, want one per label", len(res.Warnings))
	}
	for _, w := range res.Warnings {
		if !errors.Is(w, orient.ErrOrientationUndetermined) {
			t.Errorf("warning %v, want ErrOrientationUndetermined", w)
		}
	}
	for _, det := range res.Labels {
		if det.Orientation.Angle != 0 || det.Orientation.Confident {
			t.Errorf("fallback orientation = %+v", det.Orientation)
		}
	}
}

func TestProcess_SegmentationEmpty(t *testing.T) {
	res, err := New(testOptions(), nil, quietLogger()).Process(newSheet(200, 200, sheetRed))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(res.Labels) != 0 {
		t.Errorf("got %d labels, want 0", len(res.Labels))
	}
	if len(res.Warnings) != 1 || !errors.Is(res.Warnings[0], ErrSegmentationEmpty) {
		t.Errorf("warnings = %v, want ErrSegmentationEmpty", res.Warnings)
	}
}

func TestProcess_Errors(t *testing.T) {
	d := New(testOptions(), nil, quietLogger())

	tests := []struct {
		name string
		img  image.Image
		want error
	}{
		{"gray", image.NewGray(image.Rect(0, 0, 50, 50)), segment.ErrUnsupportedFormat},
		{"empty", image.NewRGBA(image.Rect(0, 0, 0, 0)), segment.ErrEmptyImage},
		{"no sheet color", newSheet(100, 100, paper), segment.ErrBackgroundUndetermined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Process(tt.img)
			if !errors.Is(err, tt.want) {
				t.Errorf("Process error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestProcess_RejectsSquares(t *testing.T) {
	img := threeCardSheet(sheetRed)
	fill(img, image.Rect(330, 220, 430, 320), paper)

	res, err := New(testOptions(), nil, quietLogger()).Process(img)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(res.Labels) != 3 || len(res.Rejected) != 1 {
		t.Errorf("labels/rejected = %d/%d, want 3/1", len(res.Labels), len(res.Rejected))
	}
	if r := res.Rejected[0]; math.Abs(r.Aspect()-1) > 0.05 {
		t.Errorf("rejected region aspect = %g, want about 1", r.Aspect())
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.Sides[segment.Red] != correspond.Front || opts.Sides[segment.Blue] != correspond.Back {
		t.Errorf("default sides = %v", opts.Sides)
	}
	if opts.ExpectedCount != 9 || opts.Filter.MinArea != 30000 || opts.Filter.MaxAspect != 0.8 {
		t.Errorf("default options = %+v", opts)
	}
	if opts.Connectivity != region.Eight {
		t.Errorf("default connectivity = %v", opts.Connectivity)
	}
}

func TestProcess_HueOverride(t *testing.T) {
	opts := testOptions()
	opts.Background = segment.Red
	opts.Hues = []segment.HueRange{{Lo: 0.25, Hi: 0.45}}

	res, err := New(opts, nil, quietLogger()).Process(threeCardSheet(color.RGBA{20, 180, 40, 255}))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(res.Labels) != 3 {
		t.Errorf("got %d labels on a green sheet, want 3", len(res.Labels))
	}
}
