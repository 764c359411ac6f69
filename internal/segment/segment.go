package segment

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/NHMDenmark/NHMDlabelreader/internal/mask"
)

var (
	// ErrUnsupportedFormat is returned for single-channel images, which carry
	// no hue to segment on.
	ErrUnsupportedFormat = errors.New("unsupported image format: color image required")

	// ErrEmptyImage is returned for images with zero width or height.
	ErrEmptyImage = errors.New("empty image")

	// ErrInvalidHueRange is returned for hue intervals with Lo > Hi or bounds
	// outside [0,1].
	ErrInvalidHueRange = errors.New("invalid hue range")
)

// HueRange is a closed interval [Lo, Hi] of the cyclic hue channel, with hue
// expressed as a fraction of a full turn in [0,1). Wrapping intervals are not
// representable; split them into two ranges and use SegmentAny.
type HueRange struct {
	Lo float64 `yaml:"lo" json:"lo"`
	Hi float64 `yaml:"hi" json:"hi"`
}

// Validate checks that the range is ordered and lies inside [0,1].
func (h HueRange) Validate() error {
	if h.Lo > h.Hi || h.Lo < 0 || h.Hi > 1 {
		return fmt.Errorf("%w: [%g,%g]", ErrInvalidHueRange, h.Lo, h.Hi)
	}
	return nil
}

// Contains reports whether hue lies in the closed interval.
func (h HueRange) Contains(hue float64) bool {
	return hue >= h.Lo && hue <= h.Hi
}

func (h HueRange) String() string {
	return fmt.Sprintf("[%.3f,%.3f]", h.Lo, h.Hi)
}

// Options tunes pixel classification.
type Options struct {
	// MinSaturation and MinValue are the thresholds a pixel's HSV saturation
	// and value must exceed before its hue is trusted. Near-black and
	// near-white pixels therefore always count as foreground.
	MinSaturation float64 `yaml:"minSaturation" json:"min_saturation"`
	MinValue      float64 `yaml:"minValue" json:"min_value"`

	// Smooth is the radius of an optional Gaussian blur applied before
	// classification. Zero disables smoothing.
	Smooth float64 `yaml:"smooth" json:"smooth"`
}

// DefaultOptions returns the classification thresholds used by the label
// reader.
func DefaultOptions() Options {
	return Options{MinSaturation: 0.01, MinValue: 0.01}
}

// HSV returns the hue (as a fraction of a turn in [0,1)), saturation and value
// of c.
func HSV(c color.Color) (h, s, v float64) {
	cf, ok := colorful.MakeColor(c)
	if !ok {
		// fully transparent
		return 0, 0, 0
	}
	h, s, v = cf.Hsv()
	h /= 360
	if h >= 1 {
		h -= 1
	}
	return h, s, v
}

// IsGray reports whether img is a single-channel image.
func IsGray(img image.Image) bool {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return true
	}
	m := img.ColorModel()
	return m == color.GrayModel || m == color.Gray16Model
}

// Segment classifies the pixels of img against a background hue interval.
//
// A pixel is background (0) when its hue lies in hue and its saturation and
// value exceed the thresholds in opts; every other pixel is foreground (1).
// The returned mask always has the spatial size of img.
//
// # Errors
//
//   - ErrUnsupportedFormat for gray images
//   - ErrEmptyImage for zero-sized images
//   - ErrInvalidHueRange for a malformed interval
func Segment(img image.Image, hue HueRange, opts Options) (*mask.BinaryMask, error) {
	return SegmentAny(img, []HueRange{hue}, opts)
}

// SegmentAny is Segment with several background intervals: a pixel is
// background when its hue falls in any of them. This is how red, whose hue
// wraps around 0, is segmented.
func SegmentAny(img image.Image, hues []HueRange, opts Options) (*mask.BinaryMask, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	if IsGray(img) {
		return nil, ErrUnsupportedFormat
	}
	if len(hues) == 0 {
		return nil, fmt.Errorf("%w: no ranges given", ErrInvalidHueRange)
	}
	for _, h := range hues {
		if err := h.Validate(); err != nil {
			return nil, err
		}
	}

	src := imaging.Clone(img)
	if opts.Smooth > 0 {
		src = imaging.Clone(blur.Gaussian(src, opts.Smooth))
	}

	w, hgt := src.Bounds().Dx(), src.Bounds().Dy()
	out := mask.New(w, hgt)
	for y := 0; y < hgt; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			p := row[x*4 : x*4+4]
			if !isBackground(p[0], p[1], p[2], hues, opts) {
				out.Pix[y*w+x] = 1
			}
		}
	}
	return out, nil
}

func isBackground(r, g, b uint8, hues []HueRange, opts Options) bool {
	c := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
	h, s, v := c.Hsv()
	if s <= opts.MinSaturation || v <= opts.MinValue {
		return false
	}
	h /= 360
	for _, hr := range hues {
		if hr.Contains(h) {
			return true
		}
	}
	return false
}
