package segment

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
)

// ErrBackgroundUndetermined is returned when no background color dominates
// the frame of an image.
var ErrBackgroundUndetermined = errors.New("background color could not be determined")

// BackgroundKind names the colored sheet a batch of labels is photographed on.
type BackgroundKind int

const (
	// Unknown means the background has not been resolved yet ("auto").
	Unknown BackgroundKind = iota
	Red
	Blue
)

// backgroundHues maps each kind to the hue intervals of its sheet. Red wraps
// around hue 0 and is split in two.
var backgroundHues = map[BackgroundKind][]HueRange{
	Red:  {{Lo: 0.0, Hi: 0.1}, {Lo: 0.95, Hi: 1.0}},
	Blue: {{Lo: 0.5, Hi: 0.7}},
}

// Kinds lists the resolvable background kinds in a fixed order.
func Kinds() []BackgroundKind {
	return []BackgroundKind{Red, Blue}
}

func (k BackgroundKind) String() string {
	switch k {
	case Red:
		return "red"
	case Blue:
		return "blue"
	default:
		return "auto"
	}
}

// HueRanges returns the background hue intervals for k, or nil for Unknown.
func (k BackgroundKind) HueRanges() []HueRange {
	src := backgroundHues[k]
	if src == nil {
		return nil
	}
	out := make([]HueRange, len(src))
	copy(out, src)
	return out
}

// MarshalText encodes the kind by name.
func (k BackgroundKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name, see ParseBackgroundKind.
func (k *BackgroundKind) UnmarshalText(text []byte) error {
	v, err := ParseBackgroundKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ParseBackgroundKind accepts "red", "blue" and "auto" (or the empty string),
// case-insensitively.
func ParseBackgroundKind(s string) (BackgroundKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "red":
		return Red, nil
	case "blue":
		return Blue, nil
	case "", "auto":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("unknown background %q (want red, blue or auto)", s)
}

// Classify returns the background kind whose hue table contains the given
// pixel, or Unknown for achromatic or unlisted hues.
func Classify(h, s, v float64, opts Options) BackgroundKind {
	if s <= opts.MinSaturation || v <= opts.MinValue {
		return Unknown
	}
	for _, k := range Kinds() {
		for _, hr := range backgroundHues[k] {
			if hr.Contains(h) {
				return k
			}
		}
	}
	return Unknown
}

// BackgroundEstimator resolves the background kind of an image.
type BackgroundEstimator interface {
	EstimateBackground(img image.Image) (BackgroundKind, error)
}

// Fixed is a BackgroundEstimator that always reports the same kind.
type Fixed BackgroundKind

// EstimateBackground returns the fixed kind.
func (f Fixed) EstimateBackground(image.Image) (BackgroundKind, error) {
	return BackgroundKind(f), nil
}

// KindShare is the fraction of sampled pixels that classified as one kind.
type KindShare struct {
	Kind  BackgroundKind `json:"kind"`
	Share float64        `json:"share"`
}

// BorderEstimator votes on the background using the pixels of an outer frame
// of the image, where labels are not expected to lie.
//
// Frame is the frame width as a fraction of the shorter image side (at least
// one pixel). The majority kind wins if it holds at least MinShare of the
// frame pixels.
type BorderEstimator struct {
	Frame    float64
	MinShare float64
	Options  Options
}

// NewBorderEstimator returns an estimator with a 5% frame and a simple
// majority requirement.
func NewBorderEstimator() *BorderEstimator {
	return &BorderEstimator{Frame: 0.05, MinShare: 0.5, Options: DefaultOptions()}
}

// Shares counts how the frame pixels of img classify, sorted by share in
// descending order. Unknown pixels are included.
func (e *BorderEstimator) Shares(img image.Image) ([]KindShare, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	if IsGray(img) {
		return nil, ErrUnsupportedFormat
	}

	src := imaging.Clone(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	short := w
	if h < short {
		short = h
	}
	frame := int(math.Round(e.Frame * float64(short)))
	if frame < 1 {
		frame = 1
	}

	counts := make(map[BackgroundKind]int)
	total := 0
	for y := 0; y < h; y++ {
		inRow := y < frame || y >= h-frame
		for x := 0; x < w; x++ {
			if !inRow && x >= frame && x < w-frame {
				continue
			}
			hue, s, v := HSV(src.NRGBAAt(x, y))
			counts[Classify(hue, s, v, e.Options)]++
			total++
		}
	}

	shares := make([]KindShare, 0, len(counts))
	for k, n := range counts {
		shares = append(shares, KindShare{Kind: k, Share: float64(n) / float64(total)})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Share == shares[j].Share {
			return shares[i].Kind < shares[j].Kind
		}
		return shares[i].Share > shares[j].Share
	})
	return shares, nil
}

// EstimateBackground returns the dominant colored kind of the frame.
func (e *BorderEstimator) EstimateBackground(img image.Image) (BackgroundKind, error) {
	shares, err := e.Shares(img)
	if err != nil {
		return Unknown, err
	}
	for _, s := range shares {
		if s.Kind == Unknown {
			continue
		}
		if s.Share >= e.MinShare {
			return s.Kind, nil
		}
		break
	}
	return Unknown, ErrBackgroundUndetermined
}
