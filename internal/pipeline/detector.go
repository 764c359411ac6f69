package pipeline

import (
	"errors"
	"fmt"
	"image"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/NHMDenmark/NHMDlabelreader/internal/correspond"
	"github.com/NHMDenmark/NHMDlabelreader/internal/imaging"
	"github.com/NHMDenmark/NHMDlabelreader/internal/mask"
	"github.com/NHMDenmark/NHMDlabelreader/internal/orient"
	"github.com/NHMDenmark/NHMDlabelreader/internal/rectify"
	"github.com/NHMDenmark/NHMDlabelreader/internal/region"
	"github.com/NHMDenmark/NHMDlabelreader/internal/segment"
)

var (
	// ErrSegmentationEmpty is reported when no foreground survives
	// refinement. The image yields zero labels.
	ErrSegmentationEmpty = errors.New("segmentation found no foreground")

	// ErrRegionCountMismatch is reported when the number of plausible
	// regions differs from the expected count.
	ErrRegionCountMismatch = errors.New("unexpected number of labels")
)

// Options configures a Detector.
type Options struct {
	// Background is the sheet color; Unknown asks the estimator.
	Background segment.BackgroundKind
	// Sides maps the sheet color to the card face it is used for.
	Sides map[segment.BackgroundKind]correspond.Side

	Segment segment.Options
	// Hues replaces the background's built-in hue ranges when set.
	Hues         []segment.HueRange
	RefineRadius int
	BorderMargin int
	Connectivity region.Connectivity
	Filter       region.Filter
	// ExpectedCount is the number of labels per image; 0 disables the check.
	ExpectedCount int

	Strategy orient.Strategy
	// MarkerHues are the hues of the marker stripe used by orient.Line.
	MarkerHues []segment.HueRange
}

// DefaultOptions returns the settings for one multi-card sheet per image:
// red sheets are fronts, blue sheets are backs, nine cards per sheet.
func DefaultOptions() Options {
	return Options{
		Background: segment.Unknown,
		Sides: map[segment.BackgroundKind]correspond.Side{
			segment.Red:  correspond.Front,
			segment.Blue: correspond.Back,
		},
		Segment:       segment.DefaultOptions(),
		RefineRadius:  10,
		BorderMargin:  10,
		Connectivity:  region.Eight,
		Filter:        region.Filter{MaxAspect: 0.8, MinArea: 30000},
		ExpectedCount: 9,
		Strategy:      orient.Moment,
		MarkerHues:    segment.Red.HueRanges(),
	}
}

// Detection is one rectified label with the orientation estimate used for it.
type Detection struct {
	Label       *rectify.RectifiedLabel
	Orientation orient.Estimate
}

// Result is everything detected in one image.
type Result struct {
	Background segment.BackgroundKind
	Side       correspond.Side
	// Mask is the refined foreground mask.
	Mask     *mask.BinaryMask
	Labels   []Detection
	Rejected []region.LabelRegion
	// Warnings holds non-fatal anomalies, each wrapping one of
	// ErrSegmentationEmpty, ErrRegionCountMismatch,
	// orient.ErrOrientationUndetermined or rectify.ErrDegenerateRegion.
	Warnings []error
}

// Detector finds and rectifies the labels in single images.
type Detector struct {
	opts      Options
	estimator segment.BackgroundEstimator
	log       logrus.FieldLogger
}

// New returns a Detector. A nil estimator selects segment.NewBorderEstimator
// and a nil logger the logrus standard logger.
func New(opts Options, estimator segment.BackgroundEstimator, logger logrus.FieldLogger) *Detector {
	if estimator == nil {
		estimator = segment.NewBorderEstimator()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Detector{opts: opts, estimator: estimator, log: logger}
}

// Options returns the detector's configuration.
func (d *Detector) Options() Options {
	return d.opts
}

// Background resolves the sheet color of img and the card face it shows.
func (d *Detector) Background(img image.Image) (segment.BackgroundKind, correspond.Side, error) {
	kind := d.opts.Background
	if kind == segment.Unknown {
		var err error
		kind, err = d.estimator.EstimateBackground(img)
		if err != nil {
			return segment.Unknown, correspond.NoSide, fmt.Errorf("failed to determine background: %w", err)
		}
	}
	return kind, d.opts.Sides[kind], nil
}

// Process runs segmentation, refinement, extraction, filtering, orientation
// and rectification on img, in that order.
//
// Only structurally unusable images fail: gray or empty images, and images
// whose background cannot be resolved. Everything else is recorded in
// Result.Warnings and logged.
func (d *Detector) Process(img image.Image) (*Result, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, segment.ErrEmptyImage
	}
	if segment.IsGray(img) {
		return nil, segment.ErrUnsupportedFormat
	}

	kind, side, err := d.Background(img)
	if err != nil {
		return nil, err
	}
	res := &Result{Background: kind, Side: side}
	log := d.log.WithFields(logrus.Fields{"background": kind.String(), "side": side.String()})

	hues := kind.HueRanges()
	if len(d.opts.Hues) > 0 {
		hues = d.opts.Hues
	}
	fg, err := segment.SegmentAny(img, hues, d.opts.Segment)
	if err != nil {
		return nil, fmt.Errorf("segmentation failed: %w", err)
	}
	res.Mask = mask.Refine(fg, d.opts.RefineRadius, d.opts.BorderMargin)
	if res.Mask.Empty() {
		res.warn(log, ErrSegmentationEmpty)
		return res, nil
	}

	labels, regions := region.Extract(res.Mask, d.opts.Connectivity)
	kept, rejected := d.opts.Filter.Apply(regions)
	res.Rejected = rejected
	log.WithFields(logrus.Fields{"regions": len(regions), "kept": len(kept)}).Debug("regions extracted")

	if d.opts.ExpectedCount > 0 && len(kept) != d.opts.ExpectedCount {
		res.warn(log, fmt.Errorf("%w: found %d, expected %d", ErrRegionCountMismatch, len(kept), d.opts.ExpectedCount))
	}

	var reference *mask.BinaryMask
	if d.opts.Strategy == orient.Line {
		reference, err = segment.SegmentAny(img, d.opts.MarkerHues, d.opts.Segment)
		if err != nil {
			return nil, fmt.Errorf("marker segmentation failed: %w", err)
		}
	}

	for _, r := range kept {
		est := orient.FromMoments(r)
		if reference != nil {
			est, err = orient.FromMarkerLine(r, labels, reference)
			if err != nil {
				return nil, fmt.Errorf("region %d: %w", r.ID, err)
			}
			if err := est.Err(); err != nil {
				res.warn(log, fmt.Errorf("region %d: %w", r.ID, err))
			}
		}

		lbl, err := rectify.Rectify(img, r, est.Angle)
		if err != nil {
			res.warn(log, err)
			continue
		}
		res.Labels = append(res.Labels, Detection{Label: lbl, Orientation: est})
	}

	log.WithFields(logrus.Fields{"labels": len(res.Labels)}).Info("image processed")
	return res, nil
}

// Outlines returns the corners of every label in the photograph, captioned
// with the label's key or, before a key is read, its region id.
func (r *Result) Outlines() []imaging.Outline {
	out := make([]imaging.Outline, 0, len(r.Labels))
	for _, det := range r.Labels {
		text := det.Label.Key
		if text == "" {
			text = strconv.Itoa(det.Label.Region.ID)
		}
		out = append(out, imaging.Outline{Corners: det.Label.Corners(), Text: text})
	}
	return out
}

func (r *Result) warn(log logrus.FieldLogger, err error) {
	r.Warnings = append(r.Warnings, err)
	log.WithError(err).Warn("detection anomaly")
}
