package rectify

import (
	"errors"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/NHMDenmark/NHMDlabelreader/internal/region"
)

// ErrDegenerateRegion is returned when a region's axes round to an empty
// output buffer.
var ErrDegenerateRegion = errors.New("region too small to rectify")

// RectifiedLabel is an axis-aligned crop of one label.
//
// Image is AxisMajor wide and AxisMinor tall (both rounded to the nearest
// integer). It is *image.Gray or *image.Gray16 for single-channel sources
// and *image.RGBA otherwise.
type RectifiedLabel struct {
	Image       draw.Image
	Region      region.LabelRegion
	Orientation float64
	// Key is the catalogue key assigned after reading the label.
	Key string

	forward *mat.Dense
	inverse *mat.Dense
}

// OutputSize returns the rectified width and height for a region.
func OutputSize(r region.LabelRegion) (width, height int) {
	return int(math.Round(r.AxisMajor)), int(math.Round(r.AxisMinor))
}

// Transform builds the rigid transform taking source image coordinates to
// rectified label coordinates, and its inverse.
//
// The centroid is moved to the origin, the plane is rotated by
// orientation+pi/2 so the orientation direction lies along the output x
// axis, and the result is shifted by half the axis lengths so the label
// center lands in the middle of the output. origin is the source image's
// Bounds().Min; region coordinates are relative to it. Pixel centers sit at
// integer coordinates on both sides.
func Transform(r region.LabelRegion, orientation float64, origin image.Point) (forward, inverse *mat.Dense, err error) {
	cx := r.Centroid.Col + float64(origin.X)
	cy := r.Centroid.Row + float64(origin.Y)

	toOrigin := mat.NewDense(3, 3, []float64{
		1, 0, -cx,
		0, 1, -cy,
		0, 0, 1,
	})
	phi := orientation + math.Pi/2
	sin, cos := math.Sincos(phi)
	rotate := mat.NewDense(3, 3, []float64{
		cos, -sin, 0,
		sin, cos, 0,
		0, 0, 1,
	})
	toCorner := mat.NewDense(3, 3, []float64{
		1, 0, 0.5 * r.AxisMajor,
		0, 1, 0.5 * r.AxisMinor,
		0, 0, 1,
	})

	forward = mat.NewDense(3, 3, nil)
	forward.Product(toCorner, rotate, toOrigin)

	inverse = mat.NewDense(3, 3, nil)
	if err := inverse.Inverse(forward); err != nil {
		return nil, nil, fmt.Errorf("failed to invert label transform: %w", err)
	}
	return forward, inverse, nil
}

// Rectify resamples the label described by r out of img into an axis-aligned
// buffer, using bilinear interpolation. Output pixels that map outside img
// stay zero. The output size depends only on r.
func Rectify(img image.Image, r region.LabelRegion, orientation float64) (*RectifiedLabel, error) {
	w, h := OutputSize(r)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: region %d has axes %.2f x %.2f", ErrDegenerateRegion, r.ID, r.AxisMajor, r.AxisMinor)
	}

	forward, inverse, err := Transform(r, orientation, img.Bounds().Min)
	if err != nil {
		return nil, err
	}

	dst := newBuffer(img, w, h)
	draw.BiLinear.Transform(dst, pixelCenterAff3(forward), img, img.Bounds(), draw.Src, nil)

	return &RectifiedLabel{
		Image:       dst,
		Region:      r,
		Orientation: orientation,
		forward:     forward,
		inverse:     inverse,
	}, nil
}

// newBuffer allocates an output buffer with the channel layout of src.
func newBuffer(src image.Image, w, h int) draw.Image {
	rect := image.Rect(0, 0, w, h)
	switch src.(type) {
	case *image.Gray:
		return image.NewGray(rect)
	case *image.Gray16:
		return image.NewGray16(rect)
	}
	return image.NewRGBA(rect)
}

// pixelCenterAff3 converts a transform whose pixel centers sit at integer
// coordinates into the x/image/draw convention, where the center of pixel
// (x, y) is at (x+0.5, y+0.5).
func pixelCenterAff3(m *mat.Dense) f64.Aff3 {
	a, b, c := m.At(0, 0), m.At(0, 1), m.At(0, 2)
	d, e, f := m.At(1, 0), m.At(1, 1), m.At(1, 2)
	return f64.Aff3{
		a, b, c - 0.5*a - 0.5*b + 0.5,
		d, e, f - 0.5*d - 0.5*e + 0.5,
	}
}

func apply(m *mat.Dense, x, y float64) (float64, float64) {
	return m.At(0, 0)*x + m.At(0, 1)*y + m.At(0, 2),
		m.At(1, 0)*x + m.At(1, 1)*y + m.At(1, 2)
}

// SourcePoint maps a position in the rectified label back to absolute
// coordinates of the source image.
func (l *RectifiedLabel) SourcePoint(x, y float64) r2.Vec {
	sx, sy := apply(l.inverse, x, y)
	return r2.Vec{X: sx, Y: sy}
}

// LabelPoint maps an absolute source image position into the rectified
// label.
func (l *RectifiedLabel) LabelPoint(x, y float64) r2.Vec {
	lx, ly := apply(l.forward, x, y)
	return r2.Vec{X: lx, Y: ly}
}

// Corners returns the source positions of the crop's four outer corners,
// clockwise from the top-left of the rectified image.
func (l *RectifiedLabel) Corners() [4]r2.Vec {
	b := l.Image.Bounds()
	w, h := float64(b.Dx())-0.5, float64(b.Dy())-0.5
	return [4]r2.Vec{
		l.SourcePoint(-0.5, -0.5),
		l.SourcePoint(w, -0.5),
		l.SourcePoint(w, h),
		l.SourcePoint(-0.5, h),
	}
}

// Forward returns a copy of the source-to-label transform.
func (l *RectifiedLabel) Forward() *mat.Dense {
	return mat.DenseCopyOf(l.forward)
}

// Inverse returns a copy of the label-to-source transform.
func (l *RectifiedLabel) Inverse() *mat.Dense {
	return mat.DenseCopyOf(l.inverse)
}
