package region

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/stat"

	"github.com/NHMDenmark/NHMDlabelreader/internal/mask"
)

// Connectivity selects which neighbors join pixels into one component.
type Connectivity int

const (
	// Four joins pixels sharing an edge.
	Four Connectivity = 4
	// Eight also joins diagonally touching pixels. This is the default.
	Eight Connectivity = 8
)

// ParseConnectivity accepts 4 or 8; 0 selects the default.
func ParseConnectivity(n int) (Connectivity, error) {
	switch n {
	case 0, 8:
		return Eight, nil
	case 4:
		return Four, nil
	}
	return 0, fmt.Errorf("unsupported connectivity %d (want 4 or 8)", n)
}

// Point is a sub-pixel position in row/column order.
type Point struct {
	Row float64 `json:"row"`
	Col float64 `json:"col"`
}

// Vec returns p in (x, y) = (col, row) order.
func (p Point) Vec() r2.Vec {
	return r2.Vec{X: p.Col, Y: p.Row}
}

// BoundingBox is the half-open pixel box [MinRow,MaxRow) x [MinCol,MaxCol).
type BoundingBox struct {
	MinRow int `json:"min_row"`
	MinCol int `json:"min_col"`
	MaxRow int `json:"max_row"`
	MaxCol int `json:"max_col"`
}

// Rect returns the box as an image rectangle in mask coordinates.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.MinCol, b.MinRow, b.MaxCol, b.MaxRow)
}

// LabelRegion describes one connected foreground component.
//
// Orientation is the angle, in radians, from the row axis toward the column
// axis of the major principal axis, normalized to (-pi/2, pi/2]. The major
// axis therefore points along (dx, dy) = (sin, cos) of Orientation.
// AxisMajor and AxisMinor are the full axis lengths of the ellipse with the
// same second moments as the region.
type LabelRegion struct {
	ID          int         `json:"id"`
	Centroid    Point       `json:"centroid"`
	Orientation float64     `json:"orientation"`
	AxisMinor   float64     `json:"axis_minor"`
	AxisMajor   float64     `json:"axis_major"`
	BBox        BoundingBox `json:"bbox"`
	Area        int         `json:"area"`
}

// Aspect returns AxisMinor/AxisMajor, or 1 for a degenerate region.
func (r LabelRegion) Aspect() float64 {
	if r.AxisMajor == 0 {
		return 1
	}
	return r.AxisMinor / r.AxisMajor
}

// LabelImage assigns every pixel the ID of the region that owns it, 0 for
// background.
type LabelImage struct {
	Width  int
	Height int
	Labels []int32
}

// At returns the label at column x, row y, or 0 outside the image.
func (l *LabelImage) At(x, y int) int {
	if x < 0 || y < 0 || x >= l.Width || y >= l.Height {
		return 0
	}
	return int(l.Labels[y*l.Width+x])
}

// Mask returns the pixels of one region as a mask.
func (l *LabelImage) Mask(id int) *mask.BinaryMask {
	m := mask.New(l.Width, l.Height)
	for i, v := range l.Labels {
		if int(v) == id {
			m.Pix[i] = 1
		}
	}
	return m
}

type pixel struct {
	x, y int
}

// Extract labels the connected foreground components of m and computes
// their descriptors.
//
// Components are numbered 1, 2, ... in raster order of their first pixel, so
// numbering is stable for a given mask. Both slices are empty for an empty
// mask.
func Extract(m *mask.BinaryMask, conn Connectivity) (*LabelImage, []LabelRegion) {
	labels := &LabelImage{Width: m.Width, Height: m.Height, Labels: make([]int32, len(m.Pix))}
	regions := make([]LabelRegion, 0)

	next := int32(0)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			i := y*m.Width + x
			if m.Pix[i] == 0 || labels.Labels[i] != 0 {
				continue
			}
			next++
			pixels := fill(m, labels, x, y, next, conn)
			regions = append(regions, describe(int(next), pixels))
		}
	}
	return labels, regions
}

// fill labels the component containing (startX, startY) with id using an
// explicit stack, and returns its pixels.
func fill(m *mask.BinaryMask, labels *LabelImage, startX, startY int, id int32, conn Connectivity) []pixel {
	var offsets []pixel
	if conn == Four {
		offsets = []pixel{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	} else {
		offsets = []pixel{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
	}

	w := m.Width
	labels.Labels[startY*w+startX] = id
	stack := []pixel{{startX, startY}}
	pixels := make([]pixel, 0, 64)

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		pixels = append(pixels, p)

		for _, o := range offsets {
			nx, ny := p.x+o.x, p.y+o.y
			if nx < 0 || ny < 0 || nx >= w || ny >= m.Height {
				continue
			}
			j := ny*w + nx
			if m.Pix[j] == 0 || labels.Labels[j] != 0 {
				continue
			}
			labels.Labels[j] = id
			stack = append(stack, pixel{nx, ny})
		}
	}
	return pixels
}

// describe computes the descriptors of one component from its pixels.
func describe(id int, pixels []pixel) LabelRegion {
	n := len(pixels)
	r := LabelRegion{
		ID:   id,
		Area: n,
		BBox: BoundingBox{MinRow: math.MaxInt, MinCol: math.MaxInt, MaxRow: -1, MaxCol: -1},
	}

	coords := mat.NewDense(n, 2, nil)
	var sumRow, sumCol float64
	for i, p := range pixels {
		coords.Set(i, 0, float64(p.y))
		coords.Set(i, 1, float64(p.x))
		sumRow += float64(p.y)
		sumCol += float64(p.x)
		if p.y < r.BBox.MinRow {
			r.BBox.MinRow = p.y
		}
		if p.x < r.BBox.MinCol {
			r.BBox.MinCol = p.x
		}
		if p.y+1 > r.BBox.MaxRow {
			r.BBox.MaxRow = p.y + 1
		}
		if p.x+1 > r.BBox.MaxCol {
			r.BBox.MaxCol = p.x + 1
		}
	}
	r.Centroid = Point{Row: sumRow / float64(n), Col: sumCol / float64(n)}

	if n < 2 {
		return r
	}

	// Population covariance of the pixel coordinates.
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, coords, nil)
	cov.ScaleSym(float64(n-1)/float64(n), &cov)

	major, minor, theta := principalAxes(&cov)
	r.AxisMajor = 4 * math.Sqrt(major)
	r.AxisMinor = 4 * math.Sqrt(minor)
	r.Orientation = theta
	return r
}

// principalAxes returns the eigenvalues of a 2x2 (row, col) covariance
// matrix in descending order and the orientation of the major eigenvector.
func principalAxes(cov *mat.SymDense) (major, minor, theta float64) {
	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		// Fall back to the diagonal.
		a, c := cov.At(0, 0), cov.At(1, 1)
		if a >= c {
			return a, math.Max(c, 0), 0
		}
		return c, math.Max(a, 0), math.Pi / 2
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// Values are ascending.
	major, minor = vals[1], math.Max(vals[0], 0)
	vr, vc := vecs.At(0, 1), vecs.At(1, 1)
	if major-minor < 1e-12*math.Max(major, 1) {
		// Isotropic: no preferred direction.
		return major, minor, 0
	}
	return major, minor, NormalizeAxis(math.Atan2(vc, vr))
}

// NormalizeAxis folds an undirected axis angle into (-pi/2, pi/2].
func NormalizeAxis(theta float64) float64 {
	for theta > math.Pi/2 {
		theta -= math.Pi
	}
	for theta <= -math.Pi/2 {
		theta += math.Pi
	}
	return theta
}

// NormalizeAngle folds a directed angle into (-pi, pi].
func NormalizeAngle(theta float64) float64 {
	for theta > math.Pi {
		theta -= 2 * math.Pi
	}
	for theta <= -math.Pi {
		theta += 2 * math.Pi
	}
	return theta
}
