package mask

import "math"

// Disk is a flat, symmetric structuring element made of all offsets (dx, dy)
// with dx*dx+dy*dy <= Radius*Radius.
//
// The element is stored as one half-width per row offset: for row offset dy
// in [-Radius, Radius], the element spans columns [-Half[dy+Radius],
// +Half[dy+Radius]]. A disk of radius 0 is the single origin pixel.
type Disk struct {
	Radius int
	Half   []int
}

// NewDisk builds the disk structuring element of the given radius.
// Negative radii are treated as 0.
func NewDisk(radius int) Disk {
	if radius < 0 {
		radius = 0
	}
	half := make([]int, 2*radius+1)
	r2 := radius * radius
	for dy := -radius; dy <= radius; dy++ {
		w := int(math.Floor(math.Sqrt(float64(r2 - dy*dy))))
		for (w+1)*(w+1)+dy*dy <= r2 {
			w++
		}
		for w > 0 && w*w+dy*dy > r2 {
			w--
		}
		half[dy+radius] = w
	}
	return Disk{Radius: radius, Half: half}
}

// Size returns the number of offsets in the element.
func (d Disk) Size() int {
	n := 0
	for _, w := range d.Half {
		n += 2*w + 1
	}
	return n
}

// rowSums holds one prefix-sum row per mask row: sums[y][x] is the number of
// foreground pixels in columns [0, x) of row y.
type rowSums [][]int

func prefixSums(m *BinaryMask) rowSums {
	sums := make(rowSums, m.Height)
	for y := 0; y < m.Height; y++ {
		row := make([]int, m.Width+1)
		base := y * m.Width
		for x := 0; x < m.Width; x++ {
			row[x+1] = row[x] + int(m.Pix[base+x])
		}
		sums[y] = row
	}
	return sums
}

// span returns the foreground count and the in-image length of the column
// interval [x0, x1] on row y. Rows outside the mask have length 0.
func (s rowSums) span(y, x0, x1, width int) (ones, length int) {
	if y < 0 || y >= len(s) {
		return 0, 0
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > width-1 {
		x1 = width - 1
	}
	if x1 < x0 {
		return 0, 0
	}
	row := s[y]
	return row[x1+1] - row[x0], x1 - x0 + 1
}

// Erode returns the erosion of m by d. Pixels outside the mask count as
// foreground, so objects touching the edge are not eaten from outside.
func Erode(m *BinaryMask, d Disk) *BinaryMask {
	out := New(m.Width, m.Height)
	if d.Radius == 0 {
		copy(out.Pix, m.Pix)
		return out
	}
	sums := prefixSums(m)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if m.Pix[y*m.Width+x] == 0 {
				continue
			}
			keep := true
			for dy := -d.Radius; dy <= d.Radius && keep; dy++ {
				w := d.Half[dy+d.Radius]
				ones, length := sums.span(y+dy, x-w, x+w, m.Width)
				if ones != length {
					keep = false
				}
			}
			if keep {
				out.Pix[y*m.Width+x] = 1
			}
		}
	}
	return out
}

// Dilate returns the dilation of m by d. Pixels outside the mask count as
// background.
func Dilate(m *BinaryMask, d Disk) *BinaryMask {
	out := New(m.Width, m.Height)
	if d.Radius == 0 {
		copy(out.Pix, m.Pix)
		return out
	}
	sums := prefixSums(m)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if m.Pix[y*m.Width+x] != 0 {
				out.Pix[y*m.Width+x] = 1
				continue
			}
			for dy := -d.Radius; dy <= d.Radius; dy++ {
				w := d.Half[dy+d.Radius]
				if ones, _ := sums.span(y+dy, x-w, x+w, m.Width); ones > 0 {
					out.Pix[y*m.Width+x] = 1
					break
				}
			}
		}
	}
	return out
}

// Open removes foreground structures the disk does not fit into.
func Open(m *BinaryMask, d Disk) *BinaryMask {
	return Dilate(Erode(m, d), d)
}

// Close fills background gaps the disk does not fit into.
func Close(m *BinaryMask, d Disk) *BinaryMask {
	return Erode(Dilate(m, d), d)
}

// ClearBorder zeroes a frame of the given width along all four edges of m,
// in place.
func ClearBorder(m *BinaryMask, margin int) {
	if margin <= 0 {
		return
	}
	for y := 0; y < m.Height; y++ {
		inFrame := y < margin || y >= m.Height-margin
		for x := 0; x < m.Width; x++ {
			if inFrame || x < margin || x >= m.Width-margin {
				m.Pix[y*m.Width+x] = 0
			}
		}
	}
}

// Refine cleans a segmentation mask: it clears a borderMargin frame, applies
// a disk opening of the given radius to drop specks, then a closing with the
// same disk to fill small holes. The frame is cleared once more at the end, so
// the result never has foreground within borderMargin of an edge.
//
// A radius of 0 or less skips the morphology. The input is not modified.
func Refine(m *BinaryMask, radius, borderMargin int) *BinaryMask {
	out := m.Clone()
	ClearBorder(out, borderMargin)
	if radius > 0 {
		d := NewDisk(radius)
		out = Close(Open(out, d), d)
	}
	ClearBorder(out, borderMargin)
	return out
}
