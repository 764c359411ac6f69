package mask

import (
	"fmt"
	"image"
	"image/color"
)

// BinaryMask is a foreground membership map with the spatial extent of the
// image it was computed from.
//
// Pix holds one byte per pixel in row-major order, each either 0 (background)
// or 1 (foreground). The pixel at column x and row y is Pix[y*Width+x].
// Coordinates are 0-based and relative to the source image's Bounds().Min.
type BinaryMask struct {
	Width  int
	Height int
	Pix    []uint8
}

// New returns an all-background mask of the given size.
func New(width, height int) *BinaryMask {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &BinaryMask{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height),
	}
}

// At returns the value at column x, row y. Positions outside the mask are
// reported as background.
func (m *BinaryMask) At(x, y int) uint8 {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return 0
	}
	return m.Pix[y*m.Width+x]
}

// Set stores v (normalized to 0 or 1) at column x, row y. Positions outside
// the mask are ignored.
func (m *BinaryMask) Set(x, y int, v uint8) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	if v != 0 {
		v = 1
	}
	m.Pix[y*m.Width+x] = v
}

// Count returns the number of foreground pixels.
func (m *BinaryMask) Count() int {
	n := 0
	for _, v := range m.Pix {
		n += int(v)
	}
	return n
}

// Empty reports whether the mask has no foreground pixels.
func (m *BinaryMask) Empty() bool {
	for _, v := range m.Pix {
		if v != 0 {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of m.
func (m *BinaryMask) Clone() *BinaryMask {
	out := &BinaryMask{Width: m.Width, Height: m.Height, Pix: make([]uint8, len(m.Pix))}
	copy(out.Pix, m.Pix)
	return out
}

// Equal reports whether two masks have the same size and pixels.
func (m *BinaryMask) Equal(o *BinaryMask) bool {
	if o == nil || m.Width != o.Width || m.Height != o.Height {
		return false
	}
	for i := range m.Pix {
		if m.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

// And returns the pixelwise intersection of two masks of the same size.
func (m *BinaryMask) And(o *BinaryMask) (*BinaryMask, error) {
	if m.Width != o.Width || m.Height != o.Height {
		return nil, fmt.Errorf("mask size mismatch: %dx%d vs %dx%d", m.Width, m.Height, o.Width, o.Height)
	}
	out := New(m.Width, m.Height)
	for i := range m.Pix {
		out.Pix[i] = m.Pix[i] & o.Pix[i]
	}
	return out, nil
}

// Gray renders the mask as an 8-bit image with foreground drawn white.
func (m *BinaryMask) Gray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Pix {
		if v != 0 {
			img.Pix[i] = 255
		}
	}
	return img
}

// FromImage thresholds any image into a mask: pixels whose luminance is at
// least half of full scale become foreground.
func FromImage(img image.Image) *BinaryMask {
	b := img.Bounds()
	m := New(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			g := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
			if g.Y >= 0x8000 {
				m.Pix[y*m.Width+x] = 1
			}
		}
	}
	return m
}
