package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"gonum.org/v1/gonum/spatial/r2"
)

// Outline is a quadrilateral to draw over a photograph, with an optional
// caption at its first corner. Corners are (x, y) image coordinates.
type Outline struct {
	Corners [4]r2.Vec
	Text    string
}

// OverlayOptions controls Overlay.
type OverlayOptions struct {
	// Color is a hex color, "#RRGGBB" or "#RRGGBBAA". Invalid or empty
	// values fall back to opaque yellow.
	Color     string
	Thickness int
	ShowText  bool
}

// DefaultOverlayOptions draws 3 pixel yellow outlines with captions.
func DefaultOverlayOptions() OverlayOptions {
	return OverlayOptions{Color: "#FFFF00", Thickness: 3, ShowText: true}
}

// Overlay returns a copy of img with every outline drawn on top.
//
// The copy has the bounds of img. Outline points outside the image are
// clipped; img itself is not modified.
func Overlay(img image.Image, outlines []Outline, opts OverlayOptions) *image.RGBA {
	bounds := img.Bounds()
	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, img, bounds.Min, draw.Src)

	c, err := parseHexColor(opts.Color)
	if err != nil {
		c = color.RGBA{255, 255, 0, 255}
	}
	thickness := opts.Thickness
	if thickness < 1 {
		thickness = 1
	}

	for _, o := range outlines {
		for i := range o.Corners {
			drawLine(result, o.Corners[i], o.Corners[(i+1)%4], thickness, c)
		}
		if opts.ShowText && o.Text != "" {
			p := o.Corners[0]
			drawCaption(result, int(p.X)+thickness+2, int(p.Y)+thickness+2, o.Text,
				color.RGBA{0, 0, 0, 255}, c)
		}
	}
	return result
}

// drawLine stamps a square pen of the given width along the segment a-b.
func drawLine(img *image.RGBA, a, b r2.Vec, width int, c color.RGBA) {
	d := r2.Sub(b, a)
	steps := int(math.Ceil(math.Max(math.Abs(d.X), math.Abs(d.Y))))
	if steps == 0 {
		steps = 1
	}
	half := width / 2
	for i := 0; i <= steps; i++ {
		p := r2.Add(a, r2.Scale(float64(i)/float64(steps), d))
		x0, y0 := int(math.Round(p.X))-half, int(math.Round(p.Y))-half
		pen := image.Rect(x0, y0, x0+width, y0+width).Intersect(img.Bounds())
		draw.Draw(img, pen, image.NewUniform(c), image.Point{}, draw.Src)
	}
}

// drawCaption draws text on a filled box whose top-left corner is (x, y).
func drawCaption(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil()
	h := face.Metrics().Height.Ceil()

	box := image.Rect(x-1, y-1, x+w+1, y+h+1).Intersect(img.Bounds())
	draw.Draw(img, box, image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fg),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + face.Metrics().Ascent.Ceil())},
	}
	d.DrawString(text)
}

// parseHexColor parses a hex color string like "#FF0000" or "#FF000080"
func parseHexColor(hex string) (color.RGBA, error) {
	if len(hex) == 0 {
		return color.RGBA{}, fmt.Errorf("empty color string")
	}
	if hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) != 6 && len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("invalid hex color length")
	}

	val, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, err
	}
	if len(hex) == 6 {
		return color.RGBA{R: uint8(val >> 16), G: uint8(val >> 8), B: uint8(val), A: 255}, nil
	}
	return color.RGBA{R: uint8(val >> 24), G: uint8(val >> 16), B: uint8(val >> 8), A: uint8(val)}, nil
}
