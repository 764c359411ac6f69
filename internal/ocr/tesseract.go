package ocr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/anthonynsimon/bild/effect"
	"github.com/otiai10/gosseract/v2"
)

// DefaultLanguages are the Tesseract language codes used when none are set.
var DefaultLanguages = []string{"dan", "eng"}

// ErrNoImage is returned when ReadLines is given a nil or empty image.
var ErrNoImage = errors.New("no image to read")

// Reader recognizes the text of a label image.
//
// ReadLines returns one slice of word tokens per text line, top to bottom. An
// image without legible text yields an empty result and a nil error.
type Reader interface {
	ReadLines(img image.Image) ([][]string, error)
}

// Word is one recognized token with its position in the label image.
type Word struct {
	Text       string
	Confidence float64
	Box        image.Rectangle
	Block      int
	Paragraph  int
	Line       int
	Index      int // 1-based position of the word in its line
}

// Tesseract is a Reader backed by a local Tesseract installation.
//
// The zero value uses DefaultLanguages. A Tesseract holds no client between
// calls and may be shared.
type Tesseract struct {
	Languages []string
	// MinArea is the smallest word box area kept, exclusive. Zero means 20.
	MinArea int
}

// NewTesseract returns a reader for the given languages.
func NewTesseract(languages ...string) *Tesseract {
	return &Tesseract{Languages: languages}
}

// ReadLines runs Tesseract on img as a single block of text and groups the
// surviving words into lines.
func (t *Tesseract) ReadLines(img image.Image) ([][]string, error) {
	words, err := t.ReadWords(img)
	if err != nil {
		return nil, err
	}
	return groupLines(words), nil
}

// ReadWords returns the filtered word boxes of img in Tesseract's iteration
// order.
//
// # Preprocessing
//
// The image is converted to grayscale and handed to Tesseract as an in-memory
// PNG, so no temporary files are created.
func (t *Tesseract) ReadWords(img image.Image) ([]Word, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrNoImage
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, effect.Grayscale(img)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	langs := t.Languages
	if len(langs) == 0 {
		langs = DefaultLanguages
	}
	if err := client.SetLanguage(langs...); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxesVerbose()
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	minArea := t.MinArea
	if minArea <= 0 {
		minArea = 20
	}
	words := make([]Word, 0, len(boxes))
	for _, b := range boxes {
		w := Word{
			Text:       b.Word,
			Confidence: b.Confidence,
			Box:        b.Box,
			Block:      b.BlockNum,
			Paragraph:  b.ParNum,
			Line:       b.LineNum,
			Index:      b.WordNum,
		}
		if keep(w, minArea) {
			words = append(words, w)
		}
	}
	return words, nil
}

// Version reports the version of the linked Tesseract library.
func Version() string {
	client := gosseract.NewClient()
	defer client.Close()
	return client.Version()
}

func keep(w Word, minArea int) bool {
	if w.Text == "" || w.Confidence <= 0 {
		return false
	}
	return w.Box.Dx()*w.Box.Dy() > minArea
}

// groupLines splits words into lines. A line ends when the next word is the
// first of its line or its (block, paragraph, line) position changes.
func groupLines(words []Word) [][]string {
	var (
		lines [][]string
		cur   []string
		prev  Word
	)
	for i, w := range words {
		newLine := i > 0 && (w.Index == 1 ||
			w.Block != prev.Block || w.Paragraph != prev.Paragraph || w.Line != prev.Line)
		if newLine && len(cur) > 0 {
			lines = append(lines, cur)
			cur = nil
		}
		cur = append(cur, w.Text)
		prev = w
	}
	if len(cur) > 0 {
		lines = append(lines, cur)
	}
	return lines
}
