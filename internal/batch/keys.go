package batch

import (
	"fmt"
	"image"
	"regexp"
	"strings"
)

// KeyReader reads a catalogue key printed as a code on a label.
// barcode.Decoder implements it.
type KeyReader interface {
	ReadKey(img image.Image) (string, error)
}

// Key sources recorded in the "key_source" field.
const (
	SourceBarcode  = "barcode"
	SourceOCR      = "ocr"
	SourcePosition = "position"
)

var catalogueNumber = regexp.MustCompile(`\d+[.-]*\d+`)

// KeyFromLines returns the first catalogue-number-like token of the OCR
// output, in reading order, or "" if there is none.
func KeyFromLines(lines [][]string) string {
	for _, line := range lines {
		for _, tok := range line {
			if m := catalogueNumber.FindString(tok); m != "" {
				return m
			}
		}
	}
	return ""
}

// PositionalKey names a label after its photograph and region id.
func PositionalKey(stem string, id int) string {
	return fmt.Sprintf("%s_label%d", stem, id)
}

// FieldParser turns the OCR lines of one label into named fields.
type FieldParser interface {
	ParseFields(lines [][]string) map[string]string
}

// TextParser is the default FieldParser. It keeps the transcription and the
// first catalogue number.
type TextParser struct{}

// ParseFields returns "text", with lines separated by newlines, and
// "catalogue_number".
func (TextParser) ParseFields(lines [][]string) map[string]string {
	text := make([]string, 0, len(lines))
	for _, l := range lines {
		text = append(text, strings.Join(l, " "))
	}
	return map[string]string{
		"text":             strings.Join(text, "\n"),
		"catalogue_number": KeyFromLines(lines),
	}
}

// fileSafe replaces characters that do not belong in a file name.
func fileSafe(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, key)
}
