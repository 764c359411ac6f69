// Package ocr reads the text of rectified labels with Tesseract.
//
// This package wraps the Tesseract OCR engine (via gosseract/v2). A Reader
// returns the recognized text as lines of word tokens, in reading order,
// which is the form the catalogue-key heuristic and field parsers consume.
//
// # Prerequisites
//
// Tesseract and the language data must be installed on the system:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-dan
//   - macOS: brew install tesseract tesseract-lang
//
// The default language is "dan+eng" since most of the collection's labels
// are written in Danish or English.
//
// # Filtering
//
// Words with a non-positive confidence, or whose bounding box covers 20
// pixels or fewer, are dropped. These are almost always specks, card edges
// or fragments of the marker line.
package ocr
