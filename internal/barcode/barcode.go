package barcode

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ErrNotFound is returned when no supported code can be read from an image.
var ErrNotFound = errors.New("no barcode found")

// Format is a supported symbology.
type Format string

const (
	DataMatrix Format = "datamatrix"
	QRCode     Format = "qrcode"
)

// ParseFormat parses a symbology name as used in configuration files.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case DataMatrix, QRCode:
		return f, nil
	case "qr":
		return QRCode, nil
	case "dm", "data_matrix":
		return DataMatrix, nil
	}
	return "", fmt.Errorf("unknown barcode format %q", s)
}

// Decoder reads catalogue keys from label images.
type Decoder struct {
	formats []Format
	readers []gozxing.Reader
	hints   map[gozxing.DecodeHintType]interface{}
}

// NewDecoder returns a decoder trying formats in order. Without formats it
// tries Data Matrix, then QR.
func NewDecoder(formats ...Format) *Decoder {
	if len(formats) == 0 {
		formats = []Format{DataMatrix, QRCode}
	}
	d := &Decoder{
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
	for _, f := range formats {
		switch f {
		case DataMatrix:
			d.readers = append(d.readers, datamatrix.NewDataMatrixReader())
		case QRCode:
			d.readers = append(d.readers, qrcode.NewQRCodeReader())
		default:
			continue
		}
		d.formats = append(d.formats, f)
	}
	return d
}

// Formats returns the symbologies the decoder tries, in order.
func (d *Decoder) Formats() []Format {
	return append([]Format(nil), d.formats...)
}

// ReadKey returns the trimmed text of the first code found in img.
func (d *Decoder) ReadKey(img image.Image) (string, error) {
	if img == nil || img.Bounds().Empty() {
		return "", ErrNotFound
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("failed to create bitmap: %w", err)
	}

	for _, r := range d.readers {
		res, err := r.Decode(bmp, d.hints)
		if err != nil {
			continue
		}
		if text := strings.TrimSpace(res.GetText()); text != "" {
			return text, nil
		}
	}
	return "", ErrNotFound
}
