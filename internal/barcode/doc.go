// Package barcode decodes the catalogue number printed as a 2D code on
// newer labels.
package barcode
