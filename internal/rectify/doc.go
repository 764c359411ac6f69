// Package rectify crops and rotates detected labels into axis-aligned
// images.
//
// Each label becomes a buffer AxisMajor wide and AxisMinor tall, with axis
// lengths rounded to the nearest pixel. The buffer size depends only on the
// region descriptor, so downstream field positions stay stable between runs.
package rectify
