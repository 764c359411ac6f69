// Package imaging reads and writes the photographs and label crops handled
// by the label reader, and renders diagnostic overlays.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based with the origin at the
// top-left corner, X increasing rightward and Y increasing downward.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. The remaining functions are
// stateless.
//
// # File Names
//
// Crops are named after their catalogue key, which is not guaranteed to be
// unique across a batch. UniquePath resolves collisions by numbering the
// later files rather than overwriting earlier ones.
package imaging
