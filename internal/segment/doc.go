// Package segment separates labels from the colored sheet they are
// photographed on.
//
// Pixels are classified in HSV space: a pixel belongs to the background when
// its hue falls inside a configured interval and it is saturated and bright
// enough for the hue to be meaningful. Hue is expressed as a fraction of a
// full turn, so pure red is 0, green is 1/3 and blue is 2/3.
//
// # Background Kinds
//
// Batches are shot on either a red or a blue sheet. BackgroundKind names the
// sheet and carries its hue intervals; a BackgroundEstimator decides which
// sheet an image was shot on when the batch configuration says "auto".
package segment
