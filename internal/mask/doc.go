// Package mask holds binary foreground masks and the morphology used to clean
// them up after color segmentation.
//
// Masks use the image coordinate convention: (0,0) is the top-left pixel,
// x grows to the right and y grows downward. Morphological operators use a
// flat disk structuring element and run in O(width*height*radius) time by
// scanning row prefix sums.
package mask
