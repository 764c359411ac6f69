// Package pipeline runs label detection on one photograph: background
// resolution, color segmentation, mask refinement, component extraction,
// plausibility filtering, orientation estimation and rectification.
//
// A Detector holds no per-image state and may be reused for any number of
// images. Front/back correspondence is not handled here; see package
// correspond.
package pipeline
