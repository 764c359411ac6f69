// Package correspond matches the labels of a back image to those of the front
// image photographed just before it.
//
// A card keeps its tray slot between the two photographs, so the back of a
// card lies where its front lay. Tracker matches by nearest centroid and
// merges the per-face fields into one row per card, keyed by the catalogue
// key read from the front. It expects images to alternate front, back,
// front, back and reports any deviation as ErrProtocolViolation.
package correspond
