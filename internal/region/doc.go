// Package region labels connected components of a foreground mask and
// describes each one by its centroid, principal axes, bounding box and area.
//
// Axis lengths and orientation come from the eigen-decomposition of the
// covariance of the component's pixel coordinates, matching the usual
// "ellipse with the same second moments" definition. Filter drops components
// that are too small or too square to be a label.
package region
