package region

// Filter rejects regions that cannot be a rectangular label.
type Filter struct {
	// MaxAspect is the AxisMinor/AxisMajor ratio at or above which a region
	// is too square to be a label.
	MaxAspect float64
	// MinArea is the smallest accepted pixel count.
	MinArea int
}

// DefaultFilter returns the thresholds used for single-label photographs.
// Sheets with several cards use a much larger MinArea.
func DefaultFilter() Filter {
	return Filter{MaxAspect: 0.8, MinArea: 1000}
}

// IsPlausible reports whether r passes both thresholds.
func (f Filter) IsPlausible(r LabelRegion) bool {
	if r.AxisMajor <= 0 {
		return false
	}
	if r.AxisMinor/r.AxisMajor >= f.MaxAspect {
		return false
	}
	return r.Area >= f.MinArea
}

// Apply splits regions into kept and rejected, preserving order.
func (f Filter) Apply(regions []LabelRegion) (kept, rejected []LabelRegion) {
	kept = make([]LabelRegion, 0, len(regions))
	for _, r := range regions {
		if f.IsPlausible(r) {
			kept = append(kept, r)
		} else {
			rejected = append(rejected, r)
		}
	}
	return kept, rejected
}
