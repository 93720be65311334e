package detector

// SelectLargest returns the region with the strictly greatest area. When
// several regions share the maximum, the first one in input order wins.
// Degenerate regions (zero area) are never selected, so an empty or
// all-degenerate input returns false.
func SelectLargest(regions []Region) (Region, bool) {
	var (
		best     Region
		bestArea int
	)
	for _, r := range regions {
		if area := r.Area(); area > bestArea {
			best = r
			bestArea = area
		}
	}
	return best, bestArea > 0
}
