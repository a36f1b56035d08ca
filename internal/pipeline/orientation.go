package pipeline

// DefaultVerticalThreshold is the height/width ratio at which an image counts
// as vertical and gets a thumbnail.
const DefaultVerticalThreshold = 1.5

// IsVertical reports whether height/width >= threshold. The boundary is
// inclusive. Degenerate sizes are never vertical.
func IsVertical(width, height int, threshold float64) bool {
	if width <= 0 || height <= 0 {
		return false
	}
	return float64(height)/float64(width) >= threshold
}
