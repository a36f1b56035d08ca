package pipeline

import (
	"fmt"
	"image"
	"math"
)

// Scale is the result of fitting a source size into a max-width/max-height box.
type Scale struct {
	Factor float64
	Width  int
	Height int
}

// NeedsResize reports whether the source exceeded one of the bounds.
// When false the stored original must be a byte-identical copy.
func (s Scale) NeedsResize() bool {
	return s.Factor < 1
}

// ComputeScale returns the uniform scale-down needed to fit srcW x srcH inside
// maxW x maxH. Each axis only contributes when it exceeds its own limit and the
// smaller factor wins. Sources already within bounds get Factor 1.
func ComputeScale(srcW, srcH, maxW, maxH int) (Scale, error) {
	const op = "pipeline.ComputeScale"

	if srcW <= 0 || srcH <= 0 {
		return Scale{}, fmt.Errorf("%s: %w: degenerate source %dx%d", op, ErrDecode, srcW, srcH)
	}
	if maxW <= 0 || maxH <= 0 {
		return Scale{}, fmt.Errorf("%s: invalid bounds %dx%d", op, maxW, maxH)
	}

	factor := 1.0
	if srcW > maxW {
		factor = float64(maxW) / float64(srcW)
	}
	if srcH > maxH {
		factor = math.Min(factor, float64(maxH)/float64(srcH))
	}
	if factor >= 1 {
		return Scale{Factor: 1, Width: srcW, Height: srcH}, nil
	}

	w := clamp(int(math.Round(float64(srcW)*factor)), 1, maxW)
	h := clamp(int(math.Round(float64(srcH)*factor)), 1, maxH)
	return Scale{Factor: factor, Width: w, Height: h}, nil
}

// ComputeCenterCrop picks the largest region of a srcW x srcH image that has the
// target aspect ratio. Sources wider than the target are cropped on both sides
// around the horizontal center. Taller (or equal) sources keep their full width
// and are cropped from the top edge, so the upper part of tall shots survives.
func ComputeCenterCrop(srcW, srcH, targetW, targetH int) (image.Rectangle, error) {
	const op = "pipeline.ComputeCenterCrop"

	if srcW <= 0 || srcH <= 0 {
		return image.Rectangle{}, fmt.Errorf("%s: %w: degenerate source %dx%d", op, ErrDecode, srcW, srcH)
	}
	if targetW <= 0 || targetH <= 0 {
		return image.Rectangle{}, fmt.Errorf("%s: invalid target %dx%d", op, targetW, targetH)
	}

	// srcW/srcH > targetW/targetH without going through floats.
	if int64(srcW)*int64(targetH) > int64(srcH)*int64(targetW) {
		cropW := clamp(int(math.Round(float64(srcH)*float64(targetW)/float64(targetH))), 1, srcW)
		x := (srcW - cropW) / 2
		return image.Rect(x, 0, x+cropW, srcH), nil
	}

	cropH := clamp(int(math.Round(float64(srcW)*float64(targetH)/float64(targetW))), 1, srcH)
	return image.Rect(0, 0, srcW, cropH), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
