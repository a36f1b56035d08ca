package pipeline

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const (
	DefaultMaxWidth  = 1000
	DefaultMaxHeight = 3000
	DefaultQuality   = 85
)

// Resized is the stored-original form of an upload.
type Resized struct {
	Data   []byte
	Width  int
	Height int
	// Passthrough is true when Data is the unmodified source.
	Passthrough bool
}

// Resize fits src inside maxWidth x maxHeight with a uniform scale-down.
// Sources already within bounds are returned byte-for-byte so they are never
// put through a lossy re-encode. The scale decision is made from the header
// alone; the raster is only decoded when it has to be resampled.
func Resize(src []byte, mimeType string, maxWidth, maxHeight, quality int) (*Resized, error) {
	const op = "pipeline.Resize"

	codec, err := Lookup(mimeType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	w, h, err := codec.Dimensions(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	scale, err := ComputeScale(w, h, maxWidth, maxHeight)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !scale.NeedsResize() {
		return &Resized{Data: src, Width: scale.Width, Height: scale.Height, Passthrough: true}, nil
	}

	img, err := codec.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	dst := resample(img, scale.Width, scale.Height)

	data, err := codec.Encode(dst, quality)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Resized{Data: data, Width: scale.Width, Height: scale.Height}, nil
}

// resample scales the whole of img to w x h. imaging allocates a zeroed, fully
// transparent NRGBA destination and writes filtered pixels straight into it,
// so source alpha is carried over instead of being blended onto a background.
func resample(img image.Image, w, h int) *image.NRGBA {
	return imaging.Resize(img, w, h, imaging.Box)
}
