package pipeline

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

const (
	DefaultThumbnailWidth  = 600
	DefaultThumbnailHeight = 450
	// DefaultGradientFraction is the share of the thumbnail height, measured
	// from the bottom edge, that receives the white fade.
	DefaultGradientFraction = 0.4
	// DefaultGradientStrength is the overlay alpha (out of 255) reached at the
	// last row of the band. 127 gives roughly a 50% white blend.
	DefaultGradientStrength uint8 = 127
)

// ThumbnailOptions controls MakeThumbnail.
type ThumbnailOptions struct {
	Width            int
	Height           int
	Quality          int
	GradientFraction float64
	GradientStrength uint8
}

func DefaultThumbnailOptions() ThumbnailOptions {
	return ThumbnailOptions{
		Width:            DefaultThumbnailWidth,
		Height:           DefaultThumbnailHeight,
		Quality:          DefaultQuality,
		GradientFraction: DefaultGradientFraction,
		GradientStrength: DefaultGradientStrength,
	}
}

// MakeThumbnail crops data to the target aspect ratio (see ComputeCenterCrop),
// resamples the crop to exactly opts.Width x opts.Height, fades the bottom band
// towards white and re-encodes in the source format.
func MakeThumbnail(data []byte, mimeType string, opts ThumbnailOptions) ([]byte, error) {
	const op = "pipeline.MakeThumbnail"

	codec, err := Lookup(mimeType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !codec.CanEncode() {
		return nil, fmt.Errorf("%s: %w: cannot encode %s", op, ErrUnsupportedFormat, codec.MIME)
	}

	img, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	thumb, err := cropResize(img, opts.Width, opts.Height)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	thumb = ApplyGradient(thumb, opts.GradientFraction, opts.GradientStrength)

	out, err := codec.Encode(thumb, opts.Quality)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// cropResize cuts the crop rectangle out of img and scales it to exactly w x h.
// Like resample, the destination starts transparent and is written without
// compositing.
func cropResize(img image.Image, w, h int) (*image.NRGBA, error) {
	b := img.Bounds()
	rect, err := ComputeCenterCrop(b.Dx(), b.Dy(), w, h)
	if err != nil {
		return nil, err
	}
	cropped := imaging.Crop(img, rect.Add(b.Min))
	return imaging.Resize(cropped, w, h, imaging.Lanczos), nil
}

// GradientBand returns the first row of the band and its height for an image
// of the given height.
func GradientBand(height int, fraction float64) (startY, bandHeight int) {
	if height <= 0 || fraction <= 0 {
		return height, 0
	}
	bandHeight = clamp(int(math.Round(float64(height)*fraction)), 0, height)
	return height - bandHeight, bandHeight
}

// GradientAlpha is the white overlay alpha for row (0-based) of a band of
// bandHeight rows: (row/bandHeight) * strength. Row 0 is always 0.
func GradientAlpha(row, bandHeight int, strength uint8) uint8 {
	if bandHeight <= 0 || row <= 0 {
		return 0
	}
	if row >= bandHeight {
		return strength
	}
	return uint8(float64(row) / float64(bandHeight) * float64(strength))
}

// ApplyGradient alpha-composites a white overlay over the bottom band of img.
// Every overlay row is a full-width white line whose alpha grows linearly
// towards the bottom edge. Rows above the band are left untouched.
func ApplyGradient(img *image.NRGBA, fraction float64, strength uint8) *image.NRGBA {
	b := img.Bounds()
	startY, bandHeight := GradientBand(b.Dy(), fraction)
	if bandHeight == 0 || strength == 0 {
		return img
	}

	// Skip the leading rows whose overlay alpha rounds down to zero; they
	// would not change the output.
	first := 0
	for first < bandHeight && GradientAlpha(first, bandHeight, strength) == 0 {
		first++
	}
	if first == bandHeight {
		return img
	}

	overlay := image.NewNRGBA(image.Rect(0, 0, b.Dx(), bandHeight-first))
	for y := first; y < bandHeight; y++ {
		a := GradientAlpha(y, bandHeight, strength)
		row := overlay.Pix[(y-first)*overlay.Stride : (y-first)*overlay.Stride+b.Dx()*4]
		for i := 0; i < len(row); i += 4 {
			row[i+0] = 0xff
			row[i+1] = 0xff
			row[i+2] = 0xff
			row[i+3] = a
		}
	}

	return imaging.Overlay(img, overlay, image.Pt(b.Min.X, b.Min.Y+startY+first), 1.0)
}
