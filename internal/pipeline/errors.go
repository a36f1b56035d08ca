package pipeline

import "errors"

var (
	// ErrDecode means the source bytes could not be read as a raster of the
	// declared format, or the raster has degenerate dimensions.
	ErrDecode = errors.New("image decode failed")
	// ErrEncode means a raster was produced but could not be serialized.
	ErrEncode = errors.New("image encode failed")
	// ErrUnsupportedFormat means the MIME type is outside the codec table, or
	// the codec for it is not available in this build.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrInvalidUpload is returned by the validation boundary.
	ErrInvalidUpload = errors.New("invalid upload")
)
