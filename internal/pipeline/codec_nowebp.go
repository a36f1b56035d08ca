//go:build !webp

package pipeline

// WebP encoding needs libwebp through cgo; build with -tags webp to enable it.
// Without it WebP can still be decoded and stored as a passthrough copy.
func webpEncoder() encodeFunc {
	return nil
}
