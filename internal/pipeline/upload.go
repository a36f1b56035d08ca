package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// UploadedImage is one file as received from a form, before any processing.
type UploadedImage struct {
	Data         []byte
	DeclaredMIME string
	Filename     string
}

// Validate checks up against the allowed MIME types. The declared type, the
// file extension and the sniffed content must all agree on one codec.
func Validate(up UploadedImage, allowed []string) (*Codec, error) {
	const op = "pipeline.Validate"

	if len(up.Data) == 0 {
		return nil, fmt.Errorf("%s: %w: %q is empty", op, ErrInvalidUpload, up.Filename)
	}

	declared := normalizeMIME(up.DeclaredMIME)
	if !contains(allowed, declared) {
		return nil, fmt.Errorf("%s: %w: %q has type %q", op, ErrUnsupportedFormat, up.Filename, up.DeclaredMIME)
	}
	codec, err := Lookup(declared)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if ext := filepath.Ext(up.Filename); !codec.HasExtension(ext) {
		return nil, fmt.Errorf("%s: %w: extension %q does not match %s", op, ErrInvalidUpload, ext, codec.MIME)
	}

	if sniffed := mimetype.Detect(up.Data); !sniffed.Is(codec.MIME) {
		return nil, fmt.Errorf("%s: %w: %q content is %s, declared %s", op, ErrInvalidUpload, up.Filename, sniffed.String(), codec.MIME)
	}
	return codec, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if normalizeMIME(s) == v {
			return true
		}
	}
	return false
}
