package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/webp"
)

const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEGIF  = "image/gif"
	MIMEWebP = "image/webp"
)

// MaxDecodePixels bounds the raster a single upload may expand to.
const MaxDecodePixels = 64 << 20

type (
	decodeFunc func(io.Reader) (image.Image, error)
	configFunc func(io.Reader) (image.Config, error)
	encodeFunc func(w io.Writer, img image.Image, quality int) error
)

// Codec is one row of the format capability table.
type Codec struct {
	MIME       string
	Extensions []string
	// Alpha is true for formats that carry transparency. Canvases for these
	// start fully transparent and pixels are copied without compositing.
	Alpha bool

	decode decodeFunc
	config configFunc
	encode encodeFunc
}

var codecs = newCodecTable()

func newCodecTable() map[string]*Codec {
	return map[string]*Codec{
		MIMEJPEG: {
			MIME:       MIMEJPEG,
			Extensions: []string{".jpg", ".jpeg"},
			decode:     jpeg.Decode,
			config:     jpeg.DecodeConfig,
			encode:     encodeJPEG,
		},
		MIMEPNG: {
			MIME:       MIMEPNG,
			Extensions: []string{".png"},
			Alpha:      true,
			decode:     png.Decode,
			config:     png.DecodeConfig,
			encode:     encodePNG,
		},
		MIMEGIF: {
			MIME:       MIMEGIF,
			Extensions: []string{".gif"},
			Alpha:      true,
			decode:     gif.Decode,
			config:     gif.DecodeConfig,
			encode:     encodeGIF,
		},
		MIMEWebP: {
			MIME:       MIMEWebP,
			Extensions: []string{".webp"},
			Alpha:      true,
			decode:     webp.Decode,
			config:     webp.DecodeConfig,
			encode:     webpEncoder(),
		},
	}
}

// Lookup returns the codec registered for mimeType. Parameters such as
// "; charset=" are ignored.
func Lookup(mimeType string) (*Codec, error) {
	c, ok := codecs[normalizeMIME(mimeType)]
	if !ok {
		return nil, fmt.Errorf("pipeline.Lookup: %w: %q", ErrUnsupportedFormat, mimeType)
	}
	return c, nil
}

// SupportedMIMETypes lists every MIME type in the table, sorted.
func SupportedMIMETypes() []string {
	out := make([]string, 0, len(codecs))
	for m := range codecs {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func normalizeMIME(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return strings.ToLower(strings.TrimSpace(m))
}

// HasExtension reports whether ext (with or without the dot) belongs to c.
func (c *Codec) HasExtension(ext string) bool {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	for _, e := range c.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// CanEncode is false when the build lacks an encoder for the format.
func (c *Codec) CanEncode() bool {
	return c.encode != nil
}

// Dimensions reads only the header of data.
func (c *Codec) Dimensions(data []byte) (int, int, error) {
	const op = "pipeline.Dimensions"

	cfg, err := c.config(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w: %s: %v", op, ErrDecode, c.MIME, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, fmt.Errorf("%s: %w: degenerate size %dx%d", op, ErrDecode, cfg.Width, cfg.Height)
	}
	return cfg.Width, cfg.Height, nil
}

// Decode parses data as c's format. The header is checked first so oversized
// or degenerate rasters are rejected before any pixel buffer is allocated.
func (c *Codec) Decode(data []byte) (image.Image, error) {
	const op = "pipeline.Decode"

	w, h, err := c.Dimensions(data)
	if err != nil {
		return nil, err
	}
	if int64(w)*int64(h) > MaxDecodePixels {
		return nil, fmt.Errorf("%s: %w: %dx%d exceeds pixel limit", op, ErrDecode, w, h)
	}

	img, err := c.decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s: %v", op, ErrDecode, c.MIME, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%s: %w: empty raster", op, ErrDecode)
	}
	return img, nil
}

// Encode serializes img. quality only affects lossy formats.
func (c *Codec) Encode(img image.Image, quality int) ([]byte, error) {
	const op = "pipeline.Encode"

	if c.encode == nil {
		return nil, fmt.Errorf("%s: %w: no encoder for %s in this build", op, ErrUnsupportedFormat, c.MIME)
	}
	var buf bytes.Buffer
	if err := c.encode(&buf, img, clampQuality(quality)); err != nil {
		return nil, fmt.Errorf("%s: %w: %s: %v", op, ErrEncode, c.MIME, err)
	}
	return buf.Bytes(), nil
}

// Decode looks up the codec for mimeType and decodes data with it.
func Decode(data []byte, mimeType string) (image.Image, error) {
	c, err := Lookup(mimeType)
	if err != nil {
		return nil, err
	}
	return c.Decode(data)
}

// Encode looks up the codec for mimeType and encodes img with it.
func Encode(img image.Image, mimeType string, quality int) ([]byte, error) {
	c, err := Lookup(mimeType)
	if err != nil {
		return nil, err
	}
	return c.Encode(img, quality)
}

func clampQuality(q int) int {
	if q <= 0 {
		return DefaultQuality
	}
	return clamp(q, 1, 100)
}

func encodeJPEG(w io.Writer, img image.Image, quality int) error {
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
}

func encodePNG(w io.Writer, img image.Image, _ int) error {
	return imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
}

func encodeGIF(w io.Writer, img image.Image, _ int) error {
	return imaging.Encode(w, img, imaging.GIF,
		imaging.GIFNumColors(256),
		imaging.GIFQuantizer(transparentPlan9{}),
		imaging.GIFDrawer(draw.Src),
	)
}

// transparentPlan9 is Plan9 with its last entry swapped for a fully
// transparent color, so GIF output keeps 1-bit transparency.
type transparentPlan9 struct{}

func (transparentPlan9) Quantize(p color.Palette, _ image.Image) color.Palette {
	p = append(p, palette.Plan9[:255]...)
	return append(p, color.Transparent)
}
