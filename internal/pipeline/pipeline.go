package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Kind selects where an upload is stored and which formats it accepts.
type Kind int

const (
	// KindWork is a gallery image. Vertical works also get a thumbnail.
	KindWork Kind = iota
	// KindLogo is a client logo. PNG and JPEG only, never thumbnailed.
	KindLogo
)

func (k Kind) String() string {
	if k == KindLogo {
		return "client"
	}
	return "work"
}

// Config is everything the pipeline needs; nothing is read from globals.
type Config struct {
	WorksDir      string
	ThumbnailsDir string
	LogosDir      string

	// Public URL prefixes the stored paths are built from.
	WorksURL      string
	ThumbnailsURL string
	LogosURL      string

	MaxWidth          int
	MaxHeight         int
	Quality           int
	VerticalThreshold float64
	Thumbnail         ThumbnailOptions

	// MaxConcurrent bounds how many images are decoded at once across all
	// callers. Zero means 1.
	MaxConcurrent int64

	WorkTypes []string
	LogoTypes []string
}

// DefaultConfig returns the stock limits rooted at baseDir.
func DefaultConfig(baseDir, baseURL string) Config {
	return Config{
		WorksDir:          filepath.Join(baseDir, "works"),
		ThumbnailsDir:     filepath.Join(baseDir, "thumbnails"),
		LogosDir:          filepath.Join(baseDir, "client"),
		WorksURL:          path.Join(baseURL, "works"),
		ThumbnailsURL:     path.Join(baseURL, "thumbnails"),
		LogosURL:          path.Join(baseURL, "client"),
		MaxWidth:          DefaultMaxWidth,
		MaxHeight:         DefaultMaxHeight,
		Quality:           DefaultQuality,
		VerticalThreshold: DefaultVerticalThreshold,
		Thumbnail:         DefaultThumbnailOptions(),
		MaxConcurrent:     2,
		WorkTypes:         []string{MIMEPNG, MIMEJPEG, MIMEGIF, MIMEWebP},
		LogoTypes:         []string{MIMEPNG, MIMEJPEG},
	}
}

// ImageAsset describes one stored upload.
type ImageAsset struct {
	StoredPath string
	// ThumbnailPath is empty unless the image is vertical and its thumbnail
	// was written.
	ThumbnailPath string
	IsVertical    bool
	Width         int
	Height        int
	MIME          string
}

type Pipeline struct {
	cfg Config
	sem *semaphore.Weighted
	log *zap.Logger
}

func New(cfg Config, log *zap.Logger) (*Pipeline, error) {
	const op = "pipeline.New"

	for _, dir := range []string{cfg.WorksDir, cfg.ThumbnailsDir, cfg.LogosDir} {
		if dir == "" {
			return nil, fmt.Errorf("%s: storage directories must be set", op)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.VerticalThreshold <= 0 {
		cfg.VerticalThreshold = DefaultVerticalThreshold
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Pipeline{
		cfg: cfg,
		sem: semaphore.NewWeighted(cfg.MaxConcurrent),
		log: log,
	}, nil
}

// Store validates up, writes the size-constrained original and, for vertical
// works, a thumbnail. A thumbnail failure is logged and leaves ThumbnailPath
// empty; any other failure means nothing was written.
func (p *Pipeline) Store(ctx context.Context, kind Kind, ownerID string, up UploadedImage) (*ImageAsset, error) {
	const op = "pipeline.Store"

	allowed, dir, url := p.cfg.WorkTypes, p.cfg.WorksDir, p.cfg.WorksURL
	if kind == KindLogo {
		allowed, dir, url = p.cfg.LogoTypes, p.cfg.LogosDir, p.cfg.LogosURL
	}

	codec, err := Validate(up, allowed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer p.sem.Release(1)

	resized, err := Resize(up.Data, codec.MIME, p.cfg.MaxWidth, p.cfg.MaxHeight, p.cfg.Quality)
	if err != nil {
		return nil, fmt.Errorf("%s: %q: %w", op, up.Filename, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	vertical := IsVertical(resized.Width, resized.Height, p.cfg.VerticalThreshold)

	// The thumbnail is built before anything is written. A passthrough source
	// has only had its header read, so a decode failure here means the upload
	// itself is corrupt and is rejected rather than stored.
	var thumb []byte
	var thumbErr error
	if kind == KindWork && vertical {
		thumb, thumbErr = MakeThumbnail(resized.Data, codec.MIME, p.cfg.Thumbnail)
		if thumbErr != nil && resized.Passthrough && errors.Is(thumbErr, ErrDecode) {
			return nil, fmt.Errorf("%s: %q: %w", op, up.Filename, thumbErr)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ext := strings.ToLower(filepath.Ext(up.Filename))
	name := fmt.Sprintf("%s_%s_%s%s", ownerID, kind, uuid.NewString(), ext)
	if err := writeFileAtomic(dir, name, resized.Data); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	asset := &ImageAsset{
		StoredPath: path.Join(url, name),
		IsVertical: vertical,
		Width:      resized.Width,
		Height:     resized.Height,
		MIME:       codec.MIME,
	}
	p.log.Debug("stored image",
		zap.String("file", up.Filename),
		zap.String("path", asset.StoredPath),
		zap.Int("width", asset.Width),
		zap.Int("height", asset.Height),
		zap.Bool("passthrough", resized.Passthrough),
	)

	if thumb != nil {
		asset.ThumbnailPath, thumbErr = p.saveThumbnail(name, thumb)
	}
	if thumbErr != nil {
		p.log.Warn("thumbnail generation failed, continuing without one",
			zap.String("file", up.Filename), zap.Error(thumbErr))
	}
	return asset, nil
}

// writeThumbnail builds and saves the thumbnail of an already stored image.
func (p *Pipeline) writeThumbnail(ctx context.Context, storedName string, data []byte, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	thumb, err := MakeThumbnail(data, mimeType, p.cfg.Thumbnail)
	if err != nil {
		return "", err
	}
	return p.saveThumbnail(storedName, thumb)
}

func (p *Pipeline) saveThumbnail(storedName string, thumb []byte) (string, error) {
	name := thumbnailName(storedName)
	if err := writeFileAtomic(p.cfg.ThumbnailsDir, name, thumb); err != nil {
		return "", err
	}
	return path.Join(p.cfg.ThumbnailsURL, name), nil
}

func thumbnailName(storedName string) string {
	ext := filepath.Ext(storedName)
	return strings.TrimSuffix(storedName, ext) + "_thumb" + ext
}

// StoredFile is a batch entry that was stored.
type StoredFile struct {
	Index    int
	Filename string
	Asset    *ImageAsset
}

// FailedFile is a batch entry that was skipped.
type FailedFile struct {
	Index    int
	Filename string
	Err      error
}

// BatchResult splits a batch into stored and failed entries. Index is the
// position in the input slice.
type BatchResult struct {
	Stored []StoredFile
	Failed []FailedFile
}

// StoreBatch stores each upload independently; one bad file never aborts the
// rest. Files are processed one after another so only one decoded raster per
// batch is alive at a time.
func (p *Pipeline) StoreBatch(ctx context.Context, kind Kind, ownerID string, uploads []UploadedImage) BatchResult {
	var res BatchResult
	for i, up := range uploads {
		asset, err := p.Store(ctx, kind, ownerID, up)
		if err != nil {
			p.log.Warn("skipping upload", zap.String("file", up.Filename), zap.Error(err))
			res.Failed = append(res.Failed, FailedFile{Index: i, Filename: up.Filename, Err: err})
			continue
		}
		res.Stored = append(res.Stored, StoredFile{Index: i, Filename: up.Filename, Asset: asset})
	}
	return res
}

// Rethumbnail rebuilds the thumbnail of an already stored work from its
// stored original. It returns the new thumbnail path (empty when the image is
// not vertical) and removes a thumbnail that is no longer wanted.
func (p *Pipeline) Rethumbnail(ctx context.Context, storedPath string) (string, bool, error) {
	const op = "pipeline.Rethumbnail"

	file, ok := p.resolve(storedPath)
	if !ok {
		return "", false, fmt.Errorf("%s: %q is not a stored work", op, storedPath)
	}
	name := filepath.Base(file)
	codec, err := codecForExt(filepath.Ext(name))
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	w, h, err := codec.Dimensions(data)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}

	if !IsVertical(w, h, p.cfg.VerticalThreshold) {
		stale := filepath.Join(p.cfg.ThumbnailsDir, thumbnailName(name))
		if err := os.Remove(stale); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.log.Warn("failed to remove stale thumbnail", zap.String("path", stale), zap.Error(err))
		}
		return "", false, nil
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", true, fmt.Errorf("%s: %w", op, err)
	}
	defer p.sem.Release(1)

	thumb, err := p.writeThumbnail(ctx, name, data, codec.MIME)
	if err != nil {
		return "", true, fmt.Errorf("%s: %w", op, err)
	}
	return thumb, true, nil
}

// Remove deletes the files behind the given public paths. Removing a work
// also removes its derived thumbnail. Empty paths and files that are already
// gone are ignored.
func (p *Pipeline) Remove(paths ...string) error {
	var errs []error
	for _, pub := range paths {
		if pub == "" {
			continue
		}
		file, ok := p.resolve(pub)
		if !ok {
			errs = append(errs, fmt.Errorf("pipeline.Remove: %q is outside the media roots", pub))
			continue
		}
		files := []string{file}
		if filepath.Dir(file) == filepath.Clean(p.cfg.WorksDir) {
			files = append(files, filepath.Join(p.cfg.ThumbnailsDir, thumbnailName(filepath.Base(file))))
		}
		for _, f := range files {
			if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("pipeline.Remove: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}

// resolve maps a public path back to its file under one of the media roots.
func (p *Pipeline) resolve(pub string) (string, bool) {
	roots := []struct{ url, dir string }{
		{p.cfg.WorksURL, p.cfg.WorksDir},
		{p.cfg.ThumbnailsURL, p.cfg.ThumbnailsDir},
		{p.cfg.LogosURL, p.cfg.LogosDir},
	}
	for _, r := range roots {
		prefix := strings.TrimSuffix(r.url, "/") + "/"
		if !strings.HasPrefix(pub, prefix) {
			continue
		}
		name := strings.TrimPrefix(pub, prefix)
		if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
			return "", false
		}
		return filepath.Join(r.dir, name), true
	}
	return "", false
}

func codecForExt(ext string) (*Codec, error) {
	for _, m := range SupportedMIMETypes() {
		if c := codecs[m]; c.HasExtension(ext) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: extension %q", ErrUnsupportedFormat, ext)
}

// writeFileAtomic writes data to a temp file in dir and renames it into
// place, so a failed write never leaves a partial file under name.
func writeFileAtomic(dir, name string, data []byte) (err error) {
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}
