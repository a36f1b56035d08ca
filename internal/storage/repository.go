package storage

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"

	"portfolio/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

type SortBy string

const (
	SortNewest SortBy = "newest"
	SortClient SortBy = "client"
)

// ListOptions filters and pages ListPosts. A post matches Tags when it carries
// any of them. Limit 0 means no limit.
type ListOptions struct {
	SortBy SortBy
	Tags   []string
	Offset int
	Limit  int
}

// Repository persists posts and the tag vocabulary.
type Repository interface {
	ListPosts(ctx context.Context, opts ListOptions) ([]models.Post, int, error)
	GetPost(ctx context.Context, id string) (*models.Post, error)
	// CreatePost stores a new post ahead of all existing ones.
	CreatePost(ctx context.Context, post *models.Post) error
	UpdatePost(ctx context.Context, post *models.Post) error
	// DeletePost returns the removed post so its files can be cleaned up.
	DeletePost(ctx context.Context, id string) (*models.Post, error)
	// SetGalleryThumbnails updates only the thumbnail fields of the gallery
	// entries whose path is a key of updates, leaving every other field of the
	// post as currently stored. It returns the keys no longer in the gallery.
	SetGalleryThumbnails(ctx context.Context, postID string, updates map[string]GalleryThumbnail) ([]string, error)

	// ListTags fills Usage with the number of posts carrying each tag.
	ListTags(ctx context.Context) ([]models.Tag, error)
	AddTag(ctx context.Context, name string) (*models.Tag, error)
	// AddTags skips blank and already known names and returns how many were added.
	AddTags(ctx context.Context, names []string) (int, error)
	// RenameTag also rewrites the tag inside every post that carries it.
	RenameTag(ctx context.Context, id, name string) error
	// DeleteTag also removes the tag from every post.
	DeleteTag(ctx context.Context, id string) error

	Close()
}

// GalleryThumbnail is the regenerated thumbnail state of one gallery image.
type GalleryThumbnail struct {
	Thumbnail  string
	IsVertical bool
}

func NewPostID() string {
	return "post_" + uuid.NewString()
}

func newTagID() string {
	return "tag_" + uuid.NewString()
}

// NormalizeTags trims names and drops blanks and duplicates, keeping order.
func NormalizeTags(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// applyListOptions is the in-memory version of the Postgres list query.
func applyListOptions(posts []models.Post, opts ListOptions) ([]models.Post, int) {
	filtered := posts
	if tags := NormalizeTags(opts.Tags); len(tags) > 0 {
		filtered = make([]models.Post, 0, len(posts))
		for _, p := range posts {
			if hasAny(p.Tags, tags) {
				filtered = append(filtered, p)
			}
		}
	}

	switch opts.SortBy {
	case SortClient:
		sort.SliceStable(filtered, func(i, j int) bool {
			return filtered[i].ClientName < filtered[j].ClientName
		})
	default:
		sort.SliceStable(filtered, func(i, j int) bool {
			return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
		})
	}

	total := len(filtered)
	if opts.Offset > 0 {
		if opts.Offset >= total {
			return []models.Post{}, total
		}
		filtered = filtered[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(filtered) {
		filtered = filtered[:opts.Limit]
	}
	return filtered, total
}

func hasAny(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

func replaceTag(tags []string, old, name string) ([]string, bool) {
	changed := false
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == old {
			changed = true
			if name == "" {
				continue
			}
			t = name
		}
		out = append(out, t)
	}
	if changed {
		out = NormalizeTags(out)
	}
	return out, changed
}

// applyGalleryThumbnails writes updates into gallery in place. missing is
// sorted so callers get a stable order.
func applyGalleryThumbnails(gallery []models.GalleryImage, updates map[string]GalleryThumbnail) (changed bool, missing []string) {
	seen := make(map[string]bool, len(updates))
	for i := range gallery {
		u, ok := updates[gallery[i].Path]
		if !ok {
			continue
		}
		seen[gallery[i].Path] = true
		if gallery[i].Thumbnail != u.Thumbnail || gallery[i].IsVertical != u.IsVertical {
			gallery[i].Thumbnail = u.Thumbnail
			gallery[i].IsVertical = u.IsVertical
			changed = true
		}
	}
	for p := range updates {
		if !seen[p] {
			missing = append(missing, p)
		}
	}
	sort.Strings(missing)
	return changed, missing
}
