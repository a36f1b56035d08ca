package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio/internal/models"
)

// testRepository runs the same behaviour checks against any Repository.
func testRepository(t *testing.T, newRepo func(t *testing.T) Repository) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	seed := func(t *testing.T, repo Repository) {
		t.Helper()
		posts := []models.Post{
			{ID: "p1", Title: "One", ClientName: "Zeta", Tags: []string{"print"}, CreatedAt: base},
			{ID: "p2", Title: "Two", ClientName: "Alpha", Tags: []string{"web", "print"}, CreatedAt: base.Add(time.Hour)},
			{ID: "p3", Title: "Three", ClientName: "Mid", Tags: []string{"web"}, CreatedAt: base.Add(2 * time.Hour),
				Gallery: []models.GalleryImage{{Path: "/media/works/a.png", Thumbnail: "/media/thumbnails/a_thumb.png", IsVertical: true, Caption: "tall"}}},
		}
		for i := range posts {
			require.NoError(t, repo.CreatePost(ctx, &posts[i]))
		}
	}

	t.Run("CreateAndGet", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo)

		got, err := repo.GetPost(ctx, "p3")
		require.NoError(t, err)
		assert.Equal(t, "Three", got.Title)
		require.Len(t, got.Gallery, 1)
		assert.True(t, got.Gallery[0].IsVertical)
		assert.Equal(t, "/media/thumbnails/a_thumb.png", got.Gallery[0].Thumbnail)

		_, err = repo.GetPost(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		err = repo.CreatePost(ctx, &models.Post{ID: "p1", Title: "dup", CreatedAt: base})
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("ListSortFilterPage", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo)

		posts, total, err := repo.ListPosts(ctx, ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Equal(t, []string{"p3", "p2", "p1"}, ids(posts))

		posts, _, err = repo.ListPosts(ctx, ListOptions{SortBy: SortClient})
		require.NoError(t, err)
		assert.Equal(t, []string{"p2", "p3", "p1"}, ids(posts))

		posts, total, err = repo.ListPosts(ctx, ListOptions{Tags: []string{"print"}})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Equal(t, []string{"p2", "p1"}, ids(posts))

		posts, total, err = repo.ListPosts(ctx, ListOptions{Offset: 1, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Equal(t, []string{"p2"}, ids(posts))

		posts, total, err = repo.ListPosts(ctx, ListOptions{Offset: 10})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Empty(t, posts)
	})

	t.Run("UpdateAndDelete", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo)

		post, err := repo.GetPost(ctx, "p1")
		require.NoError(t, err)
		now := base.Add(24 * time.Hour)
		post.Title = "Renamed"
		post.UpdatedAt = &now
		require.NoError(t, repo.UpdatePost(ctx, post))

		got, err := repo.GetPost(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Title)
		require.NotNil(t, got.UpdatedAt)
		assert.True(t, now.Equal(*got.UpdatedAt))

		err = repo.UpdatePost(ctx, &models.Post{ID: "missing"})
		assert.ErrorIs(t, err, ErrNotFound)

		removed, err := repo.DeletePost(ctx, "p3")
		require.NoError(t, err)
		assert.Equal(t, "/media/works/a.png", removed.Gallery[0].Path)

		_, err = repo.DeletePost(ctx, "p3")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("SetGalleryThumbnails", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo)

		post, err := repo.GetPost(ctx, "p3")
		require.NoError(t, err)
		post.Title = "Edited"
		post.Tags = []string{"editorial"}
		require.NoError(t, repo.UpdatePost(ctx, post))

		missing, err := repo.SetGalleryThumbnails(ctx, "p3", map[string]GalleryThumbnail{
			"/media/works/a.png":    {},
			"/media/works/gone.png": {Thumbnail: "/media/thumbnails/gone_thumb.png", IsVertical: true},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"/media/works/gone.png"}, missing)

		got, err := repo.GetPost(ctx, "p3")
		require.NoError(t, err)
		assert.Equal(t, "Edited", got.Title)
		assert.Equal(t, []string{"editorial"}, got.Tags)
		require.Len(t, got.Gallery, 1)
		assert.Equal(t, "/media/works/a.png", got.Gallery[0].Path)
		assert.Equal(t, "tall", got.Gallery[0].Caption)
		assert.Empty(t, got.Gallery[0].Thumbnail)
		assert.False(t, got.Gallery[0].IsVertical)

		_, err = repo.SetGalleryThumbnails(ctx, "missing", map[string]GalleryThumbnail{"/x": {}})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Tags", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo)

		web, err := repo.AddTag(ctx, " web ")
		require.NoError(t, err)
		assert.Equal(t, "web", web.Name)
		_, err = repo.AddTag(ctx, "web")
		assert.ErrorIs(t, err, ErrDuplicate)

		added, err := repo.AddTags(ctx, []string{"print", "", "web", "print", "video"})
		require.NoError(t, err)
		assert.Equal(t, 2, added)

		tags, err := repo.ListTags(ctx)
		require.NoError(t, err)
		usage := map[string]int{}
		byName := map[string]models.Tag{}
		for _, tag := range tags {
			usage[tag.Name] = tag.Usage
			byName[tag.Name] = tag
		}
		assert.Equal(t, map[string]int{"web": 2, "print": 2, "video": 0}, usage)

		require.NoError(t, repo.RenameTag(ctx, byName["print"].ID, "editorial"))
		p2, err := repo.GetPost(ctx, "p2")
		require.NoError(t, err)
		assert.Equal(t, []string{"web", "editorial"}, p2.Tags)

		err = repo.RenameTag(ctx, byName["video"].ID, "web")
		assert.ErrorIs(t, err, ErrDuplicate)
		err = repo.RenameTag(ctx, "missing", "x")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, repo.DeleteTag(ctx, byName["web"].ID))
		p3, err := repo.GetPost(ctx, "p3")
		require.NoError(t, err)
		assert.Empty(t, p3.Tags)
		assert.ErrorIs(t, repo.DeleteTag(ctx, byName["web"].ID), ErrNotFound)
	})
}

func ids(posts []models.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, NormalizeTags([]string{" a", "", "b", "a ", "  "}))
	assert.Empty(t, NormalizeTags(nil))
}
