package server

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"portfolio/internal/models"
	"portfolio/internal/pipeline"
	"portfolio/internal/storage"
)

const (
	fieldLogo        = "client_logo"
	fieldGallery     = "gallery_images"
	fieldReplacement = "existing_gallery_images"
)

func (s *Server) processContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.cfg.Image.ProcessTimeout)
}

func (s *Server) handleListPosts(c *gin.Context) {
	const op = "server.handleListPosts"

	opts := storage.ListOptions{SortBy: storage.SortBy(c.DefaultQuery("sort_by", string(storage.SortNewest)))}
	if opts.SortBy != storage.SortNewest && opts.SortBy != storage.SortClient {
		errorJSON(c, http.StatusBadRequest, fmt.Sprintf("unknown sort_by %q", opts.SortBy))
		return
	}
	for _, t := range c.QueryArray("tag") {
		opts.Tags = append(opts.Tags, strings.Split(t, ",")...)
	}

	var err error
	if opts.Offset, err = intQuery(c, "offset"); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}
	if opts.Limit, err = intQuery(c, "limit"); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	posts, total, err := s.repo.ListPosts(c.Request.Context(), opts)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	c.Header("X-Total-Count", strconv.Itoa(total))
	c.JSON(http.StatusOK, posts)
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func (s *Server) handleGetPost(c *gin.Context) {
	const op = "server.handleGetPost"

	post, err := s.repo.GetPost(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (s *Server) handleCreatePost(c *gin.Context) {
	const op = "server.handleCreatePost"

	form, err := c.MultipartForm()
	if err != nil {
		s.badForm(c, op, err)
		return
	}
	title := strings.TrimSpace(formValue(form, "title"))
	if title == "" {
		errorJSON(c, http.StatusBadRequest, "title is required")
		return
	}

	ctx, cancel := s.processContext(c)
	defer cancel()

	tags, _ := formValues(form, "tags")
	post := &models.Post{
		ID:          storage.NewPostID(),
		Title:       title,
		ClientName:  strings.TrimSpace(formValue(form, "client_name")),
		Description: formValue(form, "description"),
		Gallery:     []models.GalleryImage{},
		Tags:        storage.NormalizeTags(tags),
		CreatedAt:   time.Now().UTC(),
	}
	report := newUploadReport()

	// A bad logo rejects the whole post before any file is written.
	if fh := firstFile(form, fieldLogo); fh != nil {
		asset, err := s.storeFile(ctx, pipeline.KindLogo, post.ID, fh)
		if err != nil {
			s.fail(c, op, err)
			return
		}
		post.ClientLogo = asset.StoredPath
		report.stored(fieldLogo, 0, fh.Filename, asset)
	}

	captions, _ := formValues(form, "gallery_captions")
	post.Gallery = append(post.Gallery, s.storeGallery(ctx, post.ID, formFiles(form, fieldGallery), captions, report)...)

	if err := s.repo.CreatePost(ctx, post); err != nil {
		s.discard(report.created)
		s.fail(c, op, err)
		return
	}

	s.log.Info("post created", zap.String("post_id", post.ID),
		zap.Int("uploaded", len(report.Uploaded)), zap.Int("failed", len(report.Failed)))
	c.JSON(http.StatusCreated, gin.H{
		"status":   "success",
		"message":  "Post saved.",
		"postId":   post.ID,
		"post":     post,
		"uploaded": report.Uploaded,
		"failed":   report.Failed,
	})
}

func (s *Server) handleUpdatePost(c *gin.Context) {
	const op = "server.handleUpdatePost"

	form, err := c.MultipartForm()
	if err != nil {
		s.badForm(c, op, err)
		return
	}

	ctx, cancel := s.processContext(c)
	defer cancel()

	post, err := s.repo.GetPost(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, op, err)
		return
	}
	title := strings.TrimSpace(formValue(form, "title"))
	if title == "" {
		errorJSON(c, http.StatusBadRequest, "title is required")
		return
	}
	post.Title = title
	post.ClientName = strings.TrimSpace(formValue(form, "client_name"))
	post.Description = formValue(form, "description")
	if tags, ok := formValues(form, "tags"); ok {
		post.Tags = storage.NormalizeTags(tags)
	}

	report := newUploadReport()
	// Files the post stops referencing; removed only once the update is saved.
	var obsolete []string

	switch fh := firstFile(form, fieldLogo); {
	case formValue(form, "client_logo_removed") == "true":
		obsolete = append(obsolete, post.ClientLogo)
		post.ClientLogo = ""
	case fh != nil:
		asset, err := s.storeFile(ctx, pipeline.KindLogo, post.ID, fh)
		if err != nil {
			s.log.Warn("client logo rejected", zap.String("file", fh.Filename), zap.Error(err))
			report.failed(fieldLogo, 0, fh.Filename, err)
			break
		}
		obsolete = append(obsolete, post.ClientLogo)
		post.ClientLogo = asset.StoredPath
		report.stored(fieldLogo, 0, fh.Filename, asset)
	}

	keptPaths, _ := formValues(form, "existing_gallery_paths")
	keptCaptions, _ := formValues(form, "existing_gallery_captions")
	kept := make(map[string]int, len(keptPaths))
	for i, p := range keptPaths {
		kept[p] = i
	}
	replacements := replacementFiles(form)

	gallery := make([]models.GalleryImage, 0, len(post.Gallery))
	for _, img := range post.Gallery {
		i, ok := kept[img.Path]
		if !ok {
			obsolete = append(obsolete, img.Path, img.Thumbnail)
			continue
		}
		if i < len(keptCaptions) {
			img.Caption = keptCaptions[i]
		}
		if fh := replacements[i]; fh != nil {
			asset, err := s.storeFile(ctx, pipeline.KindWork, post.ID, fh)
			if err != nil {
				s.log.Warn("skipping gallery replacement", zap.String("file", fh.Filename), zap.Error(err))
				report.failed(fieldReplacement, i, fh.Filename, err)
			} else {
				obsolete = append(obsolete, img.Path, img.Thumbnail)
				img = galleryImage(asset, img.Caption)
				report.stored(fieldReplacement, i, fh.Filename, asset)
			}
		}
		gallery = append(gallery, img)
	}

	captions, _ := formValues(form, "gallery_captions")
	post.Gallery = append(gallery, s.storeGallery(ctx, post.ID, formFiles(form, fieldGallery), captions, report)...)
	now := time.Now().UTC()
	post.UpdatedAt = &now

	if err := s.repo.UpdatePost(ctx, post); err != nil {
		s.discard(report.created)
		s.fail(c, op, err)
		return
	}
	s.discard(obsolete)

	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"message":  "Post updated.",
		"postId":   post.ID,
		"post":     post,
		"uploaded": report.Uploaded,
		"failed":   report.Failed,
	})
}

func (s *Server) handleDeletePost(c *gin.Context) {
	const op = "server.handleDeletePost"

	post, err := s.repo.DeletePost(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, op, err)
		return
	}

	files := []string{post.ClientLogo}
	for _, img := range post.Gallery {
		files = append(files, img.Path, img.Thumbnail)
	}
	s.discard(files)

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Post and files deleted.", "deletedId": post.ID})
}

func (s *Server) handleReprocess(c *gin.Context) {
	const op = "server.handleReprocess"

	id := c.Param("id")
	if _, err := s.repo.GetPost(c.Request.Context(), id); err != nil {
		s.fail(c, op, err)
		return
	}

	if s.queue.Async() {
		if err := s.queue.Enqueue(c.Request.Context(), id); err != nil {
			s.fail(c, op, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "queued", "postId": id})
		return
	}

	ctx, cancel := s.processContext(c)
	defer cancel()
	if err := s.queue.Enqueue(ctx, id); err != nil {
		s.fail(c, op, err)
		return
	}
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "postId": id, "post": post})
}

// RegenerateThumbnails rebuilds the thumbnail of every gallery image of a post
// from its stored original. Images that fail keep their previous entry. Only
// the thumbnail fields are written back, so edits that land while the images
// are being processed are kept.
func (s *Server) RegenerateThumbnails(ctx context.Context, postID string) error {
	const op = "server.RegenerateThumbnails"

	post, err := s.repo.GetPost(ctx, postID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var errs []error
	updates := make(map[string]storage.GalleryThumbnail, len(post.Gallery))
	for _, img := range post.Gallery {
		thumb, vertical, err := s.pipe.Rethumbnail(ctx, img.Path)
		if err != nil {
			s.log.Warn("thumbnail regeneration failed", zap.String("path", img.Path), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		updates[img.Path] = storage.GalleryThumbnail{Thumbnail: thumb, IsVertical: vertical}
	}

	if len(updates) > 0 {
		gone, err := s.repo.SetGalleryThumbnails(ctx, postID, updates)
		if errors.Is(err, storage.ErrNotFound) {
			gone = make([]string, 0, len(updates))
			for path := range updates {
				gone = append(gone, path)
			}
		}
		// Images removed in the meantime must not leave fresh thumbnails behind.
		s.discard(gone)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Server) storeFile(ctx context.Context, kind pipeline.Kind, ownerID string, fh *multipart.FileHeader) (*pipeline.ImageAsset, error) {
	up, err := readUpload(fh)
	if err != nil {
		return nil, err
	}
	return s.pipe.Store(ctx, kind, ownerID, up)
}

// storeGallery stores new gallery uploads in form order. captions[i] belongs
// to files[i]. Failures are recorded in report and skipped.
func (s *Server) storeGallery(ctx context.Context, ownerID string, files []*multipart.FileHeader,
	captions []string, report *uploadReport) []models.GalleryImage {
	uploads := make([]pipeline.UploadedImage, 0, len(files))
	positions := make([]int, 0, len(files))
	for i, fh := range files {
		up, err := readUpload(fh)
		if err != nil {
			report.failed(fieldGallery, i, fh.Filename, err)
			continue
		}
		uploads = append(uploads, up)
		positions = append(positions, i)
	}

	res := s.pipe.StoreBatch(ctx, pipeline.KindWork, ownerID, uploads)
	for _, f := range res.Failed {
		report.failed(fieldGallery, positions[f.Index], f.Filename, f.Err)
	}

	out := make([]models.GalleryImage, 0, len(res.Stored))
	for _, st := range res.Stored {
		i := positions[st.Index]
		report.stored(fieldGallery, i, st.Filename, st.Asset)
		out = append(out, galleryImage(st.Asset, caption(captions, i)))
	}
	return out
}

// discard removes files that no longer belong to any post. Failures are only
// logged; the post itself is already consistent.
func (s *Server) discard(paths []string) {
	if err := s.pipe.Remove(paths...); err != nil {
		s.log.Warn("failed to remove files", zap.Error(err))
	}
}

func (s *Server) badForm(c *gin.Context, op string, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.fail(c, op, err)
		return
	}
	errorJSON(c, http.StatusBadRequest, "invalid multipart form: "+err.Error())
}
