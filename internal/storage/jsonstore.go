package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"portfolio/internal/models"
)

// JSONStore keeps posts and tags in two pretty-printed JSON files. Every
// operation reads the file, mutates it in memory and writes it back under a
// single mutex.
type JSONStore struct {
	mu        sync.Mutex
	postsFile string
	tagsFile  string
}

func NewJSONStore(dir string) (*JSONStore, error) {
	const op = "storage.NewJSONStore"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return &JSONStore{
		postsFile: filepath.Join(dir, "posts.json"),
		tagsFile:  filepath.Join(dir, "tags.json"),
	}, nil
}

func (s *JSONStore) Close() {}

func (s *JSONStore) ListPosts(_ context.Context, opts ListOptions) ([]models.Post, int, error) {
	const op = "storage.ListPosts"
	s.mu.Lock()
	defer s.mu.Unlock()

	posts, err := s.loadPosts()
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	list, total := applyListOptions(posts, opts)
	return list, total, nil
}

func (s *JSONStore) GetPost(_ context.Context, id string) (*models.Post, error) {
	const op = "storage.GetPost"
	s.mu.Lock()
	defer s.mu.Unlock()

	posts, err := s.loadPosts()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	i := indexOfPost(posts, id)
	if i < 0 {
		return nil, fmt.Errorf("%s: post %q: %w", op, id, ErrNotFound)
	}
	return &posts[i], nil
}

func (s *JSONStore) CreatePost(_ context.Context, post *models.Post) error {
	const op = "storage.CreatePost"
	s.mu.Lock()
	defer s.mu.Unlock()

	posts, err := s.loadPosts()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if indexOfPost(posts, post.ID) >= 0 {
		return fmt.Errorf("%s: post %q: %w", op, post.ID, ErrDuplicate)
	}
	posts = append([]models.Post{*post}, posts...)
	if err := s.save(s.postsFile, posts); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *JSONStore) UpdatePost(_ context.Context, post *models.Post) error {
	const op = "storage.UpdatePost"
	s.mu.Lock()
	defer s.mu.Unlock()

	posts, err := s.loadPosts()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	i := indexOfPost(posts, post.ID)
	if i < 0 {
		return fmt.Errorf("%s: post %q: %w", op, post.ID, ErrNotFound)
	}
	posts[i] = *post
	if err := s.save(s.postsFile, posts); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *JSONStore) DeletePost(_ context.Context, id string) (*models.Post, error) {
	const op = "storage.DeletePost"
	s.mu.Lock()
	defer s.mu.Unlock()

	posts, err := s.loadPosts()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	i := indexOfPost(posts, id)
	if i < 0 {
		return nil, fmt.Errorf("%s: post %q: %w", op, id, ErrNotFound)
	}
	removed := posts[i]
	posts = append(posts[:i], posts[i+1:]...)
	if err := s.save(s.postsFile, posts); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &removed, nil
}

func (s *JSONStore) SetGalleryThumbnails(_ context.Context, postID string, updates map[string]GalleryThumbnail) ([]string, error) {
	const op = "storage.SetGalleryThumbnails"
	s.mu.Lock()
	defer s.mu.Unlock()

	posts, err := s.loadPosts()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	i := indexOfPost(posts, postID)
	if i < 0 {
		return nil, fmt.Errorf("%s: post %q: %w", op, postID, ErrNotFound)
	}
	changed, missing := applyGalleryThumbnails(posts[i].Gallery, updates)
	if changed {
		if err := s.save(s.postsFile, posts); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return missing, nil
}

func (s *JSONStore) ListTags(_ context.Context) ([]models.Tag, error) {
	const op = "storage.ListTags"
	s.mu.Lock()
	defer s.mu.Unlock()

	tags, err := s.loadTags()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	posts, err := s.loadPosts()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for i := range tags {
		tags[i].Usage = 0
		for _, p := range posts {
			if hasAny(p.Tags, []string{tags[i].Name}) {
				tags[i].Usage++
			}
		}
	}
	return tags, nil
}

func (s *JSONStore) AddTag(_ context.Context, name string) (*models.Tag, error) {
	const op = "storage.AddTag"
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%s: empty tag name", op)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tags, err := s.loadTags()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if indexOfTagName(tags, name) >= 0 {
		return nil, fmt.Errorf("%s: tag %q: %w", op, name, ErrDuplicate)
	}
	tag := models.Tag{ID: newTagID(), Name: name, CreatedAt: time.Now().UTC()}
	tags = append(tags, tag)
	if err := s.save(s.tagsFile, tags); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &tag, nil
}

func (s *JSONStore) AddTags(_ context.Context, names []string) (int, error) {
	const op = "storage.AddTags"
	s.mu.Lock()
	defer s.mu.Unlock()

	tags, err := s.loadTags()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	added := 0
	now := time.Now().UTC()
	for _, name := range NormalizeTags(names) {
		if indexOfTagName(tags, name) >= 0 {
			continue
		}
		tags = append(tags, models.Tag{ID: newTagID(), Name: name, CreatedAt: now})
		added++
	}
	if added == 0 {
		return 0, nil
	}
	if err := s.save(s.tagsFile, tags); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return added, nil
}

func (s *JSONStore) RenameTag(_ context.Context, id, name string) error {
	const op = "storage.RenameTag"
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%s: empty tag name", op)
	}
	return s.rewriteTag(op, id, name)
}

func (s *JSONStore) DeleteTag(_ context.Context, id string) error {
	return s.rewriteTag("storage.DeleteTag", id, "")
}

// rewriteTag renames the tag (or deletes it when name is empty) and applies
// the same change to every post.
func (s *JSONStore) rewriteTag(op, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tags, err := s.loadTags()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	i := -1
	for j := range tags {
		if tags[j].ID == id {
			i = j
			break
		}
	}
	if i < 0 {
		return fmt.Errorf("%s: tag %q: %w", op, id, ErrNotFound)
	}
	old := tags[i].Name
	if name != "" {
		if j := indexOfTagName(tags, name); j >= 0 && j != i {
			return fmt.Errorf("%s: tag %q: %w", op, name, ErrDuplicate)
		}
		tags[i].Name = name
	} else {
		tags = append(tags[:i], tags[i+1:]...)
	}

	posts, err := s.loadPosts()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	postsChanged := false
	for k := range posts {
		if updated, changed := replaceTag(posts[k].Tags, old, name); changed {
			posts[k].Tags = updated
			postsChanged = true
		}
	}
	if postsChanged {
		if err := s.save(s.postsFile, posts); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := s.save(s.tagsFile, tags); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *JSONStore) loadPosts() ([]models.Post, error) {
	posts := []models.Post{}
	if err := load(s.postsFile, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *JSONStore) loadTags() ([]models.Tag, error) {
	tags := []models.Tag{}
	if err := load(s.tagsFile, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// load leaves v untouched when the file does not exist yet.
func load(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *JSONStore) save(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func indexOfPost(posts []models.Post, id string) int {
	for i := range posts {
		if posts[i].ID == id {
			return i
		}
	}
	return -1
}

func indexOfTagName(tags []models.Tag, name string) int {
	for i := range tags {
		if tags[i].Name == name {
			return i
		}
	}
	return -1
}
