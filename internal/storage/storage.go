package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"portfolio/internal/models"
)

const uniqueViolation = "23505"

// Postgres stores posts with the gallery as jsonb and tags as text[].
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string, log *zap.Logger) (*Postgres, error) {
	const op = "storage.NewPostgres"

	if log == nil {
		log = zap.NewNop()
	}
	if err := runMigrations(dsn, log); err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	log.Info("postgres repository ready")
	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Close() {
	s.pool.Close()
}

const postColumns = `id, title, client_name, description, client_logo, gallery, tags, created_at, updated_at`

func (s *Postgres) ListPosts(ctx context.Context, opts ListOptions) ([]models.Post, int, error) {
	const op = "storage.ListPosts"

	var tags []string
	if t := NormalizeTags(opts.Tags); len(t) > 0 {
		tags = t
	}

	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM posts WHERE $1::text[] IS NULL OR tags && $1::text[]`,
		tags).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %v", op, err)
	}

	order := "created_at DESC"
	if opts.SortBy == SortClient {
		order = "client_name ASC, created_at DESC"
	}
	var limit *int
	if opts.Limit > 0 {
		limit = &opts.Limit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+postColumns+` FROM posts
		 WHERE $1::text[] IS NULL OR tags && $1::text[]
		 ORDER BY `+order+`
		 OFFSET $2 LIMIT $3`,
		tags, max(opts.Offset, 0), limit)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %v", op, err)
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %v", op, err)
		}
		posts = append(posts, *post)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %v", op, err)
	}
	return posts, total, nil
}

func (s *Postgres) GetPost(ctx context.Context, id string) (*models.Post, error) {
	const op = "storage.GetPost"

	row := s.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
	post, err := scanPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: post %q: %w", op, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return post, nil
}

func (s *Postgres) CreatePost(ctx context.Context, post *models.Post) error {
	const op = "storage.CreatePost"

	gallery, err := json.Marshal(nonNilGallery(post.Gallery))
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO posts (`+postColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		post.ID, post.Title, post.ClientName, post.Description, post.ClientLogo,
		gallery, nonNilTags(post.Tags), post.CreatedAt, post.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: post %q: %w", op, post.ID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}

func (s *Postgres) UpdatePost(ctx context.Context, post *models.Post) error {
	const op = "storage.UpdatePost"

	gallery, err := json.Marshal(nonNilGallery(post.Gallery))
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE posts SET title = $2, client_name = $3, description = $4, client_logo = $5,
		 gallery = $6, tags = $7, updated_at = $8 WHERE id = $1`,
		post.ID, post.Title, post.ClientName, post.Description, post.ClientLogo,
		gallery, nonNilTags(post.Tags), post.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: post %q: %w", op, post.ID, ErrNotFound)
	}
	return nil
}

func (s *Postgres) DeletePost(ctx context.Context, id string) (*models.Post, error) {
	const op = "storage.DeletePost"

	row := s.pool.QueryRow(ctx, `DELETE FROM posts WHERE id = $1 RETURNING `+postColumns, id)
	post, err := scanPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: post %q: %w", op, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return post, nil
}

func (s *Postgres) SetGalleryThumbnails(ctx context.Context, postID string, updates map[string]GalleryThumbnail) ([]string, error) {
	const op = "storage.SetGalleryThumbnails"

	var missing []string
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var raw []byte
		err := tx.QueryRow(ctx, `SELECT gallery FROM posts WHERE id = $1 FOR UPDATE`, postID).Scan(&raw)
		if err != nil {
			return err
		}
		var gallery []models.GalleryImage
		if err := json.Unmarshal(raw, &gallery); err != nil {
			return fmt.Errorf("decode gallery of %s: %v", postID, err)
		}

		var changed bool
		changed, missing = applyGalleryThumbnails(gallery, updates)
		if !changed {
			return nil
		}
		raw, err = json.Marshal(gallery)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE posts SET gallery = $2 WHERE id = $1`, postID, raw)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: post %q: %w", op, postID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return missing, nil
}

func (s *Postgres) ListTags(ctx context.Context) ([]models.Tag, error) {
	const op = "storage.ListTags"

	rows, err := s.pool.Query(ctx,
		`SELECT t.id, t.name, t.created_at,
		        (SELECT count(*) FROM posts p WHERE t.name = ANY(p.tags))
		 FROM tags t ORDER BY t.created_at, t.name`)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	defer rows.Close()

	tags := []models.Tag{}
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt, &t.Usage); err != nil {
			return nil, fmt.Errorf("%s: %v", op, err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return tags, nil
}

func (s *Postgres) AddTag(ctx context.Context, name string) (*models.Tag, error) {
	const op = "storage.AddTag"

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%s: empty tag name", op)
	}
	tag := models.Tag{ID: newTagID(), Name: name, CreatedAt: time.Now().UTC()}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tags (id, name, created_at) VALUES ($1, $2, $3)`,
		tag.ID, tag.Name, tag.CreatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%s: tag %q: %w", op, name, ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return &tag, nil
}

func (s *Postgres) AddTags(ctx context.Context, names []string) (int, error) {
	const op = "storage.AddTags"

	names = NormalizeTags(names)
	if len(names) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, name := range names {
		batch.Queue(`INSERT INTO tags (id, name, created_at) VALUES ($1, $2, $3)
		             ON CONFLICT (name) DO NOTHING`, newTagID(), name, now)
	}

	added := 0
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		defer results.Close()
		for range names {
			tag, err := results.Exec()
			if err != nil {
				return err
			}
			added += int(tag.RowsAffected())
		}
		return results.Close()
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %v", op, err)
	}
	return added, nil
}

func (s *Postgres) RenameTag(ctx context.Context, id, name string) error {
	const op = "storage.RenameTag"

	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%s: empty tag name", op)
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var old string
		err := tx.QueryRow(ctx, `SELECT name FROM tags WHERE id = $1 FOR UPDATE`, id).Scan(&old)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE tags SET name = $2 WHERE id = $1`, id, name); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE posts SET tags = array_replace(tags, $1, $2) WHERE $1 = ANY(tags)`,
			old, name)
		return err
	})
	return tagError(op, id, name, err)
}

func (s *Postgres) DeleteTag(ctx context.Context, id string) error {
	const op = "storage.DeleteTag"

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var name string
		err := tx.QueryRow(ctx, `DELETE FROM tags WHERE id = $1 RETURNING name`, id).Scan(&name)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE posts SET tags = array_remove(tags, $1) WHERE $1 = ANY(tags)`, name)
		return err
	})
	return tagError(op, id, "", err)
}

func tagError(op, id, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%s: tag %q: %w", op, id, ErrNotFound)
	case isUniqueViolation(err):
		return fmt.Errorf("%s: tag %q: %w", op, name, ErrDuplicate)
	default:
		return fmt.Errorf("%s: %v", op, err)
	}
}

func scanPost(row pgx.Row) (*models.Post, error) {
	var (
		post    models.Post
		gallery []byte
	)
	err := row.Scan(&post.ID, &post.Title, &post.ClientName, &post.Description, &post.ClientLogo,
		&gallery, &post.Tags, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(gallery, &post.Gallery); err != nil {
		return nil, fmt.Errorf("decode gallery of %s: %v", post.ID, err)
	}
	return &post, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func nonNilGallery(g []models.GalleryImage) []models.GalleryImage {
	if g == nil {
		return []models.GalleryImage{}
	}
	return g
}
