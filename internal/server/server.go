package server

import (
	"context"
	"errors"
	"net/http"
	"path"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"portfolio/internal/models"
	"portfolio/internal/pipeline"
	"portfolio/internal/queue"
	"portfolio/internal/session"
	"portfolio/internal/storage"
)

type Server struct {
	cfg      *models.Config
	router   *gin.Engine
	http     *http.Server
	repo     storage.Repository
	pipe     *pipeline.Pipeline
	sessions session.Store
	queue    queue.Producer
	log      *zap.Logger
}

// NewServer wires the routes. A nil producer makes reprocess requests run
// inline.
func NewServer(cfg *models.Config, repo storage.Repository, pipe *pipeline.Pipeline,
	sessions session.Store, producer queue.Producer, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))
	r.MaxMultipartMemory = cfg.Image.MaxUploadBytes
	r.Static(cfg.Media.PublicPrefix, cfg.Media.UploadRoot)

	s := &Server{
		cfg:      cfg,
		router:   r,
		repo:     repo,
		pipe:     pipe,
		sessions: sessions,
		queue:    producer,
		log:      log,
	}
	if s.queue == nil {
		s.queue = queue.Inline{Handle: s.RegenerateThumbnails}
	}

	api := r.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/admin", s.handleLogin(session.RoleAdmin))
	auth.POST("/front", s.handleLogin(session.RoleFront))
	auth.POST("/logout", s.handleLogout)

	admin := s.requireRole(session.RoleAdmin)
	viewer := s.requireRole(session.RoleFront, session.RoleAdmin)

	posts := api.Group("/posts")
	posts.GET("", viewer, s.handleListPosts)
	posts.GET("/:id", viewer, s.handleGetPost)
	posts.POST("", admin, s.limitBody, s.handleCreatePost)
	posts.PUT("/:id", admin, s.limitBody, s.handleUpdatePost)
	posts.DELETE("/:id", admin, s.handleDeletePost)
	posts.POST("/:id/reprocess", admin, s.handleReprocess)

	tags := api.Group("/tags")
	tags.GET("", s.handleListTags)
	tags.POST("", admin, s.handleAddTag)
	tags.POST("/bulk", admin, s.handleAddTags)
	tags.PUT("/:id", admin, s.handleRenameTag)
	tags.DELETE("/:id", admin, s.handleDeleteTag)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              s.cfg.ServerAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// PipelineConfig maps the service configuration onto the image pipeline.
func PipelineConfig(cfg *models.Config) pipeline.Config {
	m, img := cfg.Media, cfg.Image

	pc := pipeline.DefaultConfig(m.UploadRoot, m.PublicPrefix)
	pc.WorksDir = filepath.Join(m.UploadRoot, m.WorksDir)
	pc.ThumbnailsDir = filepath.Join(m.UploadRoot, m.ThumbnailsDir)
	pc.LogosDir = filepath.Join(m.UploadRoot, m.ClientDir)
	pc.WorksURL = path.Join(m.PublicPrefix, filepath.ToSlash(m.WorksDir))
	pc.ThumbnailsURL = path.Join(m.PublicPrefix, filepath.ToSlash(m.ThumbnailsDir))
	pc.LogosURL = path.Join(m.PublicPrefix, filepath.ToSlash(m.ClientDir))

	pc.MaxWidth = img.MaxWidth
	pc.MaxHeight = img.MaxHeight
	pc.Quality = img.Quality
	pc.VerticalThreshold = img.VerticalThreshold
	pc.MaxConcurrent = img.MaxConcurrent
	pc.Thumbnail = pipeline.ThumbnailOptions{
		Width:            img.ThumbnailWidth,
		Height:           img.ThumbnailHeight,
		Quality:          img.ThumbnailQuality,
		GradientFraction: img.GradientFraction,
		GradientStrength: uint8(min(max(img.GradientStrength, 0), 255)),
	}
	return pc
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) limitBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.Image.MaxUploadBytes)
	c.Next()
}

func errorJSON(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"status": "error", "message": message})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, pipeline.ErrInvalidUpload), errors.Is(err, pipeline.ErrDecode):
		return http.StatusBadRequest
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Server errors are logged and their
// detail is not sent to the client.
func (s *Server) fail(c *gin.Context, op string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Error(op, zap.Error(err))
		errorJSON(c, code, http.StatusText(code))
		return
	}
	errorJSON(c, code, err.Error())
}
