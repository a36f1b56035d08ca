package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"portfolio/internal/models"
	"portfolio/internal/pipeline"
	"portfolio/internal/queue"
	"portfolio/internal/session"
	"portfolio/internal/storage"
)

const (
	adminPassword = "admin-secret"
	frontPassword = "front-secret"
)

type testEnv struct {
	srv  *Server
	cfg  *models.Config
	repo *storage.JSONStore
}

func newTestEnv(t *testing.T, producer queue.Producer) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	adminHash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)
	frontHash, err := bcrypt.GenerateFromPassword([]byte(frontPassword), bcrypt.MinCost)
	require.NoError(t, err)

	yaml := fmt.Sprintf(`
storage:
  data_dir: %q
media:
  upload_root: %q
auth:
  admin_password_hash: %q
  front_password_hash: %q
`, filepath.Join(dir, "data"), filepath.Join(dir, "upload"), adminHash, frontHash)
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o644))
	cfg, err := models.LoadConfig(cfgPath)
	require.NoError(t, err)

	repo, err := storage.NewJSONStore(cfg.Storage.DataDir)
	require.NoError(t, err)
	pipe, err := pipeline.New(PipelineConfig(cfg), nil)
	require.NoError(t, err)

	srv := NewServer(cfg, repo, pipe, session.NewMemoryStore(time.Hour), producer, nil)
	return &testEnv{srv: srv, cfg: cfg, repo: repo}
}

func (e *testEnv) do(req *http.Request, cookies []*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) postForm(path string, values url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req, cookies)
}

func (e *testEnv) login(t *testing.T, role, password string) []*http.Cookie {
	t.Helper()
	rec := e.postForm("/api/auth/"+role, url.Values{"password": {password}}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

// file resolves a public media path to its location on disk.
func (e *testEnv) file(pub string) string {
	rel := strings.TrimPrefix(pub, e.cfg.Media.PublicPrefix+"/")
	return filepath.Join(e.cfg.Media.UploadRoot, filepath.FromSlash(rel))
}

type filePart struct {
	field    string
	filename string
	mime     string
	data     []byte
}

type formField struct {
	name  string
	value string
}

func multipartRequest(t *testing.T, method, target string, fields []formField, files []filePart) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, f := range fields {
		require.NoError(t, w.WriteField(f.name, f.value))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.filename))
		h.Set("Content-Type", f.mime)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func pngFile(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type postResponse struct {
	Status   string         `json:"status"`
	Message  string         `json:"message"`
	PostID   string         `json:"postId"`
	Post     models.Post    `json:"post"`
	Uploaded []uploadedFile `json:"uploaded"`
	Failed   []failedFile   `json:"failed"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
