package server

import (
	"fmt"
	"io"
	"mime/multipart"
	"regexp"
	"strconv"

	"portfolio/internal/models"
	"portfolio/internal/pipeline"
)

type uploadedFile struct {
	Field      string `json:"field"`
	Index      int    `json:"index"`
	Filename   string `json:"filename"`
	Path       string `json:"path"`
	Thumbnail  string `json:"thumbnail,omitempty"`
	IsVertical bool   `json:"is_vertical"`
}

type failedFile struct {
	Field    string `json:"field"`
	Index    int    `json:"index"`
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// uploadReport collects per-file outcomes of one request.
type uploadReport struct {
	Uploaded []uploadedFile `json:"uploaded"`
	Failed   []failedFile   `json:"failed"`

	// created holds every file written during the request so they can be
	// removed again if the post cannot be saved.
	created []string
}

func newUploadReport() *uploadReport {
	return &uploadReport{Uploaded: []uploadedFile{}, Failed: []failedFile{}}
}

func (r *uploadReport) stored(field string, index int, filename string, a *pipeline.ImageAsset) {
	r.Uploaded = append(r.Uploaded, uploadedFile{
		Field:      field,
		Index:      index,
		Filename:   filename,
		Path:       a.StoredPath,
		Thumbnail:  a.ThumbnailPath,
		IsVertical: a.IsVertical,
	})
	r.created = append(r.created, a.StoredPath, a.ThumbnailPath)
}

func (r *uploadReport) failed(field string, index int, filename string, err error) {
	r.Failed = append(r.Failed, failedFile{Field: field, Index: index, Filename: filename, Error: err.Error()})
}

func galleryImage(a *pipeline.ImageAsset, caption string) models.GalleryImage {
	return models.GalleryImage{
		Path:       a.StoredPath,
		Thumbnail:  a.ThumbnailPath,
		IsVertical: a.IsVertical,
		Caption:    caption,
	}
}

func readUpload(fh *multipart.FileHeader) (pipeline.UploadedImage, error) {
	f, err := fh.Open()
	if err != nil {
		return pipeline.UploadedImage{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return pipeline.UploadedImage{}, fmt.Errorf("read %q: %w", fh.Filename, err)
	}
	return pipeline.UploadedImage{
		Data:         data,
		DeclaredMIME: fh.Header.Get("Content-Type"),
		Filename:     fh.Filename,
	}, nil
}

// formFiles accepts both "name[]" and "name" field spellings.
func formFiles(form *multipart.Form, name string) []*multipart.FileHeader {
	return append(form.File[name+"[]"], form.File[name]...)
}

func formValues(form *multipart.Form, name string) ([]string, bool) {
	a, okA := form.Value[name+"[]"]
	b, okB := form.Value[name]
	return append(a, b...), okA || okB
}

func formValue(form *multipart.Form, name string) string {
	if v := form.Value[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func firstFile(form *multipart.Form, name string) *multipart.FileHeader {
	if fs := form.File[name]; len(fs) > 0 {
		return fs[0]
	}
	return nil
}

var indexedField = regexp.MustCompile(`^existing_gallery_images\[(\d+)\]$`)

// replacementFiles returns the uploads keyed as existing_gallery_images[N].
func replacementFiles(form *multipart.Form) map[int]*multipart.FileHeader {
	out := make(map[int]*multipart.FileHeader)
	for key, files := range form.File {
		m := indexedField.FindStringSubmatch(key)
		if m == nil || len(files) == 0 {
			continue
		}
		i, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out[i] = files[0]
	}
	return out
}

func caption(captions []string, i int) string {
	if i < len(captions) {
		return captions[i]
	}
	return ""
}
