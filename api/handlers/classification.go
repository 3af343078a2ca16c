package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/citizenvoice/citizenvoice-api/apierrors"
	"github.com/citizenvoice/citizenvoice-api/models"
	"github.com/citizenvoice/citizenvoice-api/services"
)

const (
	maxImageBytes     = 10 << 20
	maxMultipartBytes = services.MaxClassifyImages*maxImageBytes + 1<<20
)

// Classification suggests a category and text for issue photos
type Classification struct {
	Service *services.ClassificationService
}

// ClassifyHandler accepts up to five images in the multipart field "images"
// (or a single "file") and returns the most confident classification.
func (c Classification) ClassifyHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBytes)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "upload too large", apierrors.Validation("images", "upload is too large"))
			return
		}
		writeError(w, "invalid upload", apierrors.Validation("images", "must be a multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		files = r.MultipartForm.File["file"]
	}
	if len(files) == 0 {
		writeError(w, "no images", apierrors.Validation("images", "at least one image is required"))
		return
	}
	if len(files) > services.MaxClassifyImages {
		writeError(w, "too many images", apierrors.Validation("images", fmt.Sprintf("at most %d images are allowed", services.MaxClassifyImages)))
		return
	}

	images := make([]services.ImageInput, 0, len(files))
	for _, fh := range files {
		if ct := fh.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
			writeError(w, "invalid image", apierrors.Validation("images", fh.Filename+" is not an image"))
			return
		}
		if fh.Size > maxImageBytes {
			writeError(w, "image too large", apierrors.Validation("images", fh.Filename+" is larger than 10MB"))
			return
		}
		f, err := fh.Open()
		if err != nil {
			writeError(w, "failed to read image", apierrors.Internal("read upload", err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, "failed to read image", apierrors.Internal("read upload", err))
			return
		}
		images = append(images, services.ImageInput{Filename: fh.Filename, Data: data})
	}

	writeJSON(w, http.StatusOK, c.Service.Classify(r.Context(), images))
}

// DescribeHandler drafts an issue title and description for a category
func (c Classification) DescribeHandler(w http.ResponseWriter, r *http.Request) {
	var in services.DescribeInput
	if err := decode(r, &in); err != nil {
		writeError(w, "invalid request", err)
		return
	}
	text, err := c.Service.Describe(r.Context(), in)
	if err != nil {
		writeError(w, "failed to describe issue", err)
		return
	}
	writeJSON(w, http.StatusOK, text)
}

// DepartmentHandler names the department responsible for a category
func (c Classification) DepartmentHandler(w http.ResponseWriter, r *http.Request) {
	category := models.IssueCategory(strings.ToLower(mux.Vars(r)["category"]))
	writeJSON(w, http.StatusOK, map[string]string{
		"category":   string(category),
		"department": services.DepartmentFor(category),
	})
}
