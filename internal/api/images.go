package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"rentledger/internal/media"
	"rentledger/internal/model"
	"rentledger/internal/query"
)

const multipartMemory = 32 << 20

// @Summary List images
// @Description Admins see every image, tenants only their own.
// @Tags Images
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/images [get]
func (a *API) ListImages(w http.ResponseWriter, r *http.Request) {
	images, err := a.Media.ListImages(r.Context(), caller(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, envelope{"images": images})
}

// @Summary Upload one proof of payment
// @Tags Images
// @Security ApiKeyAuth
// @Accept multipart/form-data
// @Produce json
// @Param image formData file true "Image or PDF"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /api/images/upload [post]
func (a *API) UploadImage(w http.ResponseWriter, r *http.Request) {
	files, err := a.readUploads(w, r, "image")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if len(files) > 1 {
		a.writeError(w, r, fmt.Errorf("%w: send one file, or use upload-multiple", model.ErrValidation))
		return
	}
	images, err := a.Media.Upload(r.Context(), caller(r), files)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, envelope{"message": "file uploaded", "image": images[0]})
}

// @Summary Upload several proofs of payment
// @Tags Images
// @Security ApiKeyAuth
// @Accept multipart/form-data
// @Produce json
// @Param images formData file true "Up to 5 files"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /api/images/upload-multiple [post]
func (a *API) UploadImages(w http.ResponseWriter, r *http.Request) {
	files, err := a.readUploads(w, r, "images")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	images, err := a.Media.Upload(r.Context(), caller(r), files)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, envelope{"message": fmt.Sprintf("%d files uploaded", len(images)), "images": images})
}

// readUploads reads every part of the named multipart field into memory,
// refusing parts larger than the configured file size.
func (a *API) readUploads(w http.ResponseWriter, r *http.Request, field string) ([]media.Upload, error) {
	limits := a.Media.Limits()
	r.Body = http.MaxBytesReader(w, r.Body, int64(limits.MaxFiles)*limits.MaxFileSize+maxBodyBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, fmt.Errorf("%w: invalid multipart form", model.ErrValidation)
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return nil, fmt.Errorf("%w: no file uploaded", model.ErrValidation)
	}
	if len(headers) > limits.MaxFiles {
		return nil, fmt.Errorf("%w: at most %d files per upload", model.ErrValidation, limits.MaxFiles)
	}

	files := make([]media.Upload, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > limits.MaxFileSize {
			return nil, fmt.Errorf("%w: %s exceeds the %d byte limit", model.ErrValidation, fh.Filename, limits.MaxFileSize)
		}
		data, err := readPart(fh, limits.MaxFileSize)
		if err != nil {
			return nil, err
		}
		files = append(files, media.Upload{FileName: fh.Filename, Data: data})
	}
	return files, nil
}

func readPart(fh *multipart.FileHeader, max int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open upload: %v", model.ErrInternal, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, max+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read upload: %v", model.ErrInternal, err)
	}
	return data, nil
}

// @Summary Register an externally stored file
// @Tags Images
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param body body media.FileMeta true "File metadata"
// @Success 200 {object} map[string]interface{}
// @Router /api/images/save [post]
func (a *API) SaveImage(w http.ResponseWriter, r *http.Request) {
	var body media.FileMeta
	if err := decodeJSON(w, r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	img, err := a.Media.RegisterImage(r.Context(), caller(r), body)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, envelope{"message": "image saved", "image": img})
}

// @Summary Delete an image
// @Tags Images
// @Security ApiKeyAuth
// @Produce json
// @Param id path int true "Image ID"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/images/{id} [delete]
func (a *API) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.Media.DeleteImage(r.Context(), caller(r), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, envelope{"message": "image deleted"})
}

// @Summary Paginated images
// @Tags Admin
// @Security ApiKeyAuth
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param tenant_id query string false "Tenant ID or all"
// @Param search query string false "Search text"
// @Param sort_by query string false "Sort field"
// @Param sort_order query string false "ASC or DESC"
// @Success 200 {object} map[string]interface{}
// @Router /api/admin/images/paginated [get]
func (a *API) PaginateImages(w http.ResponseWriter, r *http.Request) {
	p, err := query.ParseParams(r.URL.Query(), media.PageDefaults)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	page, err := a.Media.Paginate(r.Context(), caller(r), p)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, envelope{"data": page.Data, "pagination": page.Pagination, "statistics": page.Statistics})
}
