package media

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"rentledger/internal/model"
)

// Upload is one file received from a client.
type Upload struct {
	FileName string
	Data     []byte
}

var allowedExt = map[string]bool{
	".jpeg": true,
	".jpg":  true,
	".png":  true,
	".gif":  true,
	".pdf":  true,
}

var allowedTypes = []string{"image/jpeg", "image/png", "image/gif", "application/pdf"}

// Upload validates the files, stores their bytes and registers them. Either
// every file is registered or none is.
func (r *Registry) Upload(ctx context.Context, caller model.Identity, files []Upload) ([]model.Image, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no file uploaded", model.ErrValidation)
	}
	if len(files) > r.limits.MaxFiles {
		return nil, fmt.Errorf("%w: at most %d files per upload", model.ErrValidation, r.limits.MaxFiles)
	}

	metas := make([]FileMeta, 0, len(files))
	types := make([]string, 0, len(files))
	for _, f := range files {
		fileType, err := r.check(f)
		if err != nil {
			return nil, err
		}
		types = append(types, fileType)
	}

	stored := make([]string, 0, len(files))
	for i, f := range files {
		ext := strings.ToLower(filepath.Ext(f.FileName))
		key := fmt.Sprintf("%d/%d-%s%s", caller.ID, r.store.Now().UnixMilli(), uuid.NewString(), ext)
		url, err := r.blobs.Put(ctx, key, bytes.NewReader(f.Data))
		if err != nil {
			r.discard(ctx, stored)
			return nil, fmt.Errorf("%w: store %s: %v", model.ErrInternal, f.FileName, err)
		}
		stored = append(stored, url)
		metas = append(metas, FileMeta{
			ImageURL: url,
			FileName: f.FileName,
			FileSize: model.Number(len(f.Data)),
			FileType: types[i],
		})
	}

	images, err := r.RegisterImages(ctx, caller, metas)
	if err != nil {
		r.discard(ctx, stored)
		return nil, err
	}
	return images, nil
}

// check returns the sniffed content type of an acceptable file.
func (r *Registry) check(f Upload) (string, error) {
	if len(f.Data) == 0 {
		return "", fmt.Errorf("%w: %s is empty", model.ErrValidation, f.FileName)
	}
	if int64(len(f.Data)) > r.limits.MaxFileSize {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", model.ErrValidation, f.FileName, r.limits.MaxFileSize)
	}
	if !allowedExt[strings.ToLower(filepath.Ext(f.FileName))] {
		return "", fmt.Errorf("%w: only JPEG, JPG, PNG, GIF and PDF files are allowed", model.ErrValidation)
	}
	mt := mimetype.Detect(f.Data)
	for _, t := range allowedTypes {
		if mt.Is(t) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %s content is %s", model.ErrValidation, f.FileName, mt.String())
}

func (r *Registry) discard(ctx context.Context, urls []string) {
	for _, url := range urls {
		if err := r.blobs.Delete(ctx, url); err != nil {
			r.log.WithError(err).WithField("url", url).Warn("cleanup of stored upload failed")
		}
	}
}
