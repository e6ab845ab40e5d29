// Package media keeps proof of payment image metadata and owns tenant
// deletion, which has to clean up stored files.
package media

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"rentledger/internal/auth"
	"rentledger/internal/blob"
	"rentledger/internal/messaging"
	"rentledger/internal/metrics"
	"rentledger/internal/model"
	"rentledger/internal/query"
	"rentledger/internal/storage"
)

// FileMeta describes a blob that is already stored.
type FileMeta struct {
	ImageURL string       `json:"image_url"`
	FileName string       `json:"file_name"`
	FileSize model.Number `json:"file_size"`
	FileType string       `json:"file_type"`
}

// CascadeResult reports what a tenant deletion removed.
type CascadeResult struct {
	Tenant   string `json:"tenant"`
	Payments int    `json:"payments"`
	Images   int    `json:"images"`
}

type Limits struct {
	MaxFileSize int64
	MaxFiles    int
}

type Registry struct {
	store  *storage.Store
	blobs  blob.Storage
	events messaging.Publisher
	limits Limits
	log    logrus.FieldLogger
}

func New(store *storage.Store, blobs blob.Storage, events messaging.Publisher, limits Limits, log logrus.FieldLogger) *Registry {
	if limits.MaxFileSize <= 0 {
		limits.MaxFileSize = 10 << 20
	}
	if limits.MaxFiles <= 0 {
		limits.MaxFiles = 5
	}
	return &Registry{
		store:  store,
		blobs:  blobs,
		events: events,
		limits: limits,
		log:    log.WithField("component", "media"),
	}
}

func (r *Registry) Limits() Limits {
	return r.limits
}

func (r *Registry) RegisterImage(ctx context.Context, caller model.Identity, meta FileMeta) (model.Image, error) {
	images, err := r.RegisterImages(ctx, caller, []FileMeta{meta})
	if err != nil {
		return model.Image{}, err
	}
	return images[0], nil
}

// RegisterImages stores metadata for several blobs with a single save.
func (r *Registry) RegisterImages(ctx context.Context, caller model.Identity, metas []FileMeta) ([]model.Image, error) {
	if len(metas) == 0 {
		return nil, fmt.Errorf("%w: no images given", model.ErrValidation)
	}
	for _, m := range metas {
		if strings.TrimSpace(m.ImageURL) == "" {
			return nil, fmt.Errorf("%w: image_url is required", model.ErrValidation)
		}
		if m.FileSize < 0 {
			return nil, fmt.Errorf("%w: file_size must not be negative", model.ErrValidation)
		}
	}

	now := r.store.Now()
	images := make([]model.Image, 0, len(metas))
	name := caller.DisplayName()
	err := r.store.Update(ctx, func(ds *storage.Dataset) error {
		t, err := ds.ActiveTenant(caller)
		if err != nil {
			return err
		}
		if t >= 0 && ds.Tenants[t].Name != "" {
			name = ds.Tenants[t].Name
		}
		next := ds.NextImageID()
		for i, m := range metas {
			img := model.Image{
				ID:         next + int64(i),
				TenantID:   caller.ID,
				TenantName: name,
				ImageURL:   strings.TrimSpace(m.ImageURL),
				FileName:   m.FileName,
				FileSize:   m.FileSize,
				FileType:   m.FileType,
				UploadedAt: now,
			}
			ds.Images = append(ds.Images, img)
			images = append(images, img)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(images))
	for _, img := range images {
		ids = append(ids, img.ID)
	}
	r.log.WithFields(logrus.Fields{"tenant_id": caller.ID, "images": ids}).Info("images registered")
	messaging.Emit(ctx, r.events, r.log, messaging.NewEvent(messaging.EventImageUploaded, caller.ID, name, map[string]interface{}{
		"image_ids": ids,
		"count":     len(ids),
	}))
	return images, nil
}

// ListImages returns the caller's images (all of them for an admin), newest first.
func (r *Registry) ListImages(ctx context.Context, caller model.Identity) ([]model.Image, error) {
	var out []model.Image
	err := r.store.View(ctx, func(ds *storage.Dataset) error {
		out = make([]model.Image, 0, len(ds.Images))
		for _, img := range ds.Images {
			if caller.IsAdmin() || img.TenantID == caller.ID {
				out = append(out, img)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	query.SortRecords(out, query.ByTime(uploadedAt), true, imageID)
	return out, nil
}

// DeleteImage removes the record and then, best effort, the stored file.
func (r *Registry) DeleteImage(ctx context.Context, caller model.Identity, id int64) error {
	var removed model.Image
	err := r.store.Update(ctx, func(ds *storage.Dataset) error {
		i, ok := ds.FindImage(id)
		if !ok {
			return fmt.Errorf("%w: image %d", model.ErrNotFound, id)
		}
		if err := auth.RequireOwnerOrAdmin(caller, ds.Images[i].TenantID); err != nil {
			return err
		}
		removed = ds.Images[i]
		ds.Images = slices.Delete(ds.Images, i, i+1)
		return nil
	})
	if err != nil {
		return err
	}

	r.deleteBlobs(ctx, []model.Image{removed})
	r.log.WithFields(logrus.Fields{"image_id": id, "by": caller.Username}).Info("image deleted")
	messaging.Emit(ctx, r.events, r.log, messaging.NewEvent(messaging.EventImageDeleted, removed.TenantID, removed.TenantName, map[string]interface{}{
		"image_id": removed.ID,
	}))
	return nil
}

// DeleteTenant removes a tenant together with its payments and images in one
// save, then deletes the image files.
func (r *Registry) DeleteTenant(ctx context.Context, caller model.Identity, tenantID int64) (CascadeResult, error) {
	if err := auth.RequireAdmin(caller); err != nil {
		return CascadeResult{}, err
	}

	var (
		tenant  model.Tenant
		removed []model.Image
		result  CascadeResult
	)
	err := r.store.Update(ctx, func(ds *storage.Dataset) error {
		i, ok := ds.FindTenant(tenantID)
		if !ok {
			return fmt.Errorf("%w: tenant %d", model.ErrNotFound, tenantID)
		}
		tenant = ds.Tenants[i]
		ds.Tenants = slices.Delete(ds.Tenants, i, i+1)

		before := len(ds.Payments)
		ds.Payments = slices.DeleteFunc(ds.Payments, func(p model.Payment) bool { return p.TenantID == tenantID })
		result.Payments = before - len(ds.Payments)

		kept := ds.Images[:0]
		for _, img := range ds.Images {
			if img.TenantID == tenantID {
				removed = append(removed, img)
				continue
			}
			kept = append(kept, img)
		}
		ds.Images = kept
		result.Images = len(removed)
		return nil
	})
	if err != nil {
		return CascadeResult{}, err
	}
	result.Tenant = tenant.DisplayName()

	r.deleteBlobs(ctx, removed)
	r.log.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"payments":  result.Payments,
		"images":    result.Images,
	}).Info("tenant deleted")

	ev := messaging.NewEvent(messaging.EventTenantDeleted, tenant.ID, result.Tenant, map[string]interface{}{
		"payments": result.Payments,
		"images":   result.Images,
	})
	ev.Email = tenant.Email
	messaging.Emit(ctx, r.events, r.log, ev)
	return result, nil
}

func (r *Registry) deleteBlobs(ctx context.Context, images []model.Image) {
	if r.blobs == nil {
		return
	}
	for _, img := range images {
		if err := r.blobs.Delete(ctx, img.ImageURL); err != nil {
			metrics.BlobDeleteFailures.Inc()
			r.log.WithError(err).WithField("url", img.ImageURL).Warn("blob delete failed")
		}
	}
}

func uploadedAt(img model.Image) time.Time { return img.UploadedAt }

func imageID(img model.Image) int64 { return img.ID }
