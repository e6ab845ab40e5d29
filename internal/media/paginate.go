package media

import (
	"context"

	"rentledger/internal/auth"
	"rentledger/internal/model"
	"rentledger/internal/query"
	"rentledger/internal/storage"
)

var PageDefaults = query.Defaults{Limit: 12, SortBy: "uploaded_at"}

type ImageRow struct {
	model.Image
	RoomNumber string `json:"room_number"`
}

var images = query.Collection[model.Image, ImageRow]{
	Owner: func(img model.Image) int64 { return img.TenantID },
	ID:    imageID,
	SearchText: func(img model.Image) []string {
		return []string{img.TenantName, img.FileName}
	},
	SortFields: map[string]query.Compare[model.Image]{
		"id":          query.ByNumber(func(img model.Image) float64 { return float64(img.ID) }),
		"uploaded_at": query.ByTime(uploadedAt),
		"file_size":   query.ByNumber(func(img model.Image) float64 { return img.FileSize.Float() }),
		"file_name":   query.ByText(func(img model.Image) string { return img.FileName }),
		"tenant_name": query.ByText(func(img model.Image) string { return img.TenantName }),
	},
	DefaultSort: "uploaded_at",
	Enrich: func(img model.Image, room string) ImageRow {
		return ImageRow{Image: img, RoomNumber: room}
	},
}

// Paginate runs the listing pipeline over images. Admin only.
func (r *Registry) Paginate(ctx context.Context, caller model.Identity, p query.Params) (query.Page[ImageRow], error) {
	if err := auth.RequireAdmin(caller); err != nil {
		return query.Page[ImageRow]{}, err
	}
	var page query.Page[ImageRow]
	err := r.store.View(ctx, func(ds *storage.Dataset) error {
		page = query.Run(ds.Images, caller, p, ds.RoomNumbers(), images)
		return nil
	})
	return page, err
}
