package manager

import (
	"context"
	"time"

	"rentledger/internal/auth"
	"rentledger/internal/model"
	"rentledger/internal/query"
	"rentledger/internal/storage"
)

const recentLimit = 10

type Dashboard struct {
	TotalTenants    int             `json:"totalTenants"`
	TotalPayments   int             `json:"totalPayments"`
	PendingPayments int             `json:"pendingPayments"`
	TotalImages     int             `json:"totalImages"`
	RecentPayments  []model.Payment `json:"recentPayments"`
	RecentImages    []model.Image   `json:"recentImages"`
}

// Dashboard summarizes the dataset for the admin landing page.
func (tm *TenantManager) Dashboard(ctx context.Context, caller model.Identity) (Dashboard, error) {
	if err := auth.RequireAdmin(caller); err != nil {
		return Dashboard{}, err
	}
	var d Dashboard
	err := tm.store.View(ctx, func(ds *storage.Dataset) error {
		d.TotalTenants = len(ds.Tenants)
		d.TotalPayments = len(ds.Payments)
		d.TotalImages = len(ds.Images)
		for _, p := range ds.Payments {
			if p.Status == model.StatusPending {
				d.PendingPayments++
			}
		}

		// ds is a private copy, sorting in place is fine
		query.SortRecords(ds.Payments, query.ByTime(func(p model.Payment) time.Time { return p.CreatedAt }), true,
			func(p model.Payment) int64 { return p.ID })
		query.SortRecords(ds.Images, query.ByTime(func(img model.Image) time.Time { return img.UploadedAt }), true,
			func(img model.Image) int64 { return img.ID })
		d.RecentPayments = ds.Payments[:min(recentLimit, len(ds.Payments))]
		d.RecentImages = ds.Images[:min(recentLimit, len(ds.Images))]
		return nil
	})
	return d, err
}
