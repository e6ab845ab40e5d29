package manager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentledger/internal/blob"
	"rentledger/internal/ledger"
	"rentledger/internal/logging"
	"rentledger/internal/media"
	"rentledger/internal/model"
	"rentledger/internal/storage"
)

func num(v float64) *model.Number {
	n := model.Number(v)
	return &n
}

func TestDeletedTenantTokenCannotWriteOrInherit(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	blobs, err := blob.NewLocalStorage(t.TempDir(), "/uploads")
	require.NoError(t, err)
	reg := media.New(f.store, blobs, f.events, media.Limits{MaxFileSize: 1 << 20, MaxFiles: 5}, logging.Discard())
	l := ledger.New(f.store, f.events, logging.Discard())

	s, err := f.tm.Register(ctx, RegisterInput{Username: "mallory", Password: "secret1", Name: "Mallory"})
	require.NoError(t, err)
	stale, err := f.gate.Resolve(s.Token)
	require.NoError(t, err)

	_, err = reg.DeleteTenant(ctx, adminID, stale.ID)
	require.NoError(t, err)

	// the token still verifies, but the account behind it is gone
	_, err = l.CreatePayment(ctx, stale, ledger.PaymentInput{
		RentAmount:      num(100),
		ElectricityRate: num(5),
		PreviousMeter:   num(1),
		CurrentMeter:    num(2),
	})
	assert.ErrorIs(t, err, model.ErrInvalidCredential)

	_, err = reg.RegisterImage(ctx, stale, media.FileMeta{ImageURL: "https://cdn.example.com/x.png", FileName: "x.png"})
	assert.ErrorIs(t, err, model.ErrInvalidCredential)

	require.NoError(t, f.store.View(ctx, func(ds *storage.Dataset) error {
		for _, p := range ds.Payments {
			assert.NotEqual(t, stale.ID, p.TenantID)
		}
		for _, img := range ds.Images {
			assert.NotEqual(t, stale.ID, img.TenantID)
		}
		return nil
	}))

	next, err := f.tm.Register(ctx, RegisterInput{Username: "alice", Password: "secret1", Name: "Alice"})
	require.NoError(t, err)
	assert.Greater(t, next.User.ID, stale.ID, "ids of deleted tenants are not reused")

	_, err = f.tm.Profile(ctx, stale)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
