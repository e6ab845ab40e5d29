package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentledger/internal/logging"
	"rentledger/internal/model"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type memBackend struct {
	mu       sync.Mutex
	doc      []byte
	readErr  error
	writeErr error
	writes   int
}

func (m *memBackend) Read(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	if m.doc == nil {
		return nil, ErrSnapshotNotFound
	}
	return m.doc, nil
}

func (m *memBackend) Write(_ context.Context, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.doc = append([]byte(nil), doc...)
	m.writes++
	return nil
}

func newTestStore(t *testing.T, backend SnapshotBackend, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewStore(backend, logging.Discard(), opts...)
}

func TestLoadSeedsWhenSnapshotMissing(t *testing.T) {
	backend := &memBackend{}
	seed := func(now time.Time) (*Dataset, error) {
		ds := EmptyDataset(now)
		ds.Tenants = append(ds.Tenants, model.Tenant{ID: 2, Username: "tenant", Role: model.RoleTenant})
		return ds, nil
	}
	st := newTestStore(t, backend, WithSeed(seed))

	require.NoError(t, st.Load(context.Background()))
	assert.Equal(t, 1, backend.writes)

	tenants, _, _ := st.Counts()
	assert.Equal(t, 1, tenants)
	assert.Contains(t, string(backend.doc), `"bankInfo"`)
}

func TestLoadCorruptSnapshotFallsBackToEmpty(t *testing.T) {
	backend := &memBackend{doc: []byte("{not json")}
	st := newTestStore(t, backend)

	require.NoError(t, st.Load(context.Background()))
	tenants, payments, images := st.Counts()
	assert.Zero(t, tenants+payments+images)
	assert.Zero(t, backend.writes)
}

func TestLoadUnreadableSnapshotFallsBackToEmpty(t *testing.T) {
	backend := &memBackend{readErr: errors.New("permission denied")}
	st := newTestStore(t, backend)

	require.NoError(t, st.Load(context.Background()))
	err := st.View(context.Background(), func(ds *Dataset) error {
		assert.Equal(t, "元大銀行", ds.BankInfo.BankName)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdatePersistsBeforeCommit(t *testing.T) {
	backend := &memBackend{}
	st := newTestStore(t, backend)
	require.NoError(t, st.Load(context.Background()))

	err := st.Update(context.Background(), func(ds *Dataset) error {
		ds.Tenants = append(ds.Tenants, model.Tenant{ID: ds.NextTenantID(), Username: "amy"})
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, string(backend.doc), `"amy"`)

	backend.writeErr = errors.New("disk full")
	err = st.Update(context.Background(), func(ds *Dataset) error {
		ds.Tenants = append(ds.Tenants, model.Tenant{ID: ds.NextTenantID(), Username: "bob"})
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInternal))

	tenants, _, _ := st.Counts()
	assert.Equal(t, 1, tenants, "failed save must not change memory")
}

func TestUpdateCallbackErrorLeavesDatasetUntouched(t *testing.T) {
	backend := &memBackend{}
	st := newTestStore(t, backend)
	require.NoError(t, st.Load(context.Background()))
	writes := backend.writes

	boom := errors.New("boom")
	err := st.Update(context.Background(), func(ds *Dataset) error {
		ds.Payments = append(ds.Payments, model.Payment{ID: 1})
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, writes, backend.writes)

	_, payments, _ := st.Counts()
	assert.Zero(t, payments)
}

func TestViewReturnsCopy(t *testing.T) {
	st := newTestStore(t, &memBackend{})
	require.NoError(t, st.Load(context.Background()))
	require.NoError(t, st.Update(context.Background(), func(ds *Dataset) error {
		ds.Payments = append(ds.Payments, model.Payment{ID: 1, Status: model.StatusPending})
		return nil
	}))

	require.NoError(t, st.View(context.Background(), func(ds *Dataset) error {
		ds.Payments[0].Status = model.StatusConfirmed
		return nil
	}))
	require.NoError(t, st.View(context.Background(), func(ds *Dataset) error {
		assert.Equal(t, model.StatusPending, ds.Payments[0].Status)
		return nil
	}))
}

func TestConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	st := newTestStore(t, &memBackend{})
	require.NoError(t, st.Load(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = st.Update(context.Background(), func(ds *Dataset) error {
				ds.Payments = append(ds.Payments, model.Payment{ID: ds.NextPaymentID()})
				return nil
			})
		}()
	}
	wg.Wait()

	require.NoError(t, st.View(context.Background(), func(ds *Dataset) error {
		assert.Len(t, ds.Payments, 50)
		seen := map[int64]bool{}
		for _, p := range ds.Payments {
			assert.False(t, seen[p.ID], "duplicate id %d", p.ID)
			seen[p.ID] = true
		}
		return nil
	}))
}

func TestFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.json")
	backend := NewFileBackend(path)

	_, err := backend.Read(context.Background())
	require.ErrorIs(t, err, ErrSnapshotNotFound)

	st := newTestStore(t, backend)
	require.NoError(t, st.Load(context.Background()))
	require.NoError(t, st.Update(context.Background(), func(ds *Dataset) error {
		ds.Images = append(ds.Images, model.Image{ID: 1, FileName: "receipt.png"})
		return nil
	}))

	reloaded := newTestStore(t, backend)
	require.NoError(t, reloaded.Load(context.Background()))
	_, _, images := reloaded.Counts()
	assert.Equal(t, 1, images)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must be cleaned up")
}

func TestLoadLegacySnapshot(t *testing.T) {
	legacy := `{
  "payments": [{"id": 1, "tenant_id": 2, "tenant_name": "測試租客", "rent_amount": 15000, "status": "pending", "created_at": "2024-02-01T08:00:00.000Z", "updated_at": "2024-02-01T08:00:00.000Z"}],
  "images": [{"id": 4, "tenant_id": 2, "image_url": "/uploads/2/a.png", "file_size": "12345", "uploaded_at": "2024-02-01T08:00:00.000Z"}],
  "tenants": [{"id": 2, "username": "tenant", "password": "123456", "rent_amount": "15000", "role": "tenant", "created_at": "2024-01-01T00:00:00.000Z"}],
  "bankInfo": {"bank_name": "元大銀行", "updated_at": "2024-01-01T00:00:00.000Z"}
}`
	st := newTestStore(t, &memBackend{doc: []byte(legacy)})
	require.NoError(t, st.Load(context.Background()))

	require.NoError(t, st.View(context.Background(), func(ds *Dataset) error {
		require.Len(t, ds.Tenants, 1)
		assert.Equal(t, 15000.0, ds.Tenants[0].RentAmount.Float())
		assert.Equal(t, int64(2), ds.NextPaymentID())
		require.Len(t, ds.Images, 1)
		assert.Equal(t, 12345.0, ds.Images[0].FileSize.Float())
		assert.Equal(t, int64(2), ds.LastTenantID)
		return nil
	}))
}

func TestTenantIDsAreNotReused(t *testing.T) {
	backend := &memBackend{}
	st := newTestStore(t, backend)
	ctx := context.Background()
	require.NoError(t, st.Load(ctx))

	require.NoError(t, st.Update(ctx, func(ds *Dataset) error {
		ds.Tenants = append(ds.Tenants,
			model.Tenant{ID: ds.NextTenantID(), Username: "amy"},
			model.Tenant{ID: ds.NextTenantID(), Username: "bob"},
		)
		return nil
	}))
	require.NoError(t, st.Update(ctx, func(ds *Dataset) error {
		ds.Tenants = ds.Tenants[:1]
		return nil
	}))

	// survives a reload
	reloaded := newTestStore(t, backend)
	require.NoError(t, reloaded.Load(ctx))
	require.NoError(t, reloaded.View(ctx, func(ds *Dataset) error {
		assert.Equal(t, int64(3), ds.NextTenantID())
		return nil
	}))
}

func TestActiveTenant(t *testing.T) {
	ds := EmptyDataset(fixedNow)
	ds.Tenants = []model.Tenant{{ID: 2, Username: "amy"}}

	i, err := ds.ActiveTenant(model.Identity{ID: 2, Role: model.RoleTenant})
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	_, err = ds.ActiveTenant(model.Identity{ID: 3, Role: model.RoleTenant})
	assert.ErrorIs(t, err, model.ErrInvalidCredential)

	i, err = ds.ActiveTenant(model.Identity{Role: model.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, -1, i)
}
