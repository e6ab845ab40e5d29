package manager

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentledger/internal/auth"
	"rentledger/internal/config"
	"rentledger/internal/logging"
	"rentledger/internal/messaging"
	"rentledger/internal/model"
	"rentledger/internal/notify"
	"rentledger/internal/query"
	"rentledger/internal/storage"
)

type captureMailer struct {
	sent []notify.Mail
	err  error
}

func (c *captureMailer) Send(_ context.Context, m notify.Mail) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, m)
	return nil
}

type recorder struct{ events []messaging.Event }

func (r *recorder) Publish(_ context.Context, ev messaging.Event) error {
	r.events = append(r.events, ev)
	return nil
}

type fixture struct {
	tm     *TenantManager
	store  *storage.Store
	gate   *auth.Gate
	mailer *captureMailer
	events *recorder
	clock  time.Time
}

var (
	adminID = model.Identity{Username: "landlord", Role: model.RoleAdmin}
	seedID  = model.Identity{ID: 2, Username: "tenant", Role: model.RoleTenant}
)

func setup(t *testing.T, seed storage.SeedFunc) *fixture {
	t.Helper()
	f := &fixture{
		mailer: &captureMailer{},
		events: &recorder{},
		clock:  time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	if seed == nil {
		seed = SeedDataset
	}
	f.store = storage.NewStore(
		storage.NewFileBackend(filepath.Join(t.TempDir(), "data.json")),
		logging.Discard(),
		storage.WithClock(func() time.Time { return f.clock }),
		storage.WithSeed(seed),
	)
	require.NoError(t, f.store.Load(context.Background()))

	tokens, err := auth.NewTokens("test-secret", time.Hour)
	require.NoError(t, err)
	f.gate = auth.NewGate(tokens)

	admins, err := auth.AdminsFromConfig([]config.AdminAccount{
		{Username: "landlord", Password: "owner-pass", Name: "Landlord", Email: "owner@example.com"},
	})
	require.NoError(t, err)

	f.tm = NewTenantManager(Deps{
		Store:    f.store,
		Gate:     f.gate,
		Admins:   admins,
		Codes:    notify.NewMemoryCodeStore(),
		Mailer:   f.mailer,
		MailFrom: "noreply@example.com",
		Events:   f.events,
		Log:      logging.Discard(),
	})
	return f
}

func TestSeedTenantCanLogIn(t *testing.T) {
	f := setup(t, nil)

	s, err := f.tm.Login(context.Background(), "tenant", "123456", "tenant")
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.User.ID)
	assert.Equal(t, "101", s.User.RoomNumber)

	id, err := f.gate.Resolve(s.Token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleTenant, id.Role)
	assert.Equal(t, int64(2), id.ID)
}

func TestRegister(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	in := RegisterInput{
		Username:   "amy",
		Password:   "secret1",
		Name:       "Amy",
		RoomNumber: "203",
		Email:      "amy@example.com",
		RentAmount: 12000,
	}
	s, err := f.tm.Register(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.User.ID)
	assert.Equal(t, model.RoleTenant, s.User.Role)
	assert.NotEmpty(t, s.Token)

	_, err = f.tm.Register(ctx, in)
	assert.ErrorIs(t, err, model.ErrConflict)

	in.Username = "landlord"
	_, err = f.tm.Register(ctx, in)
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = f.tm.Register(ctx, RegisterInput{Username: "x", Password: "y"})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.tm.Register(ctx, RegisterInput{Username: "x", Password: "y", Name: "X", Email: "not-an-email"})
	assert.ErrorIs(t, err, model.ErrValidation)

	require.NoError(t, f.store.View(ctx, func(ds *storage.Dataset) error {
		i, ok := ds.FindTenantByUsername("amy")
		require.True(t, ok)
		assert.True(t, auth.IsHashed(ds.Tenants[i].Password))
		return nil
	}))

	require.Len(t, f.events.events, 1)
	assert.Equal(t, messaging.EventTenantRegistered, f.events.events[0].Type)
	assert.Equal(t, "amy@example.com", f.events.events[0].Email)

	_, err = f.tm.Login(ctx, "amy", "secret1", "tenant")
	assert.NoError(t, err)
}

func TestLogin(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	s, err := f.tm.Login(ctx, "landlord", "owner-pass", "admin")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, s.User.Role)
	assert.Zero(t, s.User.ID)

	_, err = f.tm.Login(ctx, "landlord", "owner-pass", "")
	assert.NoError(t, err)

	_, err = f.tm.Login(ctx, "landlord", "owner-pass", "tenant")
	assert.ErrorIs(t, err, model.ErrInvalidCredential)

	_, err = f.tm.Login(ctx, "tenant", "123456", "admin")
	assert.ErrorIs(t, err, model.ErrInvalidCredential)

	_, err = f.tm.Login(ctx, "tenant", "wrong", "tenant")
	assert.ErrorIs(t, err, model.ErrInvalidCredential)

	_, err = f.tm.Login(ctx, "tenant", "123456", "owner")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.tm.Login(ctx, "", "", "tenant")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestLoginUpgradesPlaintextPassword(t *testing.T) {
	legacy := func(now time.Time) (*storage.Dataset, error) {
		ds := storage.EmptyDataset(now)
		ds.Tenants = []model.Tenant{{ID: 5, Username: "old", Password: "plain", Role: model.RoleTenant}}
		return ds, nil
	}
	f := setup(t, legacy)
	ctx := context.Background()

	_, err := f.tm.Login(ctx, "old", "plain", "tenant")
	require.NoError(t, err)

	require.NoError(t, f.store.View(ctx, func(ds *storage.Dataset) error {
		assert.True(t, auth.IsHashed(ds.Tenants[0].Password))
		return nil
	}))

	_, err = f.tm.Login(ctx, "old", "plain", "tenant")
	assert.NoError(t, err)
}

func TestProfile(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	view, err := f.tm.Profile(ctx, seedID)
	require.NoError(t, err)
	assert.Equal(t, "tenant", view.Username)

	_, err = f.tm.Profile(ctx, adminID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestListTenantsAndOptions(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	for _, name := range []string{"amy", "bob", "cat"} {
		f.clock = f.clock.Add(time.Hour)
		_, err := f.tm.Register(ctx, RegisterInput{Username: name, Password: "pw1234", Name: name, RoomNumber: "3" + name})
		require.NoError(t, err)
	}

	_, err := f.tm.ListTenants(ctx, seedID, query.Params{Page: 1, Limit: 10})
	assert.ErrorIs(t, err, model.ErrForbidden)

	page, err := f.tm.ListTenants(ctx, adminID, query.Params{Page: 1, Limit: 2, SortBy: "username", SortOrder: query.Asc})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Pagination.TotalRecords)
	assert.Equal(t, 2, page.Pagination.TotalPages)
	assert.Equal(t, "amy", page.Data[0].Username)
	assert.Equal(t, "bob", page.Data[1].Username)

	page, err = f.tm.ListTenants(ctx, adminID, query.Params{Page: 1, Limit: 10, Search: "3B"})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "bob", page.Data[0].Username)

	opts, err := f.tm.TenantOptions(ctx, adminID)
	require.NoError(t, err)
	require.Len(t, opts, 4)
	assert.Equal(t, int64(2), opts[0].ID)

	_, err = f.tm.TenantOptions(ctx, seedID)
	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestBankInfo(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	info, err := f.tm.BankInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1111-2222-3333", info.AccountNumber)

	in := BankInfoInput{BankName: "Bank", BranchName: "Main", AccountName: "Owner", AccountNumber: "999"}
	_, err = f.tm.UpdateBankInfo(ctx, seedID, in)
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = f.tm.UpdateBankInfo(ctx, adminID, BankInfoInput{BankName: "Bank"})
	assert.ErrorIs(t, err, model.ErrValidation)

	f.clock = f.clock.Add(time.Hour)
	updated, err := f.tm.UpdateBankInfo(ctx, adminID, in)
	require.NoError(t, err)
	assert.Equal(t, f.clock, updated.UpdatedAt)

	info, err = f.tm.BankInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "999", info.AccountNumber)
}

func TestDashboard(t *testing.T) {
	many := func(now time.Time) (*storage.Dataset, error) {
		ds := storage.EmptyDataset(now)
		ds.Tenants = []model.Tenant{{ID: 2, Username: "tenant", Role: model.RoleTenant}}
		for i := 1; i <= 12; i++ {
			status := model.StatusConfirmed
			if i%4 == 0 {
				status = model.StatusPending
			}
			ds.Payments = append(ds.Payments, model.Payment{ID: int64(i), TenantID: 2, Status: status, CreatedAt: now.Add(time.Duration(i) * time.Minute)})
			ds.Images = append(ds.Images, model.Image{ID: int64(i), TenantID: 2, UploadedAt: now.Add(-time.Duration(i) * time.Minute)})
		}
		return ds, nil
	}
	f := setup(t, many)
	ctx := context.Background()

	_, err := f.tm.Dashboard(ctx, seedID)
	assert.ErrorIs(t, err, model.ErrForbidden)

	d, err := f.tm.Dashboard(ctx, adminID)
	require.NoError(t, err)
	assert.Equal(t, 1, d.TotalTenants)
	assert.Equal(t, 12, d.TotalPayments)
	assert.Equal(t, 3, d.PendingPayments)
	assert.Equal(t, 12, d.TotalImages)
	require.Len(t, d.RecentPayments, 10)
	assert.Equal(t, int64(12), d.RecentPayments[0].ID)
	require.Len(t, d.RecentImages, 10)
	assert.Equal(t, int64(1), d.RecentImages[0].ID)
}

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

func TestPasswordReset(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	assert.ErrorIs(t, f.tm.SendResetCode(ctx, "nope"), model.ErrValidation)

	require.NoError(t, f.tm.SendResetCode(ctx, "Tenant@Example.com"))
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, []string{"tenant@example.com"}, f.mailer.sent[0].To)
	match := codePattern.FindStringSubmatch(f.mailer.sent[0].Body)
	require.Len(t, match, 2)
	code := match[1]

	assert.ErrorIs(t, f.tm.VerifyResetCode(ctx, "tenant@example.com", "000000"), model.ErrValidation)
	require.NoError(t, f.tm.VerifyResetCode(ctx, "tenant@example.com", code))

	assert.ErrorIs(t, f.tm.ResetPassword(ctx, "tenant@example.com", code, "123"), model.ErrValidation)
	require.NoError(t, f.tm.ResetPassword(ctx, "tenant@example.com", code, "n3w-pass"))

	// single use
	assert.ErrorIs(t, f.tm.ResetPassword(ctx, "tenant@example.com", code, "another1"), model.ErrValidation)

	_, err := f.tm.Login(ctx, "tenant", "123456", "tenant")
	assert.ErrorIs(t, err, model.ErrInvalidCredential)
	_, err = f.tm.Login(ctx, "tenant", "n3w-pass", "tenant")
	assert.NoError(t, err)
}

func TestPasswordResetUnknownEmail(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	require.NoError(t, f.tm.SendResetCode(ctx, "ghost@example.com"))
	code := codePattern.FindStringSubmatch(f.mailer.sent[0].Body)[1]

	err := f.tm.ResetPassword(ctx, "ghost@example.com", code, "whatever1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSendResetCodeMailFailure(t *testing.T) {
	f := setup(t, nil)
	f.mailer.err = errors.New("relay down")
	ctx := context.Background()

	assert.ErrorIs(t, f.tm.SendResetCode(ctx, "tenant@example.com"), model.ErrInternal)
	assert.ErrorIs(t, f.tm.VerifyResetCode(ctx, "tenant@example.com", "123456"), model.ErrValidation)
}

func TestResetCodeDiscardedAfterFailedAttempts(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	require.NoError(t, f.tm.SendResetCode(ctx, "tenant@example.com"))
	code := codePattern.FindStringSubmatch(f.mailer.sent[0].Body)[1]

	for i := 1; i < notify.MaxCodeAttempts; i++ {
		err := f.tm.VerifyResetCode(ctx, "tenant@example.com", "000000")
		require.ErrorIs(t, err, model.ErrValidation)
		assert.Contains(t, err.Error(), "incorrect")
	}
	require.NoError(t, f.tm.VerifyResetCode(ctx, "tenant@example.com", code))

	err := f.tm.VerifyResetCode(ctx, "tenant@example.com", "000000")
	require.ErrorIs(t, err, model.ErrValidation)
	assert.Contains(t, err.Error(), "too many")

	assert.ErrorIs(t, f.tm.VerifyResetCode(ctx, "tenant@example.com", code), model.ErrValidation)
	assert.ErrorIs(t, f.tm.ResetPassword(ctx, "tenant@example.com", code, "n3w-pass"), model.ErrValidation)
}
