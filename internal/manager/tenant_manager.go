// internal/manager/tenant_manager.go
package manager

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"rentledger/internal/auth"
	"rentledger/internal/messaging"
	"rentledger/internal/model"
	"rentledger/internal/notify"
	"rentledger/internal/query"
	"rentledger/internal/storage"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Deps are the collaborators of a TenantManager.
type Deps struct {
	Store    *storage.Store
	Gate     *auth.Gate
	Admins   []auth.Admin
	Codes    notify.CodeStore
	Mailer   notify.Mailer
	MailFrom string
	Events   messaging.Publisher
	Log      logrus.FieldLogger
}

// TenantManager handles accounts: registration, login, profiles, bank
// details, the admin dashboard and password resets.
type TenantManager struct {
	store    *storage.Store
	gate     *auth.Gate
	admins   []auth.Admin
	codes    notify.CodeStore
	mailer   notify.Mailer
	mailFrom string
	events   messaging.Publisher
	log      logrus.FieldLogger
}

func NewTenantManager(d Deps) *TenantManager {
	if d.Codes == nil {
		d.Codes = notify.NewMemoryCodeStore()
	}
	if d.Mailer == nil {
		d.Mailer = notify.NewLogMailer(d.Log)
	}
	return &TenantManager{
		store:    d.Store,
		gate:     d.Gate,
		admins:   d.Admins,
		codes:    d.Codes,
		mailer:   d.Mailer,
		mailFrom: d.MailFrom,
		events:   d.Events,
		log:      d.Log.WithField("component", "manager"),
	}
}

type RegisterInput struct {
	Username   string       `json:"username"`
	Password   string       `json:"password"`
	Name       string       `json:"name"`
	RoomNumber string       `json:"room_number"`
	Email      string       `json:"email"`
	Phone      string       `json:"phone"`
	LeaseStart string       `json:"lease_start"`
	LeaseEnd   string       `json:"lease_end"`
	RentAmount model.Number `json:"rent_amount"`
}

// Session is returned by login and registration.
type Session struct {
	Token string           `json:"token"`
	User  model.TenantView `json:"user"`
}

// Register creates a tenant account and signs it in.
func (tm *TenantManager) Register(ctx context.Context, in RegisterInput) (Session, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)

	var missing []string
	if in.Username == "" {
		missing = append(missing, "username")
	}
	if in.Password == "" {
		missing = append(missing, "password")
	}
	if in.Name == "" {
		missing = append(missing, "name")
	}
	if len(missing) > 0 {
		return Session{}, fmt.Errorf("%w: missing %s", model.ErrValidation, strings.Join(missing, ", "))
	}
	if in.Email != "" && !emailPattern.MatchString(in.Email) {
		return Session{}, fmt.Errorf("%w: invalid email address", model.ErrValidation)
	}
	if in.RentAmount < 0 {
		return Session{}, fmt.Errorf("%w: rent_amount must not be negative", model.ErrValidation)
	}
	for _, admin := range tm.admins {
		if admin.Username == in.Username {
			return Session{}, fmt.Errorf("%w: username %s already exists", model.ErrConflict, in.Username)
		}
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", model.ErrInternal, err)
	}

	var tenant model.Tenant
	err = tm.store.Update(ctx, func(ds *storage.Dataset) error {
		if _, exists := ds.FindTenantByUsername(in.Username); exists {
			return fmt.Errorf("%w: username %s already exists", model.ErrConflict, in.Username)
		}
		tenant = model.Tenant{
			ID:         ds.NextTenantID(),
			Username:   in.Username,
			Password:   hash,
			Name:       in.Name,
			Email:      in.Email,
			Phone:      strings.TrimSpace(in.Phone),
			RoomNumber: strings.TrimSpace(in.RoomNumber),
			LeaseStart: strings.TrimSpace(in.LeaseStart),
			LeaseEnd:   strings.TrimSpace(in.LeaseEnd),
			RentAmount: in.RentAmount,
			Role:       model.RoleTenant,
			CreatedAt:  tm.store.Now(),
		}
		ds.Tenants = append(ds.Tenants, tenant)
		return nil
	})
	if err != nil {
		return Session{}, err
	}

	tm.log.WithFields(logrus.Fields{"tenant_id": tenant.ID, "username": tenant.Username}).Info("tenant registered")
	ev := messaging.NewEvent(messaging.EventTenantRegistered, tenant.ID, tenant.DisplayName(), map[string]interface{}{
		"room_number": tenant.RoomNumber,
	})
	ev.Email = tenant.Email
	messaging.Emit(ctx, tm.events, tm.log, ev)

	return tm.session(tenant.View())
}

// Login checks the credentials against the configured admins or the stored
// tenants, depending on role. An empty role tries admins first.
func (tm *TenantManager) Login(ctx context.Context, username, password, role string) (Session, error) {
	username = strings.TrimSpace(username)
	role = strings.ToLower(strings.TrimSpace(role))
	if username == "" || password == "" {
		return Session{}, fmt.Errorf("%w: username and password are required", model.ErrValidation)
	}

	switch role {
	case model.RoleAdmin:
		if s, ok := tm.loginAdmin(username, password); ok {
			return s, nil
		}
	case model.RoleTenant:
		if s, ok, err := tm.loginTenant(ctx, username, password); ok || err != nil {
			return s, err
		}
	case "":
		if s, ok := tm.loginAdmin(username, password); ok {
			return s, nil
		}
		if s, ok, err := tm.loginTenant(ctx, username, password); ok || err != nil {
			return s, err
		}
	default:
		return Session{}, fmt.Errorf("%w: role must be admin or tenant", model.ErrValidation)
	}

	tm.log.WithFields(logrus.Fields{"username": username, "role": role}).Warn("login failed")
	return Session{}, fmt.Errorf("%w: username or password is incorrect", model.ErrInvalidCredential)
}

func (tm *TenantManager) loginAdmin(username, password string) (Session, bool) {
	for _, admin := range tm.admins {
		if admin.Username != username || !auth.CheckPassword(admin.PasswordHash, password) {
			continue
		}
		s, err := tm.session(model.TenantView{
			Username: admin.Username,
			Name:     admin.Name,
			Email:    admin.Email,
			Role:     model.RoleAdmin,
		})
		if err != nil {
			tm.log.WithError(err).Error("issue admin token")
			return Session{}, false
		}
		return s, true
	}
	return Session{}, false
}

func (tm *TenantManager) loginTenant(ctx context.Context, username, password string) (Session, bool, error) {
	var tenant model.Tenant
	found := false
	err := tm.store.View(ctx, func(ds *storage.Dataset) error {
		if i, ok := ds.FindTenantByUsername(username); ok {
			tenant, found = ds.Tenants[i], true
		}
		return nil
	})
	if err != nil {
		return Session{}, false, err
	}
	if !found || !auth.CheckPassword(tenant.Password, password) {
		return Session{}, false, nil
	}
	if !auth.IsHashed(tenant.Password) {
		tm.rehash(ctx, tenant.ID, password)
	}
	s, err := tm.session(tenant.View())
	if err != nil {
		return Session{}, false, err
	}
	return s, true, nil
}

// rehash replaces a plaintext password left over from an old snapshot.
func (tm *TenantManager) rehash(ctx context.Context, tenantID int64, password string) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		tm.log.WithError(err).Error("rehash password")
		return
	}
	err = tm.store.Update(ctx, func(ds *storage.Dataset) error {
		if i, ok := ds.FindTenant(tenantID); ok && !auth.IsHashed(ds.Tenants[i].Password) {
			ds.Tenants[i].Password = hash
		}
		return nil
	})
	if err != nil {
		tm.log.WithError(err).WithField("tenant_id", tenantID).Error("store rehashed password")
		return
	}
	tm.log.WithField("tenant_id", tenantID).Info("plaintext password upgraded to bcrypt")
}

func (tm *TenantManager) session(user model.TenantView) (Session, error) {
	token, err := tm.gate.Issue(model.Identity{
		ID:       user.ID,
		Username: user.Username,
		Role:     user.Role,
		Name:     user.Name,
	})
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", model.ErrInternal, err)
	}
	return Session{Token: token, User: user}, nil
}

// Profile returns the caller's own tenant record.
func (tm *TenantManager) Profile(ctx context.Context, caller model.Identity) (model.TenantView, error) {
	var view model.TenantView
	err := tm.store.View(ctx, func(ds *storage.Dataset) error {
		i, ok := ds.FindTenant(caller.ID)
		if !ok {
			return fmt.Errorf("%w: tenant profile", model.ErrNotFound)
		}
		view = ds.Tenants[i].View()
		return nil
	})
	return view, err
}

var TenantPageDefaults = query.Defaults{Limit: 10, SortBy: "created_at"}

var tenants = query.Collection[model.Tenant, model.TenantView]{
	Owner: func(t model.Tenant) int64 { return t.ID },
	ID:    func(t model.Tenant) int64 { return t.ID },
	SearchText: func(t model.Tenant) []string {
		return []string{t.Name, t.Username, t.RoomNumber}
	},
	SortFields: map[string]query.Compare[model.Tenant]{
		"id":          query.ByNumber(func(t model.Tenant) float64 { return float64(t.ID) }),
		"created_at":  query.ByTime(func(t model.Tenant) time.Time { return t.CreatedAt }),
		"name":        query.ByText(func(t model.Tenant) string { return t.Name }),
		"username":    query.ByText(func(t model.Tenant) string { return t.Username }),
		"room_number": query.ByText(func(t model.Tenant) string { return t.RoomNumber }),
		"rent_amount": query.ByNumber(func(t model.Tenant) float64 { return t.RentAmount.Float() }),
	},
	DefaultSort: "created_at",
	Enrich:      func(t model.Tenant, _ string) model.TenantView { return t.View() },
}

// ListTenants runs the listing pipeline over tenants. Admin only.
func (tm *TenantManager) ListTenants(ctx context.Context, caller model.Identity, p query.Params) (query.Page[model.TenantView], error) {
	if err := auth.RequireAdmin(caller); err != nil {
		return query.Page[model.TenantView]{}, err
	}
	var page query.Page[model.TenantView]
	err := tm.store.View(ctx, func(ds *storage.Dataset) error {
		page = query.Run(ds.Tenants, caller, p, ds.RoomNumbers(), tenants)
		return nil
	})
	return page, err
}

// TenantOptions lists every tenant, for filter drop-downs. Admin only.
func (tm *TenantManager) TenantOptions(ctx context.Context, caller model.Identity) ([]model.TenantView, error) {
	if err := auth.RequireAdmin(caller); err != nil {
		return nil, err
	}
	var out []model.TenantView
	err := tm.store.View(ctx, func(ds *storage.Dataset) error {
		out = make([]model.TenantView, 0, len(ds.Tenants))
		for _, t := range ds.Tenants {
			out = append(out, t.View())
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// SeedDataset is the dataset written when no snapshot exists: one demo
// tenant and the default bank details.
func SeedDataset(now time.Time) (*storage.Dataset, error) {
	hash, err := auth.HashPassword("123456")
	if err != nil {
		return nil, err
	}
	ds := storage.EmptyDataset(now)
	ds.Tenants = append(ds.Tenants, model.Tenant{
		ID:         2,
		Username:   "tenant",
		Password:   hash,
		Name:       "測試租客",
		Email:      "tenant@example.com",
		Phone:      "0911111111",
		RoomNumber: "101",
		LeaseStart: "2024-01-01",
		LeaseEnd:   "2024-12-31",
		RentAmount: 15000,
		Role:       model.RoleTenant,
		CreatedAt:  now,
	})
	return ds, nil
}
