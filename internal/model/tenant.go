// internal/model/tenant.go
package model

import (
	"time"
)

const (
	RoleAdmin  = "admin"
	RoleTenant = "tenant"
)

// Tenant is a resident account. Password holds a bcrypt hash; snapshots
// written by older versions may still carry plaintext, see auth.CheckPassword.
type Tenant struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	Password   string    `json:"password"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	RoomNumber string    `json:"room_number"`
	LeaseStart string    `json:"lease_start"`
	LeaseEnd   string    `json:"lease_end"`
	RentAmount Number    `json:"rent_amount"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
}

// TenantView is the client facing projection of a Tenant, without the password.
type TenantView struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	RoomNumber string    `json:"room_number"`
	LeaseStart string    `json:"lease_start"`
	LeaseEnd   string    `json:"lease_end"`
	RentAmount Number    `json:"rent_amount"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
}

func (t Tenant) View() TenantView {
	return TenantView{
		ID:         t.ID,
		Username:   t.Username,
		Name:       t.Name,
		Email:      t.Email,
		Phone:      t.Phone,
		RoomNumber: t.RoomNumber,
		LeaseStart: t.LeaseStart,
		LeaseEnd:   t.LeaseEnd,
		RentAmount: t.RentAmount,
		Role:       t.Role,
		CreatedAt:  t.CreatedAt,
	}
}

// DisplayName prefers the full name and falls back to the username.
func (t Tenant) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Username
}
