package auth

import (
	"fmt"

	"rentledger/internal/config"
)

// Admin is a configured administrator account. Admins are not tenants.
type Admin struct {
	Username     string
	PasswordHash string
	Name         string
	Email        string
}

// AdminsFromConfig hashes any admin configured with a plaintext password.
func AdminsFromConfig(accounts []config.AdminAccount) ([]Admin, error) {
	admins := make([]Admin, 0, len(accounts))
	for _, a := range accounts {
		hash := a.PasswordHash
		if hash == "" {
			var err error
			hash, err = HashPassword(a.Password)
			if err != nil {
				return nil, fmt.Errorf("admin %s: %w", a.Username, err)
			}
		}
		admins = append(admins, Admin{
			Username:     a.Username,
			PasswordHash: hash,
			Name:         a.Name,
			Email:        a.Email,
		})
	}
	return admins, nil
}
