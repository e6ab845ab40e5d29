package auth

import (
	"fmt"
	"strings"

	"rentledger/internal/model"
)

// Gate turns a bearer credential into a caller identity.
type Gate struct {
	tokens *Tokens
}

func NewGate(tokens *Tokens) *Gate {
	return &Gate{tokens: tokens}
}

// Resolve returns ErrUnauthenticated for an empty credential and
// ErrInvalidCredential for one that does not verify.
func (g *Gate) Resolve(credential string) (model.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return model.Identity{}, fmt.Errorf("%w: missing token", model.ErrUnauthenticated)
	}
	claims, err := g.tokens.Validate(credential)
	if err != nil {
		return model.Identity{}, err
	}
	return model.Identity{
		ID:       claims.ID,
		Username: claims.Username,
		Role:     claims.Role,
		Name:     claims.Name,
	}, nil
}

// Issue is a shortcut to the underlying token signer.
func (g *Gate) Issue(id model.Identity) (string, error) {
	return g.tokens.Issue(id)
}

// RequireAdmin fails with ErrForbidden unless the caller is an admin.
func RequireAdmin(id model.Identity) error {
	if !id.IsAdmin() {
		return fmt.Errorf("%w: admin role required", model.ErrForbidden)
	}
	return nil
}

// RequireOwnerOrAdmin fails with ErrForbidden unless the caller is an admin or
// the tenant that owns the record.
func RequireOwnerOrAdmin(id model.Identity, ownerID int64) error {
	if id.IsAdmin() {
		return nil
	}
	if id.Role == model.RoleTenant && id.ID == ownerID {
		return nil
	}
	return fmt.Errorf("%w: not the owner of this record", model.ErrForbidden)
}
