package manager

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"rentledger/internal/auth"
	"rentledger/internal/model"
	"rentledger/internal/notify"
	"rentledger/internal/storage"
)

const minPasswordLength = 6

// SendResetCode mails a six digit code to email. The address does not have
// to belong to a tenant, so the response does not reveal which ones do.
func (tm *TenantManager) SendResetCode(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("%w: invalid email address", model.ErrValidation)
	}
	code, err := notify.GenerateCode()
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrInternal, err)
	}
	if err := tm.codes.Set(ctx, email, code, notify.CodeTTL); err != nil {
		return fmt.Errorf("%w: store code: %v", model.ErrInternal, err)
	}
	if err := tm.mailer.Send(ctx, notify.ResetCodeMail(tm.mailFrom, email, code)); err != nil {
		_ = tm.codes.Delete(ctx, email)
		tm.log.WithError(err).WithField("email", email).Error("send reset code")
		return fmt.Errorf("%w: sending the verification mail failed", model.ErrInternal)
	}
	tm.log.WithField("email", email).Info("reset code sent")
	return nil
}

// VerifyResetCode checks a code without using it up.
func (tm *TenantManager) VerifyResetCode(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	stored, err := tm.codes.Get(ctx, email)
	if errors.Is(err, notify.ErrCodeNotFound) {
		return fmt.Errorf("%w: verification code expired or not found", model.ErrValidation)
	}
	if err != nil {
		return fmt.Errorf("%w: read code: %v", model.ErrInternal, err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(strings.TrimSpace(code))) != 1 {
		return tm.rejectCode(ctx, email)
	}
	return nil
}

// rejectCode counts a wrong guess and discards the code once the guesses
// run out, so a code cannot be brute forced within its lifetime.
func (tm *TenantManager) rejectCode(ctx context.Context, email string) error {
	misses, err := tm.codes.Fail(ctx, email)
	if err != nil {
		tm.log.WithError(err).Warn("record failed code attempt")
	}
	if err != nil || misses >= notify.MaxCodeAttempts {
		if err := tm.codes.Delete(ctx, email); err != nil {
			tm.log.WithError(err).Warn("discard reset code")
		}
		tm.log.WithField("email", email).Warn("reset code discarded after failed attempts")
		return fmt.Errorf("%w: too many incorrect attempts, request a new code", model.ErrValidation)
	}
	return fmt.Errorf("%w: verification code is incorrect", model.ErrValidation)
}

// ResetPassword verifies the code, sets a new password on the tenant with
// that email (the lowest id if several share it) and consumes the code.
func (tm *TenantManager) ResetPassword(ctx context.Context, email, code, password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must have at least %d characters", model.ErrValidation, minPasswordLength)
	}
	if err := tm.VerifyResetCode(ctx, email, code); err != nil {
		return err
	}
	email = normalizeEmail(email)

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrInternal, err)
	}
	var tenantID int64
	err = tm.store.Update(ctx, func(ds *storage.Dataset) error {
		idx := -1
		for i, t := range ds.Tenants {
			if normalizeEmail(t.Email) == email && (idx < 0 || t.ID < ds.Tenants[idx].ID) {
				idx = i
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: no tenant with this email", model.ErrNotFound)
		}
		ds.Tenants[idx].Password = hash
		tenantID = ds.Tenants[idx].ID
		return nil
	})
	if err != nil {
		return err
	}

	if err := tm.codes.Delete(ctx, email); err != nil {
		tm.log.WithError(err).Warn("delete used reset code")
	}
	tm.log.WithField("tenant_id", tenantID).Info("password reset")
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
