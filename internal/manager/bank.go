package manager

import (
	"context"
	"fmt"
	"strings"

	"rentledger/internal/auth"
	"rentledger/internal/model"
	"rentledger/internal/storage"
)

type BankInfoInput struct {
	BankName      string `json:"bank_name"`
	BranchName    string `json:"branch_name"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
}

func (tm *TenantManager) BankInfo(ctx context.Context) (model.BankInfo, error) {
	var info model.BankInfo
	err := tm.store.View(ctx, func(ds *storage.Dataset) error {
		info = ds.BankInfo
		return nil
	})
	return info, err
}

// UpdateBankInfo replaces the transfer details shown to tenants. Admin only.
func (tm *TenantManager) UpdateBankInfo(ctx context.Context, caller model.Identity, in BankInfoInput) (model.BankInfo, error) {
	if err := auth.RequireAdmin(caller); err != nil {
		return model.BankInfo{}, err
	}
	info := model.BankInfo{
		BankName:      strings.TrimSpace(in.BankName),
		BranchName:    strings.TrimSpace(in.BranchName),
		AccountName:   strings.TrimSpace(in.AccountName),
		AccountNumber: strings.TrimSpace(in.AccountNumber),
	}
	if info.BankName == "" || info.AccountNumber == "" {
		return model.BankInfo{}, fmt.Errorf("%w: bank_name and account_number are required", model.ErrValidation)
	}

	err := tm.store.Update(ctx, func(ds *storage.Dataset) error {
		info.UpdatedAt = tm.store.Now()
		ds.BankInfo = info
		return nil
	})
	if err != nil {
		return model.BankInfo{}, err
	}
	tm.log.WithField("by", caller.Username).Info("bank info updated")
	return info, nil
}
