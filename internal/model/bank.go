package model

import "time"

type BankInfo struct {
	BankName      string    `json:"bank_name"`
	BranchName    string    `json:"branch_name"`
	AccountName   string    `json:"account_name"`
	AccountNumber string    `json:"account_number"`
	UpdatedAt     time.Time `json:"updated_at"`
}
