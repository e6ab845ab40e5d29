package model

import "time"

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
)

type Payment struct {
	ID               int64     `json:"id"`
	TenantID         int64     `json:"tenant_id"`
	TenantName       string    `json:"tenant_name"`
	PaymentDate      string    `json:"payment_date"`
	RentAmount       float64   `json:"rent_amount"`
	WaterFee         float64   `json:"water_fee"`
	ElectricityRate  float64   `json:"electricity_rate"`
	PreviousMeter    float64   `json:"previous_meter"`
	CurrentMeter     float64   `json:"current_meter"`
	ElectricityUsage float64   `json:"electricity_usage"`
	ElectricityFee   float64   `json:"electricity_fee"`
	TotalAmount      float64   `json:"total_amount"`
	AccountLastFive  string    `json:"account_last_five"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ValidStatus reports whether s is one of the payment statuses.
func ValidStatus(s string) bool {
	return s == StatusPending || s == StatusConfirmed
}

// PaidOn returns the payment date as a time, falling back to CreatedAt when
// the date is missing or unparseable.
func (p Payment) PaidOn() time.Time {
	if t, ok := ParseTime(p.PaymentDate); ok {
		return t
	}
	return p.CreatedAt
}
