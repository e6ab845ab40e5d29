package ledger

import (
	"context"
	"time"

	"rentledger/internal/auth"
	"rentledger/internal/model"
	"rentledger/internal/query"
	"rentledger/internal/storage"
)

// PageDefaults are used when the request omits limit or sort_by.
var PageDefaults = query.Defaults{Limit: 10, SortBy: "created_at"}

// PaymentRow is a payment joined with its tenant's room number.
type PaymentRow struct {
	model.Payment
	RoomNumber string `json:"room_number"`
}

type Stats struct {
	TotalPayments     int     `json:"total_payments"`
	PendingPayments   int     `json:"pending_payments"`
	ConfirmedPayments int     `json:"confirmed_payments"`
	TotalAmount       float64 `json:"total_amount"`
}

var payments = query.Collection[model.Payment, PaymentRow]{
	Owner:  func(p model.Payment) int64 { return p.TenantID },
	ID:     paymentID,
	Status: func(p model.Payment) string { return p.Status },
	SearchText: func(p model.Payment) []string {
		return []string{p.TenantName, p.AccountLastFive}
	},
	SortFields: map[string]query.Compare[model.Payment]{
		"id":           query.ByNumber(func(p model.Payment) float64 { return float64(p.ID) }),
		"created_at":   query.ByTime(func(p model.Payment) time.Time { return p.CreatedAt }),
		"updated_at":   query.ByTime(func(p model.Payment) time.Time { return p.UpdatedAt }),
		"payment_date": query.ByTime(model.Payment.PaidOn),
		"total_amount": query.ByNumber(func(p model.Payment) float64 { return p.TotalAmount }),
		"rent_amount":  query.ByNumber(func(p model.Payment) float64 { return p.RentAmount }),
		"tenant_name":  query.ByText(func(p model.Payment) string { return p.TenantName }),
		"status":       query.ByText(func(p model.Payment) string { return p.Status }),
	},
	DefaultSort: "created_at",
	Enrich: func(p model.Payment, room string) PaymentRow {
		return PaymentRow{Payment: p, RoomNumber: room}
	},
	Summarize: func(filtered []model.Payment) any {
		var s Stats
		for _, p := range filtered {
			s.TotalPayments++
			switch p.Status {
			case model.StatusPending:
				s.PendingPayments++
			case model.StatusConfirmed:
				s.ConfirmedPayments++
			}
			s.TotalAmount += p.TotalAmount
		}
		s.TotalAmount = round2(s.TotalAmount)
		return s
	},
}

// Paginate runs the listing pipeline over payments. Admin only.
func (l *Ledger) Paginate(ctx context.Context, caller model.Identity, p query.Params) (query.Page[PaymentRow], error) {
	if err := auth.RequireAdmin(caller); err != nil {
		return query.Page[PaymentRow]{}, err
	}
	var page query.Page[PaymentRow]
	err := l.store.View(ctx, func(ds *storage.Dataset) error {
		page = query.Run(ds.Payments, caller, p, ds.RoomNumbers(), payments)
		return nil
	})
	return page, err
}
