// Package ledger records rent and utility payments and their confirmation
// status.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"rentledger/internal/auth"
	"rentledger/internal/messaging"
	"rentledger/internal/metrics"
	"rentledger/internal/model"
	"rentledger/internal/query"
	"rentledger/internal/storage"
)

// PaymentInput is the client submitted part of a payment. Amounts accept
// JSON numbers or numeric strings.
type PaymentInput struct {
	PaymentDate     string        `json:"payment_date"`
	RentAmount      *model.Number `json:"rent_amount"`
	WaterFee        *model.Number `json:"water_fee"`
	ElectricityRate *model.Number `json:"electricity_rate"`
	PreviousMeter   *model.Number `json:"previous_meter"`
	CurrentMeter    *model.Number `json:"current_meter"`
	TotalAmount     *model.Number `json:"total_amount"`
	AccountLastFive string        `json:"account_last_five"`
}

// UnmarshalJSON treats blank string fields as absent, so a form that posts
// "rent_amount": "" fails the required field check instead of reading as 0.
func (in *PaymentInput) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	for name, raw := range fields {
		var text string
		if json.Unmarshal(raw, &text) == nil && strings.TrimSpace(text) == "" {
			delete(fields, name)
		}
	}
	cleaned, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	type plain PaymentInput
	return json.Unmarshal(cleaned, (*plain)(in))
}

type Ledger struct {
	store  *storage.Store
	events messaging.Publisher
	log    logrus.FieldLogger
}

func New(store *storage.Store, events messaging.Publisher, log logrus.FieldLogger) *Ledger {
	return &Ledger{
		store:  store,
		events: events,
		log:    log.WithField("component", "ledger"),
	}
}

// CreatePayment validates the input, computes the electricity usage, fee and
// total, and stores a pending payment owned by the caller.
func (l *Ledger) CreatePayment(ctx context.Context, caller model.Identity, in PaymentInput) (model.Payment, error) {
	p, err := compute(in)
	if err != nil {
		return model.Payment{}, err
	}

	now := l.store.Now()
	p.TenantID = caller.ID
	p.TenantName = caller.DisplayName()
	p.Status = model.StatusPending
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.PaymentDate == "" {
		p.PaymentDate = now.Format("2006-01-02")
	}

	err = l.store.Update(ctx, func(ds *storage.Dataset) error {
		i, err := ds.ActiveTenant(caller)
		if err != nil {
			return err
		}
		if i >= 0 && ds.Tenants[i].Name != "" {
			p.TenantName = ds.Tenants[i].Name
		}
		p.ID = ds.NextPaymentID()
		ds.Payments = append(ds.Payments, p)
		return nil
	})
	if err != nil {
		return model.Payment{}, err
	}

	metrics.PaymentsCreated.Inc()
	l.log.WithFields(logrus.Fields{
		"payment_id": p.ID,
		"tenant_id":  p.TenantID,
		"total":      p.TotalAmount,
	}).Info("payment created")

	messaging.Emit(ctx, l.events, l.log, messaging.NewEvent(messaging.EventPaymentCreated, p.TenantID, p.TenantName, map[string]interface{}{
		"payment_id":   p.ID,
		"payment_date": p.PaymentDate,
		"total_amount": p.TotalAmount,
	}))
	return p, nil
}

func compute(in PaymentInput) (model.Payment, error) {
	required := []struct {
		name string
		val  *model.Number
	}{
		{"rent_amount", in.RentAmount},
		{"electricity_rate", in.ElectricityRate},
		{"previous_meter", in.PreviousMeter},
		{"current_meter", in.CurrentMeter},
	}
	var missing []string
	for _, f := range required {
		if f.val == nil {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return model.Payment{}, fmt.Errorf("%w: missing %s", model.ErrValidation, strings.Join(missing, ", "))
	}

	p := model.Payment{
		PaymentDate:     strings.TrimSpace(in.PaymentDate),
		RentAmount:      in.RentAmount.Float(),
		ElectricityRate: in.ElectricityRate.Float(),
		PreviousMeter:   in.PreviousMeter.Float(),
		CurrentMeter:    in.CurrentMeter.Float(),
		AccountLastFive: strings.TrimSpace(in.AccountLastFive),
	}
	if in.WaterFee != nil {
		p.WaterFee = in.WaterFee.Float()
	}

	for name, v := range map[string]float64{
		"rent_amount":      p.RentAmount,
		"water_fee":        p.WaterFee,
		"electricity_rate": p.ElectricityRate,
		"previous_meter":   p.PreviousMeter,
		"current_meter":    p.CurrentMeter,
	} {
		if v < 0 {
			return model.Payment{}, fmt.Errorf("%w: %s must not be negative", model.ErrValidation, name)
		}
	}
	if p.CurrentMeter < p.PreviousMeter {
		return model.Payment{}, fmt.Errorf("%w: current_meter is lower than previous_meter", model.ErrValidation)
	}
	if p.PaymentDate != "" {
		if _, ok := model.ParseTime(p.PaymentDate); !ok {
			return model.Payment{}, fmt.Errorf("%w: payment_date %q is not a date", model.ErrValidation, p.PaymentDate)
		}
	}
	if len(p.AccountLastFive) > 5 {
		return model.Payment{}, fmt.Errorf("%w: account_last_five has more than 5 characters", model.ErrValidation)
	}

	p.ElectricityUsage = round2(p.CurrentMeter - p.PreviousMeter)
	p.ElectricityFee = round2(p.ElectricityUsage * p.ElectricityRate)
	p.TotalAmount = round2(p.RentAmount + p.WaterFee + p.ElectricityFee)
	if in.TotalAmount != nil {
		if in.TotalAmount.Float() < 0 {
			return model.Payment{}, fmt.Errorf("%w: total_amount must not be negative", model.ErrValidation)
		}
		p.TotalAmount = in.TotalAmount.Float()
	}
	return p, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ListPayments returns the caller's payments (all of them for an admin),
// newest payment date first.
func (l *Ledger) ListPayments(ctx context.Context, caller model.Identity) ([]model.Payment, error) {
	var out []model.Payment
	err := l.store.View(ctx, func(ds *storage.Dataset) error {
		out = make([]model.Payment, 0, len(ds.Payments))
		for _, p := range ds.Payments {
			if caller.IsAdmin() || p.TenantID == caller.ID {
				out = append(out, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	query.SortRecords(out, query.ByTime(model.Payment.PaidOn), true, paymentID)
	return out, nil
}

// SetStatus moves a payment between pending and confirmed. Setting the current
// status again is allowed and only refreshes updated_at.
func (l *Ledger) SetStatus(ctx context.Context, caller model.Identity, id int64, status string) (model.Payment, error) {
	if err := auth.RequireAdmin(caller); err != nil {
		return model.Payment{}, err
	}
	status = strings.ToLower(strings.TrimSpace(status))
	if !model.ValidStatus(status) {
		return model.Payment{}, fmt.Errorf("%w: status must be %s or %s", model.ErrValidation, model.StatusPending, model.StatusConfirmed)
	}

	var (
		updated  model.Payment
		previous string
		email    string
	)
	err := l.store.Update(ctx, func(ds *storage.Dataset) error {
		i, ok := ds.FindPayment(id)
		if !ok {
			return fmt.Errorf("%w: payment %d", model.ErrNotFound, id)
		}
		previous = ds.Payments[i].Status
		ds.Payments[i].Status = status
		ds.Payments[i].UpdatedAt = l.store.Now()
		updated = ds.Payments[i]
		if ti, ok := ds.FindTenant(updated.TenantID); ok {
			email = ds.Tenants[ti].Email
		}
		return nil
	})
	if err != nil {
		return model.Payment{}, err
	}

	l.log.WithFields(logrus.Fields{
		"payment_id": id,
		"from":       previous,
		"to":         status,
		"by":         caller.Username,
	}).Info("payment status updated")

	ev := messaging.NewEvent(messaging.EventPaymentStatusChanged, updated.TenantID, updated.TenantName, map[string]interface{}{
		"payment_id":      updated.ID,
		"previous_status": previous,
		"status":          updated.Status,
		"total_amount":    updated.TotalAmount,
	})
	ev.Email = email
	messaging.Emit(ctx, l.events, l.log, ev)
	return updated, nil
}

func paymentID(p model.Payment) int64 { return p.ID }

