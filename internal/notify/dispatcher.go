package notify

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"rentledger/internal/messaging"
	"rentledger/internal/model"
)

// Dispatcher turns domain events into mail.
type Dispatcher struct {
	mailer Mailer
	from   string
	admins []string
	log    logrus.FieldLogger
}

func NewDispatcher(mailer Mailer, from string, admins []string, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{
		mailer: mailer,
		from:   from,
		admins: admins,
		log:    log.WithField("component", "notify"),
	}
}

// Handle is a messaging.HandlerFunc.
func (d *Dispatcher) Handle(ctx context.Context, ev messaging.Event) error {
	mail, ok := d.compose(ev)
	if !ok {
		d.log.WithField("event", ev.Type).Debug("no mail for event")
		return nil
	}
	mail.From = d.from
	if err := d.mailer.Send(ctx, mail); err != nil {
		return fmt.Errorf("send %s mail: %w", ev.Type, err)
	}
	return nil
}

func (d *Dispatcher) compose(ev messaging.Event) (Mail, bool) {
	switch ev.Type {
	case messaging.EventTenantRegistered:
		if ev.Email == "" {
			return Mail{}, false
		}
		return Mail{
			To:      []string{ev.Email},
			Subject: "Welcome",
			Body:    fmt.Sprintf("Hello %s, your tenant account is ready.", ev.TenantName),
		}, true

	case messaging.EventPaymentCreated:
		if len(d.admins) == 0 {
			return Mail{}, false
		}
		return Mail{
			To:      d.admins,
			Subject: "New payment submitted",
			Body: fmt.Sprintf("%s submitted payment #%v for %v, total %v.",
				ev.TenantName, ev.Payload["payment_id"], ev.Payload["payment_date"], ev.Payload["total_amount"]),
		}, true

	case messaging.EventPaymentStatusChanged:
		if ev.Email == "" || ev.Payload["status"] != model.StatusConfirmed {
			return Mail{}, false
		}
		return Mail{
			To:      []string{ev.Email},
			Subject: "Payment confirmed",
			Body:    fmt.Sprintf("Hello %s, payment #%v has been confirmed.", ev.TenantName, ev.Payload["payment_id"]),
		}, true

	case messaging.EventTenantDeleted:
		if ev.Email == "" {
			return Mail{}, false
		}
		return Mail{
			To:      []string{ev.Email},
			Subject: "Account closed",
			Body:    fmt.Sprintf("Hello %s, your tenant account has been removed.", ev.TenantName),
		}, true
	}
	return Mail{}, false
}

// ResetCodeMail is the password reset message.
func ResetCodeMail(from, to, code string) Mail {
	return Mail{
		From:    from,
		To:      []string{to},
		Subject: "Password reset code",
		Body: fmt.Sprintf("Your password reset code is %s. It expires in %d minutes. "+
			"If you did not ask to reset your password, ignore this mail.", code, int(CodeTTL.Minutes())),
	}
}
