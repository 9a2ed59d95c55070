// Package notify tells the operator when the session needs a human, currently only
// when the target asks for a verification code.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("insights.internal.notify")

// VerificationNotice describes a pending verification. Nonce identifies the attempt so
// the operator can tell repeated notices apart, it is not a secret.
type VerificationNotice struct {
	Account   string
	Page      string
	StartedAt time.Time
	Deadline  time.Time
	Nonce     string
}

func (n VerificationNotice) body() string {
	return fmt.Sprintf(`The LinkedIn login for %s is waiting for a verification code.

Attempt: %s
Started: %s
Expires: %s
Page: %s

Enter the code with:

    insights session verify <code>

or approve the login in the LinkedIn app. If the deadline passes, import fresh cookies with
"insights session import" or log in with "insights session login --browser".`,
		n.Account,
		n.Nonce,
		n.StartedAt.Format(time.RFC1123),
		n.Deadline.Format(time.RFC1123),
		n.Page,
	)
}

type Notifier interface {
	VerificationRequired(ctx context.Context, notice VerificationNotice) error
}

// Log writes notices to the process log, it is always enabled.
type Log struct{}

func (Log) VerificationRequired(ctx context.Context, notice VerificationNotice) error {
	slog.WarnContext(
		ctx, "verification required",
		"account", notice.Account,
		"attempt", notice.Nonce,
		"deadline", notice.Deadline,
	)
	return nil
}

type SmtpConfig struct {
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	Password     string   `json:"password"`
	To           []string `json:"to"`
}

// Email mails notices to the configured operators.
type Email struct {
	config SmtpConfig
}

func NewEmail(config SmtpConfig) Email {
	return Email{config: config}
}

func (e Email) VerificationRequired(ctx context.Context, notice VerificationNotice) error {
	ctx, span := tracer.Start(ctx, "Email.VerificationRequired")
	defer span.End()

	if len(e.config.To) == 0 {
		return nil
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Insights <%s>", e.config.EmailAddress)
	mail.To = e.config.To
	mail.Subject = "LinkedIn verification required"
	mail.Text = []byte(notice.body())

	addr := fmt.Sprintf("%s:%d", e.config.Server, e.config.Port)
	err := mail.Send(addr, smtp.PlainAuth("", e.config.EmailAddress, e.config.Password, e.config.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	slog.DebugContext(ctx, "sent verification notice", "to", len(e.config.To))
	return nil
}

// Multi delivers a notice to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) VerificationRequired(ctx context.Context, notice VerificationNotice) error {
	var errs []error
	for _, n := range m {
		if err := n.VerificationRequired(ctx, notice); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
