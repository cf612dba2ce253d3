package mailer

import (
	"context"
	"errors"
	"fmt"

	gomail "github.com/wneessen/go-mail"

	"github.com/failwatch/failwatch/internal/config"
)

// ErrDispatchFailed wraps any failure to hand the message to the SMTP relay.
var ErrDispatchFailed = errors.New("mail dispatch failed")

// Dispatcher transmits a rendered message to one recipient.
type Dispatcher interface {
	Send(ctx context.Context, recipient, subject, htmlBody, plainBody string) error
}

// SMTPDispatcher delivers multipart/alternative mail through an SMTP relay.
type SMTPDispatcher struct {
	cfg    config.MailConfig
	client *gomail.Client
}

func NewSMTPDispatcher(cfg config.MailConfig) (*SMTPDispatcher, error) {
	client, err := gomail.NewClient(cfg.SMTPHost,
		gomail.WithPort(cfg.SMTPPort),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &SMTPDispatcher{cfg: cfg, client: client}, nil
}

func (d *SMTPDispatcher) Send(ctx context.Context, recipient, subject, htmlBody, plainBody string) error {
	msg := gomail.NewMsg()
	if err := msg.From(d.cfg.Sender); err != nil {
		return fmt.Errorf("%w: invalid sender %q: %v", ErrDispatchFailed, d.cfg.Sender, err)
	}
	if err := msg.To(recipient); err != nil {
		return fmt.Errorf("%w: invalid recipient %q: %v", ErrDispatchFailed, recipient, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, plainBody)
	if htmlBody != "" {
		msg.AddAlternativeString(gomail.TypeTextHTML, htmlBody)
	}

	if err := d.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	return nil
}

var _ Dispatcher = (*SMTPDispatcher)(nil)
