// Package mailer delivers notification email over SMTP.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/htpdf/htpdf/config"
	"github.com/htpdf/htpdf/internal/core"
	mail "github.com/wneessen/go-mail"
)

// SMTPSenderOptions groups dependencies for SMTPSender.
type SMTPSenderOptions struct {
	Config config.EmailConfig // Required: SMTP connection settings
	Logger *slog.Logger       // Optional: structured logger

	// ResolveAttachment maps a stored attachment path to an absolute
	// filesystem path. Optional; defaults to using the path as-is.
	ResolveAttachment func(path string) string
}

// SMTPSender sends HTML email with optional file attachments. A new SMTP
// connection is dialed per message; outbox volume is low enough that
// connection reuse is not worth the state.
type SMTPSender struct {
	config            config.EmailConfig
	logger            *slog.Logger
	resolveAttachment func(path string) string
}

var _ core.EmailSender = (*SMTPSender)(nil)

// NewSMTPSender constructs an SMTPSender.
func NewSMTPSender(opts SMTPSenderOptions) (*SMTPSender, error) {
	if opts.Config.Host == "" {
		return nil, errors.New("SMTP host is required")
	}

	resolve := opts.ResolveAttachment
	if resolve == nil {
		resolve = func(path string) string { return path }
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "smtp_sender")
	}

	return &SMTPSender{
		config:            opts.Config,
		logger:            logger,
		resolveAttachment: resolve,
	}, nil
}

// Send delivers one email. Any error is retryable from the outbox's point
// of view.
func (s *SMTPSender) Send(ctx context.Context, email core.Email) error {
	msg := mail.NewMsg()
	if err := msg.From(s.config.From); err != nil {
		return fmt.Errorf("set from address %s: %w", s.config.From, err)
	}
	if err := msg.To(email.To); err != nil {
		return fmt.Errorf("set to address %s: %w", email.To, err)
	}
	msg.Subject(email.Subject)
	msg.SetBodyString(mail.TypeTextHTML, email.Body)

	if email.AttachmentPath != nil {
		path := s.resolveAttachment(*email.AttachmentPath)
		opts := []mail.FileOption{}
		if email.AttachmentFilename != nil {
			opts = append(opts, mail.WithFileName(*email.AttachmentFilename))
		}
		msg.AttachFile(path, opts...)
	}

	client, err := s.newClient()
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email to %s: %w", email.To, err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "email sent", "to", email.To, "subject", email.Subject)
	}
	return nil
}

func (s *SMTPSender) newClient() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.config.Port),
	}

	if s.config.UseTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.config.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.config.User),
			mail.WithPassword(s.config.Password),
		)
	}

	return mail.NewClient(s.config.Host, opts...)
}
