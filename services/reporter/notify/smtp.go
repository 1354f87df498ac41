// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/AleutianAI/Firewatch/pkg/logging"
)

// sendTimeout bounds one SMTP conversation.
const sendTimeout = 30 * time.Second

// SMTPConfig configures the mail transport.
type SMTPConfig struct {
	Host   string
	Port   int
	Sender string

	// Username authenticates the SMTP session. Defaults to Sender, the
	// usual login-as-sender setup.
	Username string
	Password string
}

// SMTPNotifier sends report mail over SMTP with STARTTLS and plain auth,
// matching the transport the appliance-facing deployments use.
type SMTPNotifier struct {
	cfg    SMTPConfig
	logger *logging.Logger
}

// NewSMTPNotifier creates a notifier from config.
func NewSMTPNotifier(cfg SMTPConfig, logger *logging.Logger) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Sender == "" {
		return nil, errors.New("smtp sender is required")
	}
	if cfg.Username == "" {
		cfg.Username = cfg.Sender
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SMTPNotifier{cfg: cfg, logger: logger}, nil
}

// Send renders the markdown body to HTML and delivers the message to all
// recipients in one SMTP transaction.
func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	if len(msg.Recipients) == 0 {
		return errors.New("no recipients")
	}

	m := mail.NewMsg()
	if err := m.From(n.cfg.Sender); err != nil {
		return fmt.Errorf("invalid sender %q: %w", n.cfg.Sender, err)
	}
	if err := m.To(msg.Recipients...); err != nil {
		return fmt.Errorf("invalid recipients: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, RenderHTML(msg.MarkdownBody))
	for _, path := range msg.Attachments {
		m.AttachFile(path)
	}

	opts := []mail.Option{
		mail.WithPort(n.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(sendTimeout),
	}
	if n.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.cfg.Username),
			mail.WithPassword(n.cfg.Password),
		)
	}

	client, err := mail.NewClient(n.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := client.DialAndSendWithContext(sendCtx, m); err != nil {
		return fmt.Errorf("send mail via %s: %w", n.cfg.Host, err)
	}

	n.logger.Info("report mail sent",
		"subject", msg.Subject,
		"recipients", len(msg.Recipients),
		"attachments", len(msg.Attachments),
	)
	return nil
}

var _ Notifier = (*SMTPNotifier)(nil)
