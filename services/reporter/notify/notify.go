// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package notify delivers finished reports to operators by email.
//
// Delivery is best-effort: the orchestrator logs send failures and moves
// on, because the report is already persisted and the next rollup will
// carry its content forward regardless.
package notify

import (
	"context"

	"gitlab.com/golang-commonmark/markdown"
)

// Message is one outbound report notification.
type Message struct {
	Subject string

	// MarkdownBody is rendered to HTML before sending.
	MarkdownBody string

	Recipients []string

	// Attachments are file paths attached as-is (e.g. a logo image).
	Attachments []string
}

// Notifier delivers messages. Errors are for the caller to log, never to
// propagate into cycle state.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// RenderHTML converts a markdown report body to an HTML email body.
func RenderHTML(markdownBody string) string {
	md := markdown.New(markdown.XHTMLOutput(true), markdown.Typographer(false))
	return md.RenderToString([]byte(markdownBody))
}

// NopNotifier discards all messages. Used for dry runs and tests.
type NopNotifier struct{}

// Send discards the message.
func (NopNotifier) Send(ctx context.Context, msg Message) error { return nil }

var _ Notifier = NopNotifier{}
