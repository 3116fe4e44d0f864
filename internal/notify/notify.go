// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_notify

import (
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/rapidaai/receptionist/pkg/commons"
)

// EmailSender delivers operator-visible notifications. Failures here are
// surfaced to the webhook caller but never into the audio stream.
type EmailSender interface {
	Send(to, subject, body string) error
}

type sendgridSender struct {
	logger   commons.Logger
	client   *sendgrid.Client
	fromName string
	fromAddr string
}

// NewEmailSender builds a SendGrid-backed email sender.
func NewEmailSender(logger commons.Logger, apiKey, fromName, fromAddr string) EmailSender {
	return &sendgridSender{
		logger:   logger,
		client:   sendgrid.NewSendClient(apiKey),
		fromName: fromName,
		fromAddr: fromAddr,
	}
}

func (s *sendgridSender) Send(to, subject, body string) error {
	if to == "" {
		return fmt.Errorf("email requires a recipient")
	}

	message := mail.NewSingleEmailPlainText(
		mail.NewEmail(s.fromName, s.fromAddr), subject, mail.NewEmail("", to), body)
	resp, err := s.client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("email to %s rejected with status %d: %s", to, resp.StatusCode, resp.Body)
	}
	s.logger.Infow("sent email", "to", to, "subject", subject)
	return nil
}
