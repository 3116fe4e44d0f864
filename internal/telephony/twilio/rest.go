// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_telephony_twilio

import (
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/rapidaai/receptionist/pkg/commons"
)

// CallControl covers the REST operations the receptionist performs out of
// band of the media stream: redirecting a live call to a human and sending
// text messages.
type CallControl interface {
	// Transfer redirects an in-progress call to dial the given number.
	Transfer(callSID, number string) error
	// SendSMS sends a text message from the tenant's number.
	SendSMS(from, to, body string) error
}

type restControl struct {
	logger commons.Logger
	client *twilio.RestClient
}

// NewCallControl builds a REST call controller from account credentials.
func NewCallControl(logger commons.Logger, accountSID, authToken string) CallControl {
	return &restControl{
		logger: logger,
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
	}
}

func (c *restControl) Transfer(callSID, number string) error {
	if callSID == "" || number == "" {
		return fmt.Errorf("transfer requires call sid and number, got %q -> %q", callSID, number)
	}

	params := &twilioApi.UpdateCallParams{}
	params.SetTwiml(TransferTwiML(number))
	if _, err := c.client.Api.UpdateCall(callSID, params); err != nil {
		return fmt.Errorf("failed to transfer call %s to %s: %w", callSID, number, err)
	}
	c.logger.Infow("transferred call", "call", callSID, "to", number)
	return nil
}

func (c *restControl) SendSMS(from, to, body string) error {
	if to == "" || body == "" {
		return fmt.Errorf("sms requires recipient and body")
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(from)
	params.SetTo(to)
	params.SetBody(body)
	if _, err := c.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send sms to %s: %w", to, err)
	}
	c.logger.Infow("sent sms", "to", to)
	return nil
}
