// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package reception_api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/receptionist/api/receptionist-api/config"
	internal_bridge "github.com/rapidaai/receptionist/internal/bridge"
	internal_callcontext "github.com/rapidaai/receptionist/internal/callcontext"
	internal_callermemory "github.com/rapidaai/receptionist/internal/callermemory"
	internal_directory "github.com/rapidaai/receptionist/internal/directory"
	internal_notify "github.com/rapidaai/receptionist/internal/notify"
	internal_telephony_twilio "github.com/rapidaai/receptionist/internal/telephony/twilio"
	internal_tenant "github.com/rapidaai/receptionist/internal/tenant"
	"github.com/rapidaai/receptionist/pkg/commons"
	"github.com/rapidaai/receptionist/pkg/utils"
)

// ReceptionApi serves the receptionist's outer surface: the telephony voice
// webhook, the media stream websocket, and the agent-triggered message and
// transfer webhooks.
type ReceptionApi struct {
	cfg    *config.AppConfig
	logger commons.Logger

	tenants   internal_tenant.Resolver
	memory    internal_callermemory.Memory
	contexts  internal_callcontext.Store
	dialer    internal_bridge.AgentDialer
	directory internal_directory.Directory
	email     internal_notify.EmailSender
	calls     internal_telephony_twilio.CallControl
}

func NewReceptionApi(
	cfg *config.AppConfig,
	logger commons.Logger,
	tenants internal_tenant.Resolver,
	memory internal_callermemory.Memory,
	contexts internal_callcontext.Store,
	dialer internal_bridge.AgentDialer,
	directory internal_directory.Directory,
	email internal_notify.EmailSender,
	calls internal_telephony_twilio.CallControl,
) *ReceptionApi {
	return &ReceptionApi{
		cfg:       cfg,
		logger:    logger,
		tenants:   tenants,
		memory:    memory,
		contexts:  contexts,
		dialer:    dialer,
		directory: directory,
		email:     email,
		calls:     calls,
	}
}

// Voice answers the provider's inbound-call webhook with TwiML that connects
// the call audio to the media stream websocket. Caller identity and tenant
// ride along as stream custom parameters.
func (api *ReceptionApi) Voice(c *gin.Context) {
	tenantID := c.Param("tenantId")
	tenant, _ := api.tenants.Resolve(tenantID)
	if tenant == nil {
		c.String(http.StatusServiceUnavailable, "no tenant configured")
		return
	}

	callerNumber := c.PostForm("From")
	callerName := c.PostForm("CallerName")
	callSID := c.PostForm("CallSid")

	streamURL := fmt.Sprintf("wss://%s/v1/reception/stream", api.cfg.PublicHost)
	twiml := internal_telephony_twilio.StreamTwiML(streamURL, map[string]string{
		"callerNumber": callerNumber,
		"callerName":   callerName,
		"tenantId":     tenant.Id,
	})

	api.logger.Infow("answering inbound call",
		"call", callSID, "tenant", tenant.Id, "caller", callerNumber)
	c.Header("Content-Type", "text/xml")
	c.String(http.StatusOK, twiml)
}

// Stream upgrades the media stream websocket and runs a bridge session on it
// until the call ends. One session per connection; the handler blocks for the
// life of the call.
func (api *ReceptionApi) Stream(c *gin.Context) {
	stream, err := internal_telephony_twilio.Upgrade(api.logger, c.Writer, c.Request)
	if err != nil {
		api.logger.Errorw("failed to accept media stream", "error", err)
		return
	}

	session := internal_bridge.NewSession(api.logger, stream, api.dialer,
		api.tenants, api.memory, api.contexts)
	session.Run(c.Request.Context())
}

// messageRequest is the payload the voice agent posts when a caller leaves a
// message. Field names are part of the agent tool contract.
type messageRequest struct {
	CalleeName    string `json:"Callee_Name"`
	CallerName    string `json:"Caller_Name"`
	CallerPhone   string `json:"Caller_Phone"`
	CallerMessage string `json:"Caller_Message"`
	CallerId      string `json:"caller_id"`
	CallSid       string `json:"call_sid"`
}

// Message takes a message for a staff member: resolves the callee in the
// directory, emails the message, remembers the caller's identity, and
// transfers the live call when the callee has a number and the call is known.
func (api *ReceptionApi) Message(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "invalid payload")
		return
	}

	api.enrichFromCallContext(&req)

	if !utils.IsEmpty(req.CallerPhone) && !utils.IsEmpty(req.CallerName) {
		if learned, err := api.memory.Remember(c.Request.Context(), req.CallerPhone, req.CallerName); err != nil {
			api.logger.Warnw("failed to remember caller", "call", req.CallSid, "error", err)
		} else if learned {
			api.logger.Infow("learned caller identity",
				"call", req.CallSid, "caller", req.CallerPhone)
		}
	}

	callee, found := api.directory.Lookup(req.CalleeName)
	if !found {
		api.logger.Warnw("callee not in directory, routing to fallback",
			"call", req.CallSid, "callee", req.CalleeName)
	}

	subject := fmt.Sprintf("New message for %s", orUnknown(req.CalleeName))
	if err := api.email.Send(callee.Email, subject, messageBody(&req, callee)); err != nil {
		api.logger.Errorw("failed to email message",
			"call", req.CallSid, "to", callee.Email, "error", err)
		c.String(http.StatusInternalServerError, "failed to deliver message")
		return
	}

	if api.cfg.TwilioConfig.FromNumber != "" && callee.Phone != "" {
		sms := fmt.Sprintf("New message from %s (%s): %s",
			orUnknown(req.CallerName), orUnknown(req.CallerPhone), req.CallerMessage)
		if err := api.calls.SendSMS(api.cfg.TwilioConfig.FromNumber, callee.Phone, sms); err != nil {
			api.logger.Warnw("failed to sms callee",
				"call", req.CallSid, "to", callee.Phone, "error", err)
		}
	}

	if req.CallSid != "" && callee.Phone != "" {
		if err := api.calls.Transfer(req.CallSid, callee.Phone); err != nil {
			// The message is already delivered; a failed transfer leaves the
			// caller with the agent rather than failing the webhook.
			api.logger.Warnw("failed to transfer call",
				"call", req.CallSid, "to", callee.Phone, "error", err)
		}
	}

	c.String(http.StatusOK, "OK")
}

// enrichFromCallContext fills null caller fields from the bridge registry.
// The provider can hand the agent null system variables over the streaming
// channel; the registry keeps what the start message carried. Best effort:
// exact call sid first, most recent open bridge as a last resort.
func (api *ReceptionApi) enrichFromCallContext(req *messageRequest) {
	if req.CallerPhone != "" && req.CallSid != "" {
		return
	}

	cc, ok := api.contexts.Get(req.CallSid)
	if !ok {
		cc, ok = api.contexts.Latest()
	}
	if !ok {
		return
	}

	req.CallSid = utils.FirstNonEmpty(req.CallSid, cc.CallSID)
	req.CallerPhone = utils.FirstNonEmpty(req.CallerPhone, cc.CallerNumber)
	req.CallerName = utils.FirstNonEmpty(req.CallerName, cc.CallerName)
}

// Transfer returns dial-out TwiML for the number in the "to" query parameter.
func (api *ReceptionApi) Transfer(c *gin.Context) {
	to := strings.TrimSpace(c.Query("to"))
	if to == "" {
		c.String(http.StatusBadRequest, `missing "to" parameter`)
		return
	}

	api.logger.Infow("transfer twiml requested", "to", to)
	c.Header("Content-Type", "text/xml")
	c.String(http.StatusOK, internal_telephony_twilio.TransferTwiML(to))
}

func messageBody(req *messageRequest, callee internal_directory.Contact) string {
	return strings.TrimSpace(fmt.Sprintf(`
Callee: %s
Callee Phone: %s
Callee Role: %s

Caller Name: %s
Caller Phone: %s
Caller Message: %s

Caller ID: %s
Call SID: %s
`,
		orUnknown(req.CalleeName),
		orUnknown(callee.Phone),
		orUnknown(callee.Role),
		orUnknown(req.CallerName),
		orUnknown(req.CallerPhone),
		req.CallerMessage,
		orUnknown(req.CallerId),
		orUnknown(req.CallSid)))
}

func orUnknown(s string) string {
	return utils.FirstNonEmpty(s, "Unknown")
}
