// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_agent_elevenlabs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rapidaai/receptionist/pkg/commons"
)

const (
	defaultBaseURL    = "https://api.elevenlabs.io"
	signedURLPath     = "/v1/convai/conversation/get-signed-url"
	negotiateTimeout  = 10 * time.Second
)

// Negotiator obtains a short-lived signed websocket URL for a voice agent.
// The provider API key never appears in any URL; it travels only in the
// xi-api-key header of this server-side exchange.
type Negotiator interface {
	SignedURL(ctx context.Context, agentID string) (string, error)
}

type restNegotiator struct {
	logger commons.Logger
	client *resty.Client
}

// NegotiatorOption configures the negotiator.
type NegotiatorOption func(*restNegotiator)

// WithBaseURL points the negotiator at a different provider endpoint.
func WithBaseURL(baseURL string) NegotiatorOption {
	return func(n *restNegotiator) {
		n.client.SetBaseURL(baseURL)
	}
}

// NewNegotiator builds a signed-URL negotiator against the provider REST API.
func NewNegotiator(logger commons.Logger, apiKey string, opts ...NegotiatorOption) Negotiator {
	n := &restNegotiator{
		logger: logger,
		client: resty.New().
			SetBaseURL(defaultBaseURL).
			SetHeader("xi-api-key", apiKey).
			SetTimeout(negotiateTimeout),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SignedURL exchanges the agent id for a signed websocket URL. Negotiation is
// fail-fast: any error here aborts session setup before telephony audio is
// accepted.
func (n *restNegotiator) SignedURL(ctx context.Context, agentID string) (string, error) {
	var out struct {
		SignedURL string `json:"signed_url"`
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetQueryParam("agent_id", agentID).
		SetResult(&out).
		Get(signedURLPath)
	if err != nil {
		return "", fmt.Errorf("failed to negotiate signed url for agent %s: %w", agentID, err)
	}
	if !resp.IsSuccess() {
		n.logger.Errorw("signed url negotiation rejected",
			"agent", agentID, "status", resp.StatusCode())
		return "", fmt.Errorf("signed url negotiation for agent %s returned %d", agentID, resp.StatusCode())
	}
	if out.SignedURL == "" {
		return "", fmt.Errorf("signed url negotiation for agent %s returned empty url", agentID)
	}
	return out.SignedURL, nil
}
