// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_bridge

import (
	"context"
	"fmt"

	internal_agent_elevenlabs "github.com/rapidaai/receptionist/internal/agent/elevenlabs"
	"github.com/rapidaai/receptionist/pkg/commons"
)

type agentDialer struct {
	logger     commons.Logger
	negotiator internal_agent_elevenlabs.Negotiator
}

// NewAgentDialer builds the production agent dialer: negotiate a signed URL
// for the tenant's agent, then open the websocket. No retry on failure; the
// caller treats it as call-fatal.
func NewAgentDialer(logger commons.Logger, negotiator internal_agent_elevenlabs.Negotiator) AgentDialer {
	return &agentDialer{logger: logger, negotiator: negotiator}
}

func (d *agentDialer) Dial(ctx context.Context, agentID string) (AgentLeg, error) {
	signedURL, err := d.negotiator.SignedURL(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to negotiate agent session: %w", err)
	}
	conn, err := internal_agent_elevenlabs.Dial(ctx, d.logger, signedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open agent session: %w", err)
	}
	return conn, nil
}
