// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_callcontext

import "time"

// CallContext is the per-call metadata shared between the media bridge and the
// out-of-band webhook handlers. The agent backend delivers system variables as
// null placeholders over the streaming channel, so webhooks use this record to
// recover caller/tenant context by call sid.
type CallContext struct {
	// CallSID is the telephony call identifier. May be absent at creation;
	// the store synthesizes a key in that case.
	CallSID string

	// TenantID selects the business configuration for this call.
	TenantID string

	// CallerNumber is the caller's phone number in E.164.
	CallerNumber string

	// CallerName is the display name from prior-caller memory, if recognized.
	CallerName string

	// StreamSID is the telephony media stream identifier, captured from the
	// stream start event and used to tag every outbound media frame.
	StreamSID string

	CreatedAt time.Time
}
