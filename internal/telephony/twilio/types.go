// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_telephony_twilio

// Twilio Media Streams wire contract. Inbound messages arrive on the stream
// websocket as JSON envelopes keyed by "event"; outbound messages carry the
// stream sid of the session they belong to. Decoded at the boundary into
// typed structs; unknown events are dropped and logged.

// Inbound event names.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
	EventMark      = "mark"
	EventDTMF      = "dtmf"
)

// StreamMessage is the inbound envelope. Exactly one payload field is set,
// matching the event name.
type StreamMessage struct {
	Event     string        `json:"event"`
	StreamSID string        `json:"streamSid,omitempty"`
	Start     *StartPayload `json:"start,omitempty"`
	Media     *MediaPayload `json:"media,omitempty"`
	Mark      *MarkPayload  `json:"mark,omitempty"`
	Stop      *StopPayload  `json:"stop,omitempty"`
	DTMF      *DTMFPayload  `json:"dtmf,omitempty"`
}

// StartPayload announces the media session. CustomParameters carries the
// values set on the <Stream> TwiML noun: caller number, caller name and
// tenant id from the inbound voice webhook.
type StartPayload struct {
	StreamSID        string            `json:"streamSid"`
	AccountSID       string            `json:"accountSid"`
	CallSID          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	MediaFormat      MediaFormat       `json:"mediaFormat"`
	CustomParameters map[string]string `json:"customParameters"`
}

// MediaFormat describes the audio on the stream. Telephony media is 8kHz
// µ-law, one channel.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// MediaPayload carries one frame of base64 µ-law audio.
type MediaPayload struct {
	Track     string `json:"track"`
	Chunk     string `json:"chunk"`
	Timestamp string `json:"timestamp"`
	Payload   string `json:"payload"`
}

// MarkPayload acknowledges a previously sent mark.
type MarkPayload struct {
	Name string `json:"name"`
}

// StopPayload ends the media session.
type StopPayload struct {
	AccountSID string `json:"accountSid"`
	CallSID    string `json:"callSid"`
}

// DTMFPayload carries one keypad digit pressed by the caller.
type DTMFPayload struct {
	Track string `json:"track"`
	Digit string `json:"digit"`
}

// ============================================================================
// Outbound messages
// ============================================================================

// outboundMedia plays one frame of base64 µ-law audio to the caller.
type outboundMedia struct {
	Event     string               `json:"event"`
	StreamSID string               `json:"streamSid"`
	Media     outboundMediaPayload `json:"media"`
}

type outboundMediaPayload struct {
	Payload string `json:"payload"`
}

// outboundClear discards all audio buffered but not yet played on the stream.
// Sent on barge-in so the caller is not talked over.
type outboundClear struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}

// outboundMark requests an acknowledgement once playback reaches this point.
type outboundMark struct {
	Event     string              `json:"event"`
	StreamSID string              `json:"streamSid"`
	Mark      outboundMarkPayload `json:"mark"`
}

type outboundMarkPayload struct {
	Name string `json:"name"`
}
