// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_agent_elevenlabs

// The conversational-voice websocket protocol is an external wire contract.
// Event kinds form a closed set decoded at the boundary; unknown kinds are
// dropped and logged, never interpreted.

// EventType identifies an inbound agent event.
type EventType string

const (
	// EventInitiationMetadata acknowledges session initialisation; audio may
	// only be relayed after it arrives.
	EventInitiationMetadata EventType = "conversation_initiation_metadata"
	// EventAudio carries base64 16-bit 16kHz PCM synthesized by the agent.
	EventAudio EventType = "audio"
	// EventInterruption signals barge-in: the caller started speaking and
	// buffered assistant playback must be cut off.
	EventInterruption EventType = "interruption"
	// EventPing is a keep-alive; it must be answered with a pong carrying the
	// same event id on the same connection, without delay.
	EventPing EventType = "ping"
	// EventAgentResponse carries the agent's transcript for the turn.
	EventAgentResponse EventType = "agent_response"
	// EventUserTranscript carries the recognized caller transcript.
	EventUserTranscript EventType = "user_transcript"
)

// Event is the inbound envelope. Exactly one payload field is set, matching
// the event type.
type Event struct {
	Type EventType `json:"type"`

	InitiationMetadata *InitiationMetadataEvent `json:"conversation_initiation_metadata_event,omitempty"`
	Audio              *AudioEvent              `json:"audio_event,omitempty"`
	Ping               *PingEvent               `json:"ping_event,omitempty"`
	AgentResponse      *AgentResponseEvent      `json:"agent_response_event,omitempty"`
	UserTranscript     *UserTranscriptEvent     `json:"user_transcription_event,omitempty"`
}

// InitiationMetadataEvent carries the session identifiers assigned by the
// provider. ConversationId joins the streaming session to post-call
// transcript retrieval.
type InitiationMetadataEvent struct {
	ConversationId   string `json:"conversation_id"`
	AgentOutputAudio string `json:"agent_output_audio_format,omitempty"`
	UserInputAudio   string `json:"user_input_audio_format,omitempty"`
}

// AudioEvent carries one chunk of agent speech.
type AudioEvent struct {
	AudioBase64 string `json:"audio_base_64"`
	EventId     int    `json:"event_id"`
}

// PingEvent carries the correlation token a pong must echo.
type PingEvent struct {
	EventId int `json:"event_id"`
	PingMs  int `json:"ping_ms,omitempty"`
}

// AgentResponseEvent carries the agent's spoken text for operator logs.
type AgentResponseEvent struct {
	AgentResponse string `json:"agent_response"`
}

// UserTranscriptEvent carries the caller's recognized speech.
type UserTranscriptEvent struct {
	UserTranscript string `json:"user_transcript"`
}

// ============================================================================
// Outbound messages
// ============================================================================

// InitiationClientData is the single session-initialisation message. It is
// sent exactly once, immediately after the connection opens and before any
// audio in either direction.
type InitiationClientData struct {
	Type                       string            `json:"type"`
	ConversationConfigOverride *ConfigOverride   `json:"conversation_config_override,omitempty"`
	DynamicVariables           map[string]string `json:"dynamic_variables,omitempty"`
}

// ConfigOverride overrides agent behaviour for this session.
type ConfigOverride struct {
	Agent *AgentOverride `json:"agent,omitempty"`
}

// AgentOverride selects the greeting and behavioural script.
type AgentOverride struct {
	Prompt       *PromptOverride `json:"prompt,omitempty"`
	FirstMessage string          `json:"first_message,omitempty"`
}

// PromptOverride replaces the agent's system prompt.
type PromptOverride struct {
	Prompt string `json:"prompt"`
}

// NewInitiationClientData builds the init message from the selected greeting
// and prompt plus caller identity fields for downstream tool calls.
func NewInitiationClientData(greeting, prompt string, dynamicVariables map[string]string) *InitiationClientData {
	return &InitiationClientData{
		Type: "conversation_initiation_client_data",
		ConversationConfigOverride: &ConfigOverride{
			Agent: &AgentOverride{
				Prompt:       &PromptOverride{Prompt: prompt},
				FirstMessage: greeting,
			},
		},
		DynamicVariables: dynamicVariables,
	}
}

// userAudioChunk carries one chunk of caller audio, base64 16-bit 16kHz PCM.
type userAudioChunk struct {
	UserAudioChunk string `json:"user_audio_chunk"`
}

// pong answers a ping with its correlation token.
type pong struct {
	Type    string `json:"type"`
	EventId int    `json:"event_id"`
}
