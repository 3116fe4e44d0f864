// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_bridge

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	internal_agent_elevenlabs "github.com/rapidaai/receptionist/internal/agent/elevenlabs"
	internal_audio "github.com/rapidaai/receptionist/internal/audio"
	internal_callcontext "github.com/rapidaai/receptionist/internal/callcontext"
	internal_callermemory "github.com/rapidaai/receptionist/internal/callermemory"
	internal_telephony_twilio "github.com/rapidaai/receptionist/internal/telephony/twilio"
	internal_tenant "github.com/rapidaai/receptionist/internal/tenant"
	"github.com/rapidaai/receptionist/pkg/commons"
	"github.com/rapidaai/receptionist/pkg/utils"
)

// teardownWait bounds how long teardown waits for the counterpart leg.
const teardownWait = 2 * time.Second

// TelephonyLeg is what a session needs from the caller side of the bridge.
// The production implementation is the provider media stream websocket.
type TelephonyLeg interface {
	ReadMessage() (*internal_telephony_twilio.StreamMessage, error)
	StreamSID() string
	SendAudio(ulaw []byte) error
	SendClear() error
	Close() error
}

// AgentLeg is what a session needs from the voice agent side of the bridge.
type AgentLeg interface {
	SendInitiation(init *internal_agent_elevenlabs.InitiationClientData) error
	SendAudioChunk(pcm []byte) error
	SendPong(eventID int) error
	ReadEvent() (*internal_agent_elevenlabs.Event, error)
	Close() error
}

// AgentDialer opens the agent leg for a session: signed-URL negotiation plus
// the websocket dial. Failure is call-fatal and must not be retried here.
type AgentDialer interface {
	Dial(ctx context.Context, agentID string) (AgentLeg, error)
}

// Session pairs one telephony media stream with one voice agent connection
// and relays audio both ways. Each session runs on its own goroutines; the
// only cross-session state is the shared call context store.
type Session struct {
	logger   commons.Logger
	contexts internal_callcontext.Store
	tenants  internal_tenant.Resolver
	memory   internal_callermemory.Memory
	dialer   AgentDialer

	telephony TelephonyLeg
	now       func() time.Time

	mu         sync.Mutex
	state      State
	callSID    string
	agent      AgentLeg
	agentReady bool
	pending    [][]byte

	closeTelephony sync.Once
	closeAgent     sync.Once
}

// SessionOption configures a session.
type SessionOption func(*Session)

// WithClock overrides the session's time source.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}

// NewSession builds a bridge session around an accepted telephony leg. The
// agent leg is opened later, once the start message identifies the tenant.
func NewSession(
	logger commons.Logger,
	telephony TelephonyLeg,
	dialer AgentDialer,
	tenants internal_tenant.Resolver,
	memory internal_callermemory.Memory,
	contexts internal_callcontext.Store,
	opts ...SessionOption,
) *Session {
	s := &Session{
		logger:    logger,
		telephony: telephony,
		dialer:    dialer,
		tenants:   tenants,
		memory:    memory,
		contexts:  contexts,
		now:       time.Now,
		state:     StateCreated,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run drives the session until either leg ends. It always returns with both
// legs closed and never propagates a call-local failure to the caller.
func (s *Session) Run(ctx context.Context) {
	defer s.shutdown()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return s.telephonyLoop(ctx, group)
	})
	_ = group.Wait()
}

// telephonyLoop owns all reads from the telephony leg. Media frames submitted
// before the agent is ready are queued; the single-producer loop plus the
// session mutex keep arrival order intact end to end.
func (s *Session) telephonyLoop(ctx context.Context, group *errgroup.Group) error {
	// Either loop ending tears down both legs, which unblocks the other.
	defer s.shutdown()
	for {
		msg, err := s.telephony.ReadMessage()
		if err != nil {
			if s.currentState() == StateNegotiating {
				s.logger.Warnw("telephony leg ended mid-negotiation, incomplete call",
					"call", s.CallSID(), "error", err)
			}
			return nil
		}

		switch msg.Event {
		case internal_telephony_twilio.EventConnected:
			// Handshake preamble, nothing to do.

		case internal_telephony_twilio.EventStart:
			if msg.Start == nil {
				s.logger.Warnw("dropping start message without payload")
				continue
			}
			if err := s.handleStart(ctx, group, msg.Start); err != nil {
				s.logger.Errorw("failed to start bridge session",
					"call", s.CallSID(), "error", err)
				return nil
			}

		case internal_telephony_twilio.EventMedia:
			if msg.Media == nil || msg.Media.Payload == "" {
				continue
			}
			s.relayCallerAudio(msg.Media.Payload)

		case internal_telephony_twilio.EventDTMF:
			if msg.DTMF != nil {
				s.logger.Infow("caller pressed digit", "call", s.CallSID(), "digit", msg.DTMF.Digit)
			}

		case internal_telephony_twilio.EventMark:
			// Playback acknowledgement, informational only.

		case internal_telephony_twilio.EventStop:
			s.logger.Infow("telephony stream stopped", "call", s.CallSID())
			return nil

		default:
			s.logger.Warnw("dropping unknown telephony event",
				"call", s.CallSID(), "event", msg.Event)
		}
	}
}

// handleStart captures caller identity, selects the script, registers the
// call context and opens the agent leg. The agent leg is driven on its own
// goroutine so queued media keeps flowing in while negotiation runs.
func (s *Session) handleStart(ctx context.Context, group *errgroup.Group, start *internal_telephony_twilio.StartPayload) error {
	if !s.transition(StateCreated, StateNegotiating) {
		s.logger.Warnw("dropping duplicate start message", "call", s.CallSID())
		return nil
	}

	callerNumber := start.CustomParameters["callerNumber"]
	callerName := start.CustomParameters["callerName"]
	tenantID := start.CustomParameters["tenantId"]

	s.mu.Lock()
	s.callSID = start.CallSID
	s.mu.Unlock()

	tenant, _ := s.tenants.Resolve(tenantID)
	if tenant == nil {
		return fmt.Errorf("no tenant available for %q", tenantID)
	}

	recognized, callerName := s.recognizeCaller(ctx, callerNumber, callerName)
	script := internal_tenant.SelectPrompt(tenant, recognized, s.now())

	key := s.contexts.Put(&internal_callcontext.CallContext{
		CallSID:      start.CallSID,
		TenantID:     tenant.Id,
		CallerNumber: callerNumber,
		CallerName:   callerName,
		StreamSID:    start.StreamSID,
		CreatedAt:    s.now(),
	})

	s.logger.Infow("bridge session negotiating",
		"call", key, "stream", start.StreamSID, "tenant", tenant.Id,
		"caller", callerNumber, "recognized", recognized)

	init := internal_agent_elevenlabs.NewInitiationClientData(
		script.Greeting, script.Prompt, map[string]string{
			"caller_number": callerNumber,
			"caller_name":   callerName,
			"call_sid":      start.CallSID,
			"business_name": tenant.Name,
		})

	group.Go(func() error {
		s.agentLoop(ctx, tenant.AgentId, init)
		return nil
	})
	return nil
}

// recognizeCaller consults the persistent caller memory. A memory failure
// degrades to unrecognized rather than failing the call.
func (s *Session) recognizeCaller(ctx context.Context, callerNumber, callerName string) (bool, string) {
	if s.memory == nil || callerNumber == "" {
		return false, callerName
	}
	name, ok, err := s.memory.Lookup(ctx, callerNumber)
	if err != nil {
		s.logger.Warnw("caller memory lookup failed, treating as unrecognized",
			"call", s.CallSID(), "error", err)
		return false, callerName
	}
	if !ok {
		return false, callerName
	}
	return true, name
}

// agentLoop dials the agent, sends the one-time initialisation message and
// then relays agent events until the connection ends. Any failure here is
// call-fatal: the telephony leg closes and the session tears down.
func (s *Session) agentLoop(ctx context.Context, agentID string, init *internal_agent_elevenlabs.InitiationClientData) {
	agent, err := s.dialer.Dial(ctx, agentID)
	if err != nil {
		s.logger.Errorw("agent negotiation failed, closing call",
			"call", s.CallSID(), "error", err)
		s.shutdown()
		return
	}

	// The telephony leg may have dropped while the dial was in flight; a
	// session already closing must not adopt a fresh agent leg nobody will
	// tear down.
	s.mu.Lock()
	if s.state >= StateClosing {
		s.mu.Unlock()
		_ = agent.Close()
		return
	}
	s.agent = agent
	s.mu.Unlock()

	if err := agent.SendInitiation(init); err != nil {
		s.logger.Errorw("failed to initialise agent session",
			"call", s.CallSID(), "error", err)
		s.shutdown()
		return
	}

	for {
		event, err := agent.ReadEvent()
		if err != nil {
			s.logger.Infow("agent leg ended", "call", s.CallSID(), "error", err)
			s.shutdown()
			return
		}
		if !s.handleAgentEvent(agent, event) {
			s.shutdown()
			return
		}
	}
}

// handleAgentEvent processes one agent event. Returns false when the session
// must tear down.
func (s *Session) handleAgentEvent(agent AgentLeg, event *internal_agent_elevenlabs.Event) bool {
	switch event.Type {
	case internal_agent_elevenlabs.EventInitiationMetadata:
		s.markAgentReady(agent, event.InitiationMetadata)

	case internal_agent_elevenlabs.EventAudio:
		if event.Audio == nil || event.Audio.AudioBase64 == "" {
			return true
		}
		return s.relayAgentAudio(event.Audio.AudioBase64)

	case internal_agent_elevenlabs.EventInterruption:
		// Barge-in. The clear must reach telephony before any further agent
		// audio; both are handled on this single goroutine.
		s.logger.Infow("caller barge-in, clearing playback", "call", s.CallSID())
		if err := s.telephony.SendClear(); err != nil {
			s.logger.Warnw("failed to clear telephony playback",
				"call", s.CallSID(), "error", err)
			return false
		}

	case internal_agent_elevenlabs.EventPing:
		if event.Ping == nil {
			return true
		}
		if err := agent.SendPong(event.Ping.EventId); err != nil {
			s.logger.Warnw("failed to answer agent ping",
				"call", s.CallSID(), "error", err)
			return false
		}

	case internal_agent_elevenlabs.EventAgentResponse:
		if event.AgentResponse != nil {
			s.logger.Infow("agent said", "call", s.CallSID(),
				"text", event.AgentResponse.AgentResponse)
		}

	case internal_agent_elevenlabs.EventUserTranscript:
		if event.UserTranscript != nil {
			s.logger.Infow("caller said", "call", s.CallSID(),
				"text", event.UserTranscript.UserTranscript)
		}

	default:
		s.logger.Warnw("dropping unknown agent event",
			"call", s.CallSID(), "event", string(event.Type))
	}
	return true
}

// markAgentReady flushes the pending queue in arrival order and switches the
// session to passthrough. The mutex is held across the whole flush so frames
// relayed concurrently queue behind it instead of interleaving.
func (s *Session) markAgentReady(agent AgentLeg, meta *internal_agent_elevenlabs.InitiationMetadataEvent) {
	if !s.transition(StateNegotiating, StateStreaming) {
		s.logger.Warnw("dropping duplicate agent initiation ack", "call", s.CallSID())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pcm := range s.pending {
		if err := agent.SendAudioChunk(pcm); err != nil {
			s.logger.Warnw("failed to flush queued caller audio",
				"call", s.CallSID(), "error", err)
			break
		}
	}
	queued := len(s.pending)
	s.pending = nil
	s.agentReady = true

	conversation := ""
	if meta != nil {
		conversation = meta.ConversationId
	}
	s.logger.Infow("bridge session streaming",
		"call", s.callSID, "conversation", conversation, "flushed", queued)
}

// relayCallerAudio decodes one telephony frame and hands it to the agent leg,
// queueing while the agent is not yet ready.
func (s *Session) relayCallerAudio(payloadB64 string) {
	ulaw, err := base64.StdEncoding.DecodeString(payloadB64)
	if err != nil {
		s.logger.Warnw("dropping undecodable media frame",
			"call", s.CallSID(), "error", err)
		return
	}
	pcm := internal_audio.DecodeUlaw(ulaw)

	s.mu.Lock()
	if !s.agentReady {
		s.pending = append(s.pending, pcm)
		s.mu.Unlock()
		return
	}
	agent := s.agent
	s.mu.Unlock()

	if err := agent.SendAudioChunk(pcm); err != nil {
		s.logger.Warnw("failed to relay caller audio",
			"call", s.CallSID(), "error", err)
	}
}

// relayAgentAudio encodes one agent audio event back to telephony µ-law. A
// misaligned buffer is an upstream defect: the frame is dropped and logged,
// never propagated as corrupted audio.
func (s *Session) relayAgentAudio(audioB64 string) bool {
	pcm, err := base64.StdEncoding.DecodeString(audioB64)
	if err != nil {
		s.logger.Warnw("dropping undecodable agent audio",
			"call", s.CallSID(), "error", err)
		return true
	}
	ulaw, err := internal_audio.EncodeUlaw(pcm)
	if err != nil {
		s.logger.Warnw("dropping misaligned agent audio",
			"call", s.CallSID(), "error", err)
		return true
	}

	if err := s.telephony.SendAudio(ulaw); err != nil {
		s.logger.Warnw("failed to relay agent audio",
			"call", s.CallSID(), "error", err)
		return false
	}
	return true
}

// shutdown closes both legs. Safe from any goroutine and any number of times;
// each leg closes exactly once. The call context entry is left in the store
// for late webhooks and removed by the age sweep.
func (s *Session) shutdown() {
	s.setClosing()

	s.closeTelephony.Do(func() {
		if err := s.closeWithin(s.telephony.Close); err != nil {
			s.logger.Warnw("telephony leg close", "call", s.CallSID(), "error", err)
		}
	})

	s.mu.Lock()
	agent := s.agent
	s.mu.Unlock()
	if agent != nil {
		s.closeAgent.Do(func() {
			if err := s.closeWithin(agent.Close); err != nil {
				s.logger.Warnw("agent leg close", "call", s.CallSID(), "error", err)
			}
		})
	}

	if s.transition(StateClosing, StateClosed) {
		s.logger.Infow("bridge session closed", "call", s.CallSID())
	}
}

// closeWithin runs a leg close with a bounded wait.
func (s *Session) closeWithin(closeLeg func() error) error {
	done := make(chan error, 1)
	utils.Go(context.Background(), func() { done <- closeLeg() })
	select {
	case err := <-done:
		return err
	case <-time.After(teardownWait):
		return fmt.Errorf("close did not finish within %s", teardownWait)
	}
}

func (s *Session) setClosing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state < StateClosing {
		s.state = StateClosing
	}
}

// transition moves from exactly one state to its successor.
func (s *Session) transition(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

func (s *Session) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CallSID returns the call identifier captured from the start message.
func (s *Session) CallSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callSID
}

// State exposes the session state for tests and introspection.
func (s *Session) State() State {
	return s.currentState()
}
