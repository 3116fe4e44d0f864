// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_bridge

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_agent_elevenlabs "github.com/rapidaai/receptionist/internal/agent/elevenlabs"
	internal_audio "github.com/rapidaai/receptionist/internal/audio"
	internal_callcontext "github.com/rapidaai/receptionist/internal/callcontext"
	internal_telephony_twilio "github.com/rapidaai/receptionist/internal/telephony/twilio"
	internal_tenant "github.com/rapidaai/receptionist/internal/tenant"
	"github.com/rapidaai/receptionist/pkg/commons"
)

// ============================================================================
// Fakes
// ============================================================================

var errLegClosed = errors.New("leg closed")

// fakeTelephony scripts the caller side of a session and records everything
// the bridge sends back, in order.
type fakeTelephony struct {
	in   chan *internal_telephony_twilio.StreamMessage
	done chan struct{}

	mu         sync.Mutex
	sent       []string // "audio:<b64>" and "clear" in arrival order
	closeCount int
}

func newFakeTelephony() *fakeTelephony {
	return &fakeTelephony{
		in:   make(chan *internal_telephony_twilio.StreamMessage, 64),
		done: make(chan struct{}),
	}
}

func (f *fakeTelephony) push(msg *internal_telephony_twilio.StreamMessage) {
	f.in <- msg
}

func (f *fakeTelephony) ReadMessage() (*internal_telephony_twilio.StreamMessage, error) {
	select {
	case msg := <-f.in:
		return msg, nil
	case <-f.done:
		return nil, errLegClosed
	}
}

func (f *fakeTelephony) StreamSID() string { return "MZ123" }

func (f *fakeTelephony) SendAudio(ulaw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, "audio:"+base64.StdEncoding.EncodeToString(ulaw))
	return nil
}

func (f *fakeTelephony) SendClear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, "clear")
	return nil
}

func (f *fakeTelephony) Close() error {
	f.mu.Lock()
	f.closeCount++
	first := f.closeCount == 1
	f.mu.Unlock()
	if first {
		close(f.done)
	}
	return nil
}

func (f *fakeTelephony) sentEvents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTelephony) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCount
}

// fakeAgent scripts the voice agent side.
type fakeAgent struct {
	in   chan *internal_agent_elevenlabs.Event
	done chan struct{}

	mu         sync.Mutex
	inits      []*internal_agent_elevenlabs.InitiationClientData
	chunks     [][]byte
	pongs      []int
	closeCount int
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{
		in:   make(chan *internal_agent_elevenlabs.Event, 64),
		done: make(chan struct{}),
	}
}

func (f *fakeAgent) push(event *internal_agent_elevenlabs.Event) {
	f.in <- event
}

func (f *fakeAgent) SendInitiation(init *internal_agent_elevenlabs.InitiationClientData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits = append(f.inits, init)
	return nil
}

func (f *fakeAgent) SendAudioChunk(pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	f.chunks = append(f.chunks, buf)
	return nil
}

func (f *fakeAgent) SendPong(eventID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pongs = append(f.pongs, eventID)
	return nil
}

func (f *fakeAgent) ReadEvent() (*internal_agent_elevenlabs.Event, error) {
	select {
	case event := <-f.in:
		return event, nil
	case <-f.done:
		return nil, errLegClosed
	}
}

func (f *fakeAgent) Close() error {
	f.mu.Lock()
	f.closeCount++
	first := f.closeCount == 1
	f.mu.Unlock()
	if first {
		close(f.done)
	}
	return nil
}

func (f *fakeAgent) receivedChunks() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.chunks))
	copy(out, f.chunks)
	return out
}

func (f *fakeAgent) initiations() []*internal_agent_elevenlabs.InitiationClientData {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*internal_agent_elevenlabs.InitiationClientData, len(f.inits))
	copy(out, f.inits)
	return out
}

func (f *fakeAgent) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCount
}

// fakeDialer hands out a scripted agent leg, optionally failing or blocking
// until released so tests control when negotiation completes.
type fakeDialer struct {
	agent   *fakeAgent
	err     error
	release chan struct{}

	mu    sync.Mutex
	dials int
}

func (f *fakeDialer) Dial(ctx context.Context, agentID string) (AgentLeg, error) {
	f.mu.Lock()
	f.dials++
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.agent, nil
}

// fakeResolver returns one fixed tenant.
type fakeResolver struct{ tenant *internal_tenant.Tenant }

func (f *fakeResolver) Resolve(string) (*internal_tenant.Tenant, bool) {
	return f.tenant, true
}

// fakeMemory is an in-process caller identity memory.
type fakeMemory struct {
	mu    sync.Mutex
	names map[string]string
}

func (f *fakeMemory) Remember(ctx context.Context, phone, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.names[phone]; ok {
		return false, nil
	}
	f.names[phone] = name
	return true, nil
}

func (f *fakeMemory) Lookup(ctx context.Context, phone string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.names[phone]
	return name, ok, nil
}

// ============================================================================
// Harness
// ============================================================================

func bridgeTenant() *internal_tenant.Tenant {
	return &internal_tenant.Tenant{
		Id:       "hdg",
		Name:     "HDG Limited",
		AgentId:  "agent_abc",
		Timezone: "Pacific/Auckland",
		WorkDays: []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"},
		OpensAt:  "08:30",
		ClosesAt: "17:00",
		Scripts: internal_tenant.Scripts{
			InHoursRecognized:      internal_tenant.Script{Greeting: "ihr-g", Prompt: "ihr-p"},
			InHoursUnrecognized:    internal_tenant.Script{Greeting: "ihu-g", Prompt: "ihu-p"},
			AfterHoursRecognized:   internal_tenant.Script{Greeting: "ahr-g", Prompt: "ahr-p"},
			AfterHoursUnrecognized: internal_tenant.Script{Greeting: "ahu-g", Prompt: "ahu-p"},
		},
	}
}

type harness struct {
	session   *Session
	telephony *fakeTelephony
	agent     *fakeAgent
	dialer    *fakeDialer
	memory    *fakeMemory
	contexts  internal_callcontext.Store
	runDone   chan struct{}
}

func newHarness(t *testing.T, opts ...func(*harness)) *harness {
	t.Helper()
	logger, _ := commons.NewApplicationLogger()

	h := &harness{
		telephony: newFakeTelephony(),
		agent:     newFakeAgent(),
		memory:    &fakeMemory{names: map[string]string{}},
		contexts:  internal_callcontext.NewStore(logger, time.Hour, time.Hour),
		runDone:   make(chan struct{}),
	}
	h.dialer = &fakeDialer{agent: h.agent}
	for _, opt := range opts {
		opt(h)
	}

	// A weekday morning in the tenant's zone so the in-hours scripts apply.
	loc, err := time.LoadLocation("Pacific/Auckland")
	require.NoError(t, err)
	now := time.Date(2025, 11, 18, 10, 0, 0, 0, loc)

	h.session = NewSession(logger, h.telephony, h.dialer, &fakeResolver{tenant: bridgeTenant()},
		h.memory, h.contexts, WithClock(func() time.Time { return now }))

	go func() {
		h.session.Run(context.Background())
		close(h.runDone)
	}()
	t.Cleanup(func() {
		_ = h.telephony.Close()
		h.waitDone(t)
		h.contexts.Close()
	})
	return h
}

func (h *harness) waitDone(t *testing.T) {
	t.Helper()
	select {
	case <-h.runDone:
	case <-time.After(3 * time.Second):
		t.Fatal("session did not shut down")
	}
}

func startMsg(callSID string) *internal_telephony_twilio.StreamMessage {
	return &internal_telephony_twilio.StreamMessage{
		Event:     internal_telephony_twilio.EventStart,
		StreamSID: "MZ123",
		Start: &internal_telephony_twilio.StartPayload{
			StreamSID: "MZ123",
			CallSID:   callSID,
			CustomParameters: map[string]string{
				"callerNumber": "+6421000000",
				"callerName":   "",
				"tenantId":     "hdg",
			},
		},
	}
}

func mediaMsg(ulaw []byte) *internal_telephony_twilio.StreamMessage {
	return &internal_telephony_twilio.StreamMessage{
		Event: internal_telephony_twilio.EventMedia,
		Media: &internal_telephony_twilio.MediaPayload{
			Payload: base64.StdEncoding.EncodeToString(ulaw),
		},
	}
}

func agentReadyEvent() *internal_agent_elevenlabs.Event {
	return &internal_agent_elevenlabs.Event{
		Type: internal_agent_elevenlabs.EventInitiationMetadata,
		InitiationMetadata: &internal_agent_elevenlabs.InitiationMetadataEvent{
			ConversationId: "conv_1",
		},
	}
}

func agentAudioEvent(pcm []byte) *internal_agent_elevenlabs.Event {
	return &internal_agent_elevenlabs.Event{
		Type: internal_agent_elevenlabs.EventAudio,
		Audio: &internal_agent_elevenlabs.AudioEvent{
			AudioBase64: base64.StdEncoding.EncodeToString(pcm),
		},
	}
}

// waitFor polls until the condition holds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ============================================================================
// Example scenario: queued frames flush in order, agent audio reaches the
// caller tagged with the original stream
// ============================================================================

func TestSession_ExampleScenario(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, func(h *harness) {
		h.dialer.release = release
	})

	h.telephony.push(startMsg("CA123"))

	// Three frames arrive while negotiation is still in flight.
	frames := [][]byte{{0x00, 0x01}, {0x10, 0x11}, {0x20, 0x21}}
	for _, f := range frames {
		h.telephony.push(mediaMsg(f))
	}
	waitFor(t, "frames queued", func() bool {
		h.session.mu.Lock()
		defer h.session.mu.Unlock()
		return len(h.session.pending) == 3
	})
	assert.Empty(t, h.agent.receivedChunks(), "nothing reaches the agent before ready")

	close(release)
	h.agent.push(agentReadyEvent())
	waitFor(t, "queued frames flushed", func() bool {
		return len(h.agent.receivedChunks()) == 3
	})

	// Init precedes all audio and is sent exactly once.
	inits := h.agent.initiations()
	require.Len(t, inits, 1)
	assert.Equal(t, "ihu-g", inits[0].ConversationConfigOverride.Agent.FirstMessage)
	assert.Equal(t, "CA123", inits[0].DynamicVariables["call_sid"])

	// Queued frames arrive decoded, in submission order.
	got := h.agent.receivedChunks()
	for i, f := range frames {
		assert.Equal(t, internal_audio.DecodeUlaw(f), got[i], "frame %d", i)
	}

	// One agent audio event becomes one telephony media frame.
	pcm := internal_audio.DecodeUlaw([]byte{0x30, 0x31})
	h.agent.push(agentAudioEvent(pcm))
	waitFor(t, "agent audio relayed", func() bool {
		return len(h.telephony.sentEvents()) == 1
	})
	encoded, err := internal_audio.EncodeUlaw(pcm)
	require.NoError(t, err)
	assert.Equal(t, "audio:"+base64.StdEncoding.EncodeToString(encoded), h.telephony.sentEvents()[0])

	assert.Equal(t, StateStreaming, h.session.State())
	assert.Equal(t, "CA123", h.session.CallSID())
}

// ============================================================================
// Ordering under queuing
// ============================================================================

func TestSession_OrderingAcrossFlush(t *testing.T) {
	h := newHarness(t)

	h.telephony.push(startMsg("CA123"))
	waitFor(t, "dial", func() bool {
		h.dialer.mu.Lock()
		defer h.dialer.mu.Unlock()
		return h.dialer.dials == 1
	})

	var want [][]byte
	push := func(b byte) {
		frame := []byte{b}
		want = append(want, internal_audio.DecodeUlaw(frame))
		h.telephony.push(mediaMsg(frame))
	}

	for i := byte(0); i < 5; i++ {
		push(i)
	}
	waitFor(t, "frames queued", func() bool {
		h.session.mu.Lock()
		defer h.session.mu.Unlock()
		return len(h.session.pending) == 5
	})

	h.agent.push(agentReadyEvent())
	for i := byte(5); i < 10; i++ {
		push(i)
	}

	waitFor(t, "all frames relayed", func() bool {
		return len(h.agent.receivedChunks()) == 10
	})
	assert.Equal(t, want, h.agent.receivedChunks(), "no reordering, duplication or loss")
}

// ============================================================================
// Barge-in
// ============================================================================

func TestSession_BargeIn(t *testing.T) {
	h := newHarness(t)

	h.telephony.push(startMsg("CA123"))
	h.agent.push(agentReadyEvent())

	pcm := internal_audio.DecodeUlaw([]byte{0x40, 0x41})
	h.agent.push(agentAudioEvent(pcm))
	h.agent.push(&internal_agent_elevenlabs.Event{Type: internal_agent_elevenlabs.EventInterruption})
	h.agent.push(agentAudioEvent(pcm))

	waitFor(t, "post-interruption audio", func() bool {
		return len(h.telephony.sentEvents()) == 3
	})

	events := h.telephony.sentEvents()
	assert.Equal(t, "clear", events[1], "exactly one clear, no audio between interruption and clear")
	assert.NotEqual(t, "clear", events[0])
	assert.NotEqual(t, "clear", events[2])
}

// ============================================================================
// Keep-alive
// ============================================================================

func TestSession_PingPong(t *testing.T) {
	h := newHarness(t)

	h.telephony.push(startMsg("CA123"))
	h.agent.push(agentReadyEvent())
	h.agent.push(&internal_agent_elevenlabs.Event{
		Type: internal_agent_elevenlabs.EventPing,
		Ping: &internal_agent_elevenlabs.PingEvent{EventId: 77},
	})

	waitFor(t, "pong", func() bool {
		h.agent.mu.Lock()
		defer h.agent.mu.Unlock()
		return len(h.agent.pongs) == 1
	})
	h.agent.mu.Lock()
	defer h.agent.mu.Unlock()
	assert.Equal(t, []int{77}, h.agent.pongs, "pong echoes the ping's event id")
}

// ============================================================================
// Teardown
// ============================================================================

func TestSession_StopTearsDownBothLegs(t *testing.T) {
	h := newHarness(t)

	h.telephony.push(startMsg("CA123"))
	h.agent.push(agentReadyEvent())
	waitFor(t, "streaming", func() bool { return h.session.State() == StateStreaming })

	h.telephony.push(&internal_telephony_twilio.StreamMessage{
		Event: internal_telephony_twilio.EventStop,
		Stop:  &internal_telephony_twilio.StopPayload{CallSID: "CA123"},
	})
	h.waitDone(t)

	assert.Equal(t, StateClosed, h.session.State())
	assert.Equal(t, 1, h.telephony.closes())
	assert.Equal(t, 1, h.agent.closes())
}

func TestSession_TeardownIdempotent(t *testing.T) {
	h := newHarness(t)

	h.telephony.push(startMsg("CA123"))
	h.agent.push(agentReadyEvent())
	waitFor(t, "streaming", func() bool { return h.session.State() == StateStreaming })

	// Both legs drop at once; each still closes exactly once.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.session.shutdown()
		}()
	}
	wg.Wait()
	h.waitDone(t)

	assert.Equal(t, 1, h.telephony.closes())
	assert.Equal(t, 1, h.agent.closes())
	assert.Equal(t, StateClosed, h.session.State())
}

func TestSession_AgentDisconnectClosesTelephony(t *testing.T) {
	h := newHarness(t)

	h.telephony.push(startMsg("CA123"))
	h.agent.push(agentReadyEvent())
	waitFor(t, "streaming", func() bool { return h.session.State() == StateStreaming })

	_ = h.agent.Close()
	h.waitDone(t)

	assert.Equal(t, 1, h.telephony.closes())
}

// ============================================================================
// Negotiation failure
// ============================================================================

func TestSession_NegotiationFailureIsCallFatal(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.dialer.err = errors.New("signed url rejected")
	})

	h.telephony.push(startMsg("CA123"))
	h.waitDone(t)

	assert.Equal(t, StateClosed, h.session.State())
	assert.Equal(t, 1, h.telephony.closes())
	assert.Equal(t, 0, h.agent.closes(), "no agent leg was ever opened")
}

// ============================================================================
// Start handling
// ============================================================================

func TestSession_DuplicateStartIgnored(t *testing.T) {
	h := newHarness(t)

	h.telephony.push(startMsg("CA123"))
	h.telephony.push(startMsg("CA999"))
	h.agent.push(agentReadyEvent())
	waitFor(t, "streaming", func() bool { return h.session.State() == StateStreaming })

	h.dialer.mu.Lock()
	dials := h.dialer.dials
	h.dialer.mu.Unlock()
	assert.Equal(t, 1, dials, "second start does not open a second agent leg")
	assert.Equal(t, "CA123", h.session.CallSID())
}

func TestSession_RegistersCallContext(t *testing.T) {
	h := newHarness(t)

	h.telephony.push(startMsg("CA123"))
	waitFor(t, "context stored", func() bool {
		_, ok := h.contexts.Get("CA123")
		return ok
	})

	cc, ok := h.contexts.Get("CA123")
	require.True(t, ok)
	assert.Equal(t, "+6421000000", cc.CallerNumber)
	assert.Equal(t, "MZ123", cc.StreamSID)
	assert.Equal(t, "hdg", cc.TenantID)
}

func TestSession_RecognizedCallerGetsRecognizedScript(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.memory.names["+6421000000"] = "Alice"
	})

	h.telephony.push(startMsg("CA123"))
	h.agent.push(agentReadyEvent())
	waitFor(t, "init sent", func() bool { return len(h.agent.initiations()) == 1 })

	init := h.agent.initiations()[0]
	assert.Equal(t, "ihr-g", init.ConversationConfigOverride.Agent.FirstMessage)
	assert.Equal(t, "Alice", init.DynamicVariables["caller_name"])
}

// ============================================================================
// Robustness
// ============================================================================

func TestSession_UnknownAgentEventKeepsSessionAlive(t *testing.T) {
	h := newHarness(t)

	h.telephony.push(startMsg("CA123"))
	h.agent.push(agentReadyEvent())
	h.agent.push(&internal_agent_elevenlabs.Event{Type: "vad_score"})

	pcm := internal_audio.DecodeUlaw([]byte{0x50, 0x51})
	h.agent.push(agentAudioEvent(pcm))
	waitFor(t, "audio after unknown event", func() bool {
		return len(h.telephony.sentEvents()) == 1
	})
}

func TestSession_MisalignedAgentAudioDropped(t *testing.T) {
	h := newHarness(t)

	h.telephony.push(startMsg("CA123"))
	h.agent.push(agentReadyEvent())

	// Three bytes cannot decimate to µ-law; the frame is dropped, not fatal.
	h.agent.push(agentAudioEvent([]byte{0x01, 0x02, 0x03}))
	good := internal_audio.DecodeUlaw([]byte{0x60, 0x61})
	h.agent.push(agentAudioEvent(good))

	waitFor(t, "good frame relayed", func() bool {
		return len(h.telephony.sentEvents()) == 1
	})
	assert.Equal(t, StateStreaming, h.session.State())
}
