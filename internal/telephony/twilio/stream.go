// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_telephony_twilio

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rapidaai/receptionist/pkg/commons"
)

const (
	writeTimeout   = 5 * time.Second
	maxMessageSize = 1 << 20
)

// ErrStreamClosed is returned by writes after Close.
var ErrStreamClosed = errors.New("media stream closed")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Stream is one server-side media stream websocket from the telephony
// provider. The stream sid is learned from the start message; outbound
// messages sent before that are rejected.
type Stream struct {
	logger commons.Logger
	ws     *websocket.Conn

	mu        sync.Mutex
	streamSID string

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// Upgrade accepts the incoming media stream websocket.
func Upgrade(logger commons.Logger, w http.ResponseWriter, r *http.Request) (*Stream, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade media stream websocket: %w", err)
	}
	ws.SetReadLimit(maxMessageSize)
	return &Stream{
		logger: logger,
		ws:     ws,
		done:   make(chan struct{}),
	}, nil
}

// ReadMessage blocks for the next provider message and decodes it into the
// typed envelope. A malformed frame is logged and skipped; a transport error
// ends the read loop. The stream sid is captured from the start message.
func (s *Stream) ReadMessage() (*StreamMessage, error) {
	for {
		_, raw, err := s.ws.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to read from media stream: %w", err)
		}

		var msg StreamMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Warnw("dropping malformed media stream message", "error", err)
			continue
		}
		if msg.Event == "" {
			s.logger.Warnw("dropping media stream message without event")
			continue
		}

		if msg.Event == EventStart && msg.Start != nil {
			s.mu.Lock()
			s.streamSID = msg.Start.StreamSID
			s.mu.Unlock()
		}
		return &msg, nil
	}
}

// StreamSID returns the stream sid learned from the start message.
func (s *Stream) StreamSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSID
}

// SendAudio plays one frame of µ-law audio to the caller.
func (s *Stream) SendAudio(ulaw []byte) error {
	sid, err := s.requireStreamSID()
	if err != nil {
		return err
	}
	return s.writeJSON(&outboundMedia{
		Event:     EventMedia,
		StreamSID: sid,
		Media:     outboundMediaPayload{Payload: base64.StdEncoding.EncodeToString(ulaw)},
	})
}

// SendClear discards buffered unplayed audio on the stream.
func (s *Stream) SendClear() error {
	sid, err := s.requireStreamSID()
	if err != nil {
		return err
	}
	return s.writeJSON(&outboundClear{Event: "clear", StreamSID: sid})
}

// SendMark requests a playback acknowledgement under the given name.
func (s *Stream) SendMark(name string) error {
	sid, err := s.requireStreamSID()
	if err != nil {
		return err
	}
	return s.writeJSON(&outboundMark{
		Event:     EventMark,
		StreamSID: sid,
		Mark:      outboundMarkPayload{Name: name},
	})
}

func (s *Stream) requireStreamSID() (string, error) {
	sid := s.StreamSID()
	if sid == "" {
		return "", errors.New("media stream has no stream sid yet")
	}
	return sid, nil
}

func (s *Stream) writeJSON(v any) error {
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.ws.WriteJSON(v); err != nil {
		return fmt.Errorf("failed to write to media stream: %w", err)
	}
	return nil
}

// Close tears the stream down. Safe to call from multiple goroutines and
// multiple times; only the first call acts.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)

		s.writeMu.Lock()
		_ = s.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = s.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()

		err = s.ws.Close()
	})
	return err
}
