// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_agent_elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rapidaai/receptionist/pkg/commons"
)

const (
	dialTimeout    = 10 * time.Second
	writeTimeout   = 5 * time.Second
	maxMessageSize = 4 << 20
)

// ErrConnectionClosed is returned by writes after Close.
var ErrConnectionClosed = errors.New("agent connection closed")

// Connection is one websocket leg to the voice agent. Writes from concurrent
// goroutines are serialized by a mutex; reads happen from a single loop owned
// by the caller.
type Connection struct {
	logger commons.Logger
	ws     *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// Dial opens the agent websocket at the negotiated signed URL. No messages
// are sent; the caller sends the initialisation message first.
func Dial(ctx context.Context, logger commons.Logger, signedURL string) (*Connection, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	ws, _, err := dialer.DialContext(ctx, signedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial agent websocket: %w", err)
	}
	ws.SetReadLimit(maxMessageSize)
	return &Connection{
		logger: logger,
		ws:     ws,
		done:   make(chan struct{}),
	}, nil
}

// SendInitiation sends the one-time session initialisation message. Must be
// called before any audio is relayed.
func (c *Connection) SendInitiation(init *InitiationClientData) error {
	return c.writeJSON(init)
}

// SendAudioChunk relays one chunk of caller PCM to the agent, base64 encoded.
func (c *Connection) SendAudioChunk(pcm []byte) error {
	return c.writeJSON(&userAudioChunk{
		UserAudioChunk: base64.StdEncoding.EncodeToString(pcm),
	})
}

// SendPong answers a ping, echoing its correlation token.
func (c *Connection) SendPong(eventID int) error {
	return c.writeJSON(&pong{Type: "pong", EventId: eventID})
}

func (c *Connection) writeJSON(v any) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteJSON(v); err != nil {
		return fmt.Errorf("failed to write to agent websocket: %w", err)
	}
	return nil
}

// ReadEvent blocks for the next agent event and decodes it into the typed
// envelope. A malformed frame is logged and skipped rather than failing the
// call; a transport error ends the read loop.
func (c *Connection) ReadEvent() (*Event, error) {
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to read from agent websocket: %w", err)
		}

		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			c.logger.Warnw("dropping malformed agent event", "error", err)
			continue
		}
		if event.Type == "" {
			c.logger.Warnw("dropping agent event without type")
			continue
		}
		return &event, nil
	}
}

// Close tears the connection down. Safe to call from multiple goroutines and
// multiple times; only the first call acts.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		err = c.ws.Close()
	})
	return err
}
