// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_agent_elevenlabs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/receptionist/pkg/commons"
)

func TestSignedURL(t *testing.T) {
	logger, _ := commons.NewApplicationLogger()

	var gotHeader, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("xi-api-key")
		gotAgent = r.URL.Query().Get("agent_id")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"signed_url": "wss://agent.example/session?token=abc",
		})
	}))
	defer srv.Close()

	n := NewNegotiator(logger, "sk-test", WithBaseURL(srv.URL))
	url, err := n.SignedURL(context.Background(), "agent_123")
	require.NoError(t, err)

	assert.Equal(t, "wss://agent.example/session?token=abc", url)
	assert.Equal(t, "sk-test", gotHeader, "api key travels in the header, never the url")
	assert.Equal(t, "agent_123", gotAgent)
}

func TestSignedURL_ProviderRejects(t *testing.T) {
	logger, _ := commons.NewApplicationLogger()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	n := NewNegotiator(logger, "sk-bad", WithBaseURL(srv.URL))
	_, err := n.SignedURL(context.Background(), "agent_123")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestSignedURL_EmptyURL(t *testing.T) {
	logger, _ := commons.NewApplicationLogger()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	n := NewNegotiator(logger, "sk-test", WithBaseURL(srv.URL))
	_, err := n.SignedURL(context.Background(), "agent_123")
	assert.Error(t, err)
}

func TestSignedURL_Unreachable(t *testing.T) {
	logger, _ := commons.NewApplicationLogger()

	n := NewNegotiator(logger, "sk-test", WithBaseURL("http://127.0.0.1:1"))
	_, err := n.SignedURL(context.Background(), "agent_123")
	assert.Error(t, err)
}
