// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_callcontext

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rapidaai/receptionist/pkg/commons"
)

// DefaultRetention bounds how long a call context outlives its call. Webhook
// and event callbacks from the telephony provider and the agent backend are
// asynchronous and can arrive well after the media stream has disconnected, so
// entries are kept past teardown and removed only by the age sweep. The sweep
// is a correctness safety valve, not a cache: an expired entry must never be
// served for a new call.
const DefaultRetention = 2 * time.Hour

// DefaultSweepInterval is how often the background sweep runs.
const DefaultSweepInterval = 10 * time.Minute

// Store maps call identifiers to call contexts. Bridge sessions write,
// webhook handlers read; both race legitimately and last write wins.
type Store interface {
	// Put stores a call context, overwriting any previous entry for the same
	// call sid. When the call sid is absent a key is synthesized. Returns the
	// key under which the context is stored.
	Put(cc *CallContext) string

	// Get retrieves a call context by call sid.
	Get(callSID string) (*CallContext, bool)

	// Latest returns the most recently created live entry. This backs the
	// fallback for webhooks that arrive with a null call identifier; it is
	// best-effort only and ambiguous when multiple calls are live.
	Latest() (*CallContext, bool)

	// Delete removes a call context. Normal call flows do not delete; the
	// age sweep is the intended cleanup path.
	Delete(callSID string)

	// ExpireOlderThan removes every entry created more than age ago and
	// returns how many were removed. Exposed so the sweep is testable.
	ExpireOlderThan(age time.Duration) int

	// Len returns the number of live entries.
	Len() int

	// Close stops the background sweep.
	Close()
}

type memoryStore struct {
	logger commons.Logger

	mu      sync.RWMutex
	entries map[string]*CallContext

	retention time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewStore creates a call context store whose background sweep removes
// entries older than retention, every interval.
func NewStore(logger commons.Logger, retention, interval time.Duration) Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	s := &memoryStore{
		logger:    logger,
		entries:   make(map[string]*CallContext),
		retention: retention,
		stopCh:    make(chan struct{}),
	}
	go s.sweepLoop(interval)
	return s
}

func (s *memoryStore) Put(cc *CallContext) string {
	key := cc.CallSID
	if key == "" {
		key = "bridge-" + uuid.New().String()
	}
	if cc.CreatedAt.IsZero() {
		cc.CreatedAt = time.Now()
	}

	s.mu.Lock()
	s.entries[key] = cc
	s.mu.Unlock()

	s.logger.Debugw("saved call context",
		"call_sid", key, "tenant", cc.TenantID, "caller", cc.CallerNumber)
	return key
}

func (s *memoryStore) Get(callSID string) (*CallContext, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cc, ok := s.entries[callSID]
	return cc, ok
}

func (s *memoryStore) Latest() (*CallContext, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *CallContext
	for _, cc := range s.entries {
		if latest == nil || cc.CreatedAt.After(latest.CreatedAt) {
			latest = cc
		}
	}
	return latest, latest != nil
}

func (s *memoryStore) Delete(callSID string) {
	s.mu.Lock()
	delete(s.entries, callSID)
	s.mu.Unlock()
}

func (s *memoryStore) ExpireOlderThan(age time.Duration) int {
	cutoff := time.Now().Add(-age)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, cc := range s.entries {
		if cc.CreatedAt.Before(cutoff) {
			delete(s.entries, key)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Infof("expired %d stale call contexts", removed)
	}
	return removed
}

func (s *memoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *memoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *memoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.ExpireOlderThan(s.retention)
		case <-s.stopCh:
			return
		}
	}
}
