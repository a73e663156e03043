package auth

import (
	"context"
	"sync"

	"github.com/vidtube/backend/internal/tokens"
)

// NewInMemoryLedger returns a Ledger backed by an in-memory map.
func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{entries: make(map[string]string)}
}

// InMemoryLedger implements Ledger for tests and local development.
type InMemoryLedger struct {
	mu      sync.Mutex
	entries map[string]string
}

// Record stores the fingerprint of token for the principal.
func (l *InMemoryLedger) Record(_ context.Context, principalID, token string) error {
	l.mu.Lock()
	l.entries[principalID] = tokens.Fingerprint(token)
	l.mu.Unlock()
	return nil
}

// Current returns the stored fingerprint.
func (l *InMemoryLedger) Current(_ context.Context, principalID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fp, ok := l.entries[principalID]
	if !ok {
		return "", ErrNoSession
	}
	return fp, nil
}

// Rotate swaps presented for next under the ledger lock.
func (l *InMemoryLedger) Rotate(_ context.Context, principalID, presented, next string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	fp, ok := l.entries[principalID]
	if !ok {
		return ErrNoSession
	}
	if fp != tokens.Fingerprint(presented) {
		return ErrTokenMismatch
	}
	l.entries[principalID] = tokens.Fingerprint(next)
	return nil
}

// Clear removes the principal's entry.
func (l *InMemoryLedger) Clear(_ context.Context, principalID string) error {
	l.mu.Lock()
	delete(l.entries, principalID)
	l.mu.Unlock()
	return nil
}

// Has reports whether the principal has a live session. Useful for tests.
func (l *InMemoryLedger) Has(principalID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[principalID]
	return ok
}
