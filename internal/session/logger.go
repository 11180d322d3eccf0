package session

import (
	"context"
	"sync"
)

// WarnFunc reports a failed write.
type WarnFunc func(format string, args ...any)

// LoggingStore wraps a Store so that a failed write is reported once per
// operation and otherwise passed through. Saving a turn is best effort: the
// chat command ignores these errors and carries on. Reads are not wrapped.
type LoggingStore struct {
	Store
	warn WarnFunc

	mu     sync.Mutex
	warned map[string]bool
}

// NewLoggingStore wraps store, reporting failures through warn.
func NewLoggingStore(store Store, warn WarnFunc) *LoggingStore {
	return &LoggingStore{Store: store, warn: warn, warned: make(map[string]bool)}
}

// report passes err through, warning the first time op fails.
func (s *LoggingStore) report(op string, err error) error {
	if err == nil || s.warn == nil {
		return err
	}
	s.mu.Lock()
	first := !s.warned[op]
	s.warned[op] = true
	s.mu.Unlock()
	if first {
		s.warn("saving conversation (%s) failed: %v", op, err)
	}
	return err
}

func (s *LoggingStore) Create(ctx context.Context, sess *Session) error {
	return s.report("create", s.Store.Create(ctx, sess))
}

func (s *LoggingStore) Update(ctx context.Context, sess *Session) error {
	return s.report("update", s.Store.Update(ctx, sess))
}

func (s *LoggingStore) AddMessage(ctx context.Context, sessionID string, msg *Message) error {
	return s.report("add message", s.Store.AddMessage(ctx, sessionID, msg))
}

func (s *LoggingStore) UpdateStatus(ctx context.Context, id string, status SessionStatus) error {
	return s.report("status", s.Store.UpdateStatus(ctx, id, status))
}

func (s *LoggingStore) IncrementUserTurns(ctx context.Context, id string) error {
	return s.report("turn count", s.Store.IncrementUserTurns(ctx, id))
}

func (s *LoggingStore) SetCurrent(ctx context.Context, sessionID string) error {
	return s.report("current", s.Store.SetCurrent(ctx, sessionID))
}
