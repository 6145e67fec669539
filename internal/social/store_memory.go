package social

import (
	"context"
	"sync"
	"time"
)

// MemoryStateStore es el gemelo in-process del RedisStateStore, con las
// mismas semánticas atómicas vía mutex. Para dev y tests; no sirve
// multi-instancia.
type MemoryStateStore struct {
	mu   sync.Mutex
	data map[string]memRecord
}

type memRecord struct {
	rec       Record
	expiresAt time.Time
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{data: make(map[string]memRecord)}
}

func (s *MemoryStateStore) expired(e memRecord) bool {
	return !e.expiresAt.IsZero() && time.Now().After(e.expiresAt)
}

func (s *MemoryStateStore) Create(ctx context.Context, token string, rec Record, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.data[token]; ok && !s.expired(e) {
		return false, nil
	}
	e := memRecord{rec: rec}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.data[token] = e
	return true, nil
}

func (s *MemoryStateStore) MarkInUse(ctx context.Context, token string, now int64, window time.Duration) (Transition, Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[token]
	if !ok || s.expired(e) {
		delete(s.data, token)
		return TransitionNotFound, Record{}, nil
	}
	switch e.rec.Status {
	case StatusPending:
		e.rec.Status = StatusInUse
		e.rec.InUseAt = now
		s.data[token] = e
		return TransitionOK, e.rec, nil
	case StatusInUse:
		if now-e.rec.InUseAt <= int64(window.Seconds()) {
			return TransitionRetry, e.rec, nil
		}
		return TransitionWindowExpired, Record{}, nil
	default:
		return TransitionTerminal, Record{}, nil
	}
}

func (s *MemoryStateStore) Delete(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[token]
	if !ok || s.expired(e) {
		delete(s.data, token)
		return false, nil
	}
	delete(s.data, token)
	return true, nil
}

func (s *MemoryStateStore) Get(ctx context.Context, token string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[token]
	if !ok || s.expired(e) {
		return Record{}, false, nil
	}
	return e.rec, true, nil
}
