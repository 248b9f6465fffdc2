package lock

import (
	"context"
	"fmt"
	"sync"
)

// KeyedMutex is an in-process Locker with one mutex per name.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int // holders plus waiters
}

var _ Locker = (*KeyedMutex)(nil)

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot)}
}

// Lock acquires the mutex for name, giving up when ctx is done.
func (m *KeyedMutex) Lock(ctx context.Context, name string) (Unlock, error) {
	m.mu.Lock()
	s, ok := m.slots[name]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		m.slots[name] = s
	}
	s.refs++
	m.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(name, s)
		return nil, fmt.Errorf("failed to acquire lock %s: %w", name, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			m.release(name, s)
		})
	}, nil
}

func (m *KeyedMutex) release(name string, s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(m.slots, name)
	}
}
