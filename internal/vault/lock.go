package vault

import (
	"context"
	"sync"
)

// lockTable serializes work per account. Acquire waits for the account's slot
// or for ctx to end. A slot lives only while someone holds or waits for it.
type lockTable struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{slots: make(map[string]*lockSlot)}
}

func (t *lockTable) ref(key string) *lockSlot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[key]
	if !ok {
		s = &lockSlot{ch: make(chan struct{}, 1)}
		t.slots[key] = s
	}
	s.refs++
	return s
}

func (t *lockTable) unref(key string, s *lockSlot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(t.slots, key)
	}
}

func (t *lockTable) acquire(ctx context.Context, key string) (func(), error) {
	s := t.ref(key)
	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		t.unref(key, s)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			t.unref(key, s)
		})
	}, nil
}
