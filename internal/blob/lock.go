package blob

import (
	"context"
	"sync"
)

// Locker serializes work on a key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// KeyedMutex is an in-process Locker holding one mutex per active key.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex returns an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free or ctx is done.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			k.release(key, l)
		})
	}, nil
}

func (k *KeyedMutex) release(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

func (k *KeyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

var _ Store = (*LockedStore)(nil)

// LockedStore serializes Append per (entryID, fileID) through a Locker.
type LockedStore struct {
	Store
	locker Locker
}

// WithLocker wraps store so concurrent appends to one file never interleave.
func WithLocker(store Store, locker Locker) *LockedStore {
	return &LockedStore{Store: store, locker: locker}
}

func (s *LockedStore) Append(ctx context.Context, entryID, fileID string, data []byte) error {
	if err := validateKey(entryID, fileID); err != nil {
		return err
	}
	unlock, err := s.locker.Lock(ctx, entryID+"/"+fileID)
	if err != nil {
		return err
	}
	defer unlock()
	return s.Store.Append(ctx, entryID, fileID, data)
}
