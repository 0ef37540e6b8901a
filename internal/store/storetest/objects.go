// Package storetest provides an in-memory ObjectStore for tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/marksidell/dynips/internal/store"
)

type entry struct {
	body []byte
	mod  time.Time
}

// Objects is an in-memory store.ObjectStore. Errors can be injected per
// operation and key with Fail.
type Objects struct {
	mu      sync.Mutex
	entries map[string]entry
	fail    map[string]error
	Now     func() time.Time
}

func New() *Objects {
	return &Objects{
		entries: make(map[string]entry),
		fail:    make(map[string]error),
		Now:     time.Now,
	}
}

// Seed stores body under key with an explicit modification time.
func (o *Objects) Seed(key, body string, mod time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries[key] = entry{body: []byte(body), mod: mod}
}

// Fail makes op ("list", "get", "put" or "delete") on key return err.
// List failures use an empty key.
func (o *Objects) Fail(op, key string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fail[op+" "+key] = err
}

// Body returns the stored body and whether key exists.
func (o *Objects) Body(key string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entries[key]
	return string(e.body), ok
}

// Keys returns all stored keys, sorted.
func (o *Objects) Keys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make([]string, 0, len(o.entries))
	for k := range o.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (o *Objects) injected(op, key string) error {
	return o.fail[op+" "+key]
}

func (o *Objects) List(ctx context.Context) ([]store.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.injected("list", ""); err != nil {
		return nil, err
	}
	out := make([]store.Object, 0, len(o.entries))
	for k, e := range o.entries {
		out = append(out, store.Object{Key: k, Size: int64(len(e.body)), LastModified: e.mod})
	}
	return out, nil
}

func (o *Objects) Get(ctx context.Context, key string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.injected("get", key); err != nil {
		return nil, err
	}
	e, ok := o.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, key)
	}
	return append([]byte(nil), e.body...), nil
}

func (o *Objects) Put(ctx context.Context, key string, body []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.injected("put", key); err != nil {
		return err
	}
	o.entries[key] = entry{body: append([]byte(nil), body...), mod: o.Now()}
	return nil
}

func (o *Objects) Delete(ctx context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.injected("delete", key); err != nil {
		return err
	}
	delete(o.entries, key)
	return nil
}
