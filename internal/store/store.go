// Package store implements the keyed record store that holds host state markers
// and user credential files.
//
// A Bucket is opened against an ObjectStore backend and takes exactly one
// listing at open time. All marker lookups are answered from that snapshot;
// writes and deletes made through the Bucket are reflected in it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/marksidell/dynips/internal/statekey"
)

// ErrNotFound is returned when a key is absent from the store.
var ErrNotFound = errors.New("store: object not found")

// Object is one listed entry.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStore is a flat keyed blob store.
type ObjectStore interface {
	List(ctx context.Context) ([]Object, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte) error
	Delete(ctx context.Context, key string) error
}

// StateFile is a listed object whose key decoded as a state marker.
type StateFile struct {
	Object
	ID statekey.Key
}

// Filter narrows StateFiles. Empty fields match everything.
type Filter struct {
	Items []string
	Exts  []statekey.Ext
}

func (f Filter) match(k statekey.Key) bool {
	return contains(f.Items, k.Item) && contains(f.Exts, k.Ext)
}

func contains[T comparable](set []T, v T) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Heartbeat is the payload of heartbeat, hold and expired markers.
type Heartbeat struct {
	IP string `json:"ip"`
}

// ErrorRecord is the payload of error and lock markers.
type ErrorRecord struct {
	Error string `json:"error"`
}

// Bucket is a snapshot view over an ObjectStore.
type Bucket struct {
	objects ObjectStore
	files   map[string]Object
	now     func() time.Time
}

// Open lists the store once and returns a Bucket over that snapshot.
func Open(ctx context.Context, objects ObjectStore) (*Bucket, error) {
	list, err := objects.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: listing: %w", err)
	}

	files := make(map[string]Object, len(list))
	for _, o := range list {
		files[o.Key] = o
	}
	return &Bucket{objects: objects, files: files, now: time.Now}, nil
}

// Has reports whether key is present in the snapshot.
func (b *Bucket) Has(key string) bool {
	_, ok := b.files[key]
	return ok
}

// Lookup returns the snapshot entry for key.
func (b *Bucket) Lookup(key string) (Object, bool) {
	o, ok := b.files[key]
	return o, ok
}

// StateFiles returns the state markers matching f, ordered by key.
func (b *Bucket) StateFiles(f Filter) []StateFile {
	var out []StateFile
	for _, o := range b.files {
		id, err := statekey.Parse(o.Key)
		if err != nil || !f.match(id) {
			continue
		}
		out = append(out, StateFile{Object: o, ID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Get reads the body of key. Keys missing from the snapshot are reported as
// ErrNotFound without a round trip.
func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	if !b.Has(key) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return b.objects.Get(ctx, key)
}

func (b *Bucket) put(ctx context.Context, key string, body []byte) error {
	if err := b.objects.Put(ctx, key, body); err != nil {
		return err
	}
	b.files[key] = Object{Key: key, Size: int64(len(body)), LastModified: b.now()}
	return nil
}

// Delete removes key from the store and the snapshot.
func (b *Bucket) Delete(ctx context.Context, key string) error {
	if err := b.objects.Delete(ctx, key); err != nil {
		return err
	}
	delete(b.files, key)
	return nil
}

// WriteStateFile writes "state/<name>.<ext>".
func (b *Bucket) WriteStateFile(ctx context.Context, name string, ext statekey.Ext, body []byte) error {
	return b.put(ctx, statekey.StateKey(name, ext), body)
}

// WriteStateFileOrd writes "state/<name>.<ext>.<ord>".
func (b *Bucket) WriteStateFileOrd(ctx context.Context, name string, ext statekey.Ext, ord int, body []byte) error {
	return b.put(ctx, statekey.StateKeyOrd(name, ext, ord), body)
}

// DeleteStateFile removes "state/<name>.<ext>" if the snapshot has it.
func (b *Bucket) DeleteStateFile(ctx context.Context, name string, ext statekey.Ext) error {
	key := statekey.StateKey(name, ext)
	if !b.Has(key) {
		return nil
	}
	return b.Delete(ctx, key)
}

// IsLocked reports whether name (a user or an IP) carries a lock marker.
func (b *Bucket) IsLocked(name string) bool {
	return b.Has(statekey.StateKey(name, statekey.Lock))
}

// WriteLockFile locks name with msg as the recorded reason.
func (b *Bucket) WriteLockFile(ctx context.Context, name, msg string) error {
	body, err := json.Marshal(ErrorRecord{Error: msg})
	if err != nil {
		return err
	}
	return b.WriteStateFile(ctx, name, statekey.Lock, body)
}

// ErrorOrdinals returns the ordinals of name's error markers.
func (b *Bucket) ErrorOrdinals(name string) []int {
	var ords []int
	for _, f := range b.StateFiles(Filter{Items: []string{name}, Exts: []statekey.Ext{statekey.Error}}) {
		if f.ID.Ord > 0 {
			ords = append(ords, f.ID.Ord)
		}
	}
	sort.Ints(ords)
	return ords
}

// NextErrorOrdinal returns the ordinal the next error marker for name takes.
func (b *Bucket) NextErrorOrdinal(name string) int {
	ords := b.ErrorOrdinals(name)
	if len(ords) == 0 {
		return 1
	}
	return ords[len(ords)-1] + 1
}

// HasUser reports whether a credential file exists for user.
func (b *Bucket) HasUser(user string) bool {
	return b.Has(statekey.UserKey(user))
}

// UserFile reads the credential file for user.
func (b *Bucket) UserFile(ctx context.Context, user string) ([]byte, error) {
	return b.Get(ctx, statekey.UserKey(user))
}

// WriteUserFile writes the credential file for user.
func (b *Bucket) WriteUserFile(ctx context.Context, user string, body []byte) error {
	return b.put(ctx, statekey.UserKey(user), body)
}

// Users lists every user with a credential file, sorted.
func (b *Bucket) Users() []string {
	var users []string
	for key := range b.files {
		if u, err := statekey.ParseUser(key); err == nil {
			users = append(users, u)
		}
	}
	sort.Strings(users)
	return users
}

// WriteHeartbeat records that host checked in from ip. Any expired marker or
// legacy heartbeat is removed, and the hold marker is created or removed to match hold.
func (b *Bucket) WriteHeartbeat(ctx context.Context, host, ip string, hold bool) error {
	body, err := json.Marshal(Heartbeat{IP: ip})
	if err != nil {
		return err
	}

	if err := b.WriteStateFile(ctx, host, statekey.Heartbeat, body); err != nil {
		return fmt.Errorf("writing heartbeat for %s: %w", host, err)
	}
	if err := b.DeleteStateFile(ctx, host, statekey.Expired); err != nil {
		return fmt.Errorf("clearing expired marker for %s: %w", host, err)
	}
	if legacy := statekey.LegacyHeartbeatKey(host); b.Has(legacy) {
		if err := b.Delete(ctx, legacy); err != nil {
			return fmt.Errorf("clearing legacy heartbeat for %s: %w", host, err)
		}
	}

	held := b.Has(statekey.StateKey(host, statekey.Hold))
	switch {
	case hold && !held:
		if err := b.WriteStateFile(ctx, host, statekey.Hold, body); err != nil {
			return fmt.Errorf("writing hold marker for %s: %w", host, err)
		}
	case !hold && held:
		if err := b.DeleteStateFile(ctx, host, statekey.Hold); err != nil {
			return fmt.Errorf("clearing hold marker for %s: %w", host, err)
		}
	}
	return nil
}
