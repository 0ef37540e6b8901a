package lifecycle

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/marksidell/dynips/internal/statekey"
	"github.com/marksidell/dynips/internal/store"
)

type State string

const (
	StateActive  State = "active"
	StateStale   State = "stale"
	StateHeld    State = "held"
	StateExpired State = "expired"
	StateLocked  State = "locked"
	StateUnknown State = "unknown"
)

// HostRecord is a host's state reconstructed from its markers.
type HostRecord struct {
	Name         string
	IP           string
	LastModified time.Time
	Heartbeat    bool
	Held         bool
	Expired      bool
	Locked       bool
	Errors       int
}

// State returns the effective state. Locked overrides everything, then held,
// then expired; a heartbeat is active until it is older than maxAge.
func (h HostRecord) State(now time.Time, maxAge time.Duration) State {
	switch {
	case h.Locked:
		return StateLocked
	case h.Held:
		return StateHeld
	case h.Expired && !h.Heartbeat:
		return StateExpired
	case h.Heartbeat:
		if h.LastModified.Before(now.Add(-maxAge)) {
			return StateStale
		}
		return StateActive
	}
	return StateUnknown
}

// Records rebuilds every item (host or IP) named by a state marker. A host is
// also locked when its user is. Payloads are read to recover the last IP;
// unreadable payloads leave IP empty.
func Records(ctx context.Context, bucket *store.Bucket) []HostRecord {
	byName := make(map[string]*HostRecord)
	get := func(name string) *HostRecord {
		r, ok := byName[name]
		if !ok {
			r = &HostRecord{Name: name}
			byName[name] = r
		}
		return r
	}

	for _, f := range bucket.StateFiles(store.Filter{}) {
		r := get(f.ID.Item)
		switch f.ID.Ext {
		case statekey.Heartbeat:
			if r.Heartbeat && !f.LastModified.After(r.LastModified) {
				continue
			}
			r.Heartbeat = true
			r.LastModified = f.LastModified
			r.IP = payloadIP(ctx, bucket, f.Key, r.IP)
		case statekey.Hold:
			r.Held = true
		case statekey.Expired:
			r.Expired = true
			if !r.Heartbeat {
				r.LastModified = f.LastModified
				r.IP = payloadIP(ctx, bucket, f.Key, r.IP)
			}
		case statekey.Lock:
			r.Locked = true
		case statekey.Error:
			r.Errors++
		}
	}

	out := make([]HostRecord, 0, len(byName))
	for _, r := range byName {
		if user, _, ok := statekey.ParseHost(r.Name); ok && user != r.Name && bucket.IsLocked(user) {
			r.Locked = true
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func payloadIP(ctx context.Context, bucket *store.Bucket, key, fallback string) string {
	body, err := bucket.Get(ctx, key)
	if err != nil {
		return fallback
	}
	var hb store.Heartbeat
	if err := json.Unmarshal(body, &hb); err != nil || hb.IP == "" {
		return fallback
	}
	return hb.IP
}
