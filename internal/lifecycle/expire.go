// Package lifecycle decides which dynamic hosts are still live and retires the
// ones that stopped checking in.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/marksidell/dynips/internal/statekey"
	"github.com/marksidell/dynips/internal/store"
)

// HostClearer points a host's DNS record at the "no address" placeholder.
type HostClearer interface {
	ClearHostIP(ctx context.Context, host string) error
}

// Result lists the hosts expired in one pass and the hosts whose transition
// failed. Failed hosts are retried on the next pass.
type Result struct {
	Expired []string
	Failed  map[string]error
}

type Expirer struct {
	objects store.ObjectStore
	dns     HostClearer
	log     *slog.Logger
	now     func() time.Time
}

func NewExpirer(objects store.ObjectStore, dns HostClearer, log *slog.Logger) *Expirer {
	if log == nil {
		log = slog.Default()
	}
	return &Expirer{objects: objects, dns: dns, log: log, now: time.Now}
}

// ExpireHosts expires every host whose heartbeat is older than maxAge and
// that carries no hold marker. Held hosts are never expired. A host with both
// a current and a legacy heartbeat key is judged by the newer one.
//
// Each host moves through: clear DNS, write the expired marker with the last
// heartbeat payload, delete the heartbeats. A pass interrupted part way leaves
// a heartbeat in place, so the next pass repeats the idempotent steps.
func (e *Expirer) ExpireHosts(ctx context.Context, maxAge time.Duration) (Result, error) {
	bucket, err := store.Open(ctx, e.objects)
	if err != nil {
		return Result{}, err
	}

	held := make(map[string]bool)
	for _, f := range bucket.StateFiles(store.Filter{Exts: []statekey.Ext{statekey.Hold}}) {
		held[f.ID.Item] = true
	}

	beats := make(map[string][]store.StateFile)
	for _, f := range bucket.StateFiles(store.Filter{Exts: []statekey.Ext{statekey.Heartbeat}}) {
		beats[f.ID.Item] = append(beats[f.ID.Item], f)
	}

	cutoff := e.now().Add(-maxAge)
	res := Result{Failed: make(map[string]error)}

	for host, files := range beats {
		latest := newest(files)
		if held[host] || !latest.LastModified.Before(cutoff) {
			continue
		}
		if err := e.expire(ctx, bucket, host, latest, files); err != nil {
			e.log.Error("failed to expire host", "host", host, "error", err)
			res.Failed[host] = err
			continue
		}
		e.log.Info("expired host", "host", host, "last_modified", latest.LastModified)
		res.Expired = append(res.Expired, host)
	}

	sort.Strings(res.Expired)
	return res, nil
}

func newest(files []store.StateFile) store.StateFile {
	latest := files[0]
	for _, f := range files[1:] {
		if f.LastModified.After(latest.LastModified) {
			latest = f
		}
	}
	return latest
}

func (e *Expirer) expire(ctx context.Context, bucket *store.Bucket, host string, latest store.StateFile, files []store.StateFile) error {
	body, err := bucket.Get(ctx, latest.Key)
	if err != nil {
		return fmt.Errorf("reading heartbeat: %w", err)
	}
	if err := e.dns.ClearHostIP(ctx, host); err != nil {
		return fmt.Errorf("clearing DNS: %w", err)
	}
	if err := bucket.WriteStateFile(ctx, host, statekey.Expired, body); err != nil {
		return fmt.Errorf("writing expired marker: %w", err)
	}
	for _, f := range files {
		if err := bucket.Delete(ctx, f.Key); err != nil {
			return fmt.Errorf("deleting heartbeat: %w", err)
		}
	}
	return nil
}
