package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marksidell/dynips/internal/statekey"
	"github.com/marksidell/dynips/internal/store"
	"github.com/marksidell/dynips/internal/store/storetest"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func openSeeded(t *testing.T) (*storetest.Objects, *store.Bucket) {
	t.Helper()
	objects := storetest.New()
	objects.Seed("state/alice.heartbeat", `{"ip": "1.2.3.4"}`, t0)
	objects.Seed("state/alice.hold", `{"ip": "1.2.3.4"}`, t0)
	objects.Seed("state/bob-pc.heartbeat", `{"ip": "5.6.7.8"}`, t0)
	objects.Seed("state/9.9.9.9.error.1", `{"error": "x"}`, t0)
	objects.Seed("state/9.9.9.9.error.4", `{"error": "x"}`, t0)
	objects.Seed("state/9.9.9.9.lock", `{"error": "x"}`, t0)
	objects.Seed("users/alice", `{"keyhash": "h"}`, t0)
	objects.Seed("users/bob", `{"keyhash": "h"}`, t0)
	objects.Seed("policy.json", `{}`, t0)

	b, err := store.Open(context.Background(), objects)
	require.NoError(t, err)
	return objects, b
}

func TestStateFiles_Filter(t *testing.T) {
	_, b := openSeeded(t)

	beats := b.StateFiles(store.Filter{Exts: []statekey.Ext{statekey.Heartbeat}})
	require.Len(t, beats, 2)
	assert.Equal(t, "alice", beats[0].ID.Host)
	assert.Equal(t, "bob-pc", beats[1].ID.Host)
	assert.Equal(t, "bob", beats[1].ID.User)
	assert.True(t, beats[0].LastModified.Equal(t0))

	ip := b.StateFiles(store.Filter{Items: []string{"9.9.9.9"}})
	assert.Len(t, ip, 3)

	all := b.StateFiles(store.Filter{})
	assert.Len(t, all, 6, "non-state keys are skipped")
}

func TestIsLockedAndErrorOrdinals(t *testing.T) {
	_, b := openSeeded(t)

	assert.True(t, b.IsLocked("9.9.9.9"))
	assert.False(t, b.IsLocked("alice"))
	assert.Equal(t, []int{1, 4}, b.ErrorOrdinals("9.9.9.9"))
	assert.Empty(t, b.ErrorOrdinals("alice"))
	assert.Equal(t, 5, b.NextErrorOrdinal("9.9.9.9"))
	assert.Equal(t, 1, b.NextErrorOrdinal("alice"))
}

func TestUsers(t *testing.T) {
	_, b := openSeeded(t)

	assert.Equal(t, []string{"alice", "bob"}, b.Users())
	assert.True(t, b.HasUser("Alice"))
	assert.False(t, b.HasUser("carol"))

	_, err := b.UserFile(context.Background(), "carol")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGet_MissingFromSnapshot(t *testing.T) {
	objects, b := openSeeded(t)

	// Written behind the bucket's back after the snapshot.
	objects.Seed("state/carol.heartbeat", `{}`, t0)
	_, err := b.Get(context.Background(), "state/carol.heartbeat")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWriteHeartbeat_SetsHoldAndClearsExpired(t *testing.T) {
	objects, b := openSeeded(t)
	ctx := context.Background()
	objects.Seed("state/bob-pc.expired", `{"ip": "5.6.7.8"}`, t0)
	b, err := store.Open(ctx, objects)
	require.NoError(t, err)

	require.NoError(t, b.WriteHeartbeat(ctx, "Bob-PC", "5.6.7.9", true))

	body, ok := objects.Body("state/bob-pc.heartbeat")
	require.True(t, ok)
	assert.JSONEq(t, `{"ip": "5.6.7.9"}`, body)
	_, ok = objects.Body("state/bob-pc.expired")
	assert.False(t, ok)
	_, ok = objects.Body("state/bob-pc.hold")
	assert.True(t, ok)
	assert.True(t, b.Has("state/bob-pc.hold"))
}

func TestWriteHeartbeat_ClearsLegacyHeartbeat(t *testing.T) {
	objects := storetest.New()
	objects.Seed("state/alice.ping", `{"ip": "1.1.1.1"}`, t0.Add(-5*time.Hour))
	ctx := context.Background()
	b, err := store.Open(ctx, objects)
	require.NoError(t, err)

	require.NoError(t, b.WriteHeartbeat(ctx, "alice", "1.2.3.4", false))

	assert.Equal(t, []string{"state/alice.heartbeat"}, objects.Keys())
	assert.False(t, b.Has("state/alice.ping"))
}

func TestWriteHeartbeat_ReleasesHold(t *testing.T) {
	objects, b := openSeeded(t)

	require.NoError(t, b.WriteHeartbeat(context.Background(), "alice", "1.2.3.4", false))

	_, ok := objects.Body("state/alice.hold")
	assert.False(t, ok)
	assert.False(t, b.Has("state/alice.hold"))
}

func TestWriteHeartbeat_PutError(t *testing.T) {
	objects, b := openSeeded(t)
	objects.Fail("put", "state/alice.heartbeat", errors.New("boom"))

	err := b.WriteHeartbeat(context.Background(), "alice", "1.2.3.4", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "writing heartbeat for alice")
}

func TestWriteLockFile(t *testing.T) {
	objects, b := openSeeded(t)

	require.NoError(t, b.WriteLockFile(context.Background(), "alice", "too many errors"))
	assert.True(t, b.IsLocked("alice"))
	body, _ := objects.Body("state/alice.lock")
	assert.JSONEq(t, `{"error": "too many errors"}`, body)
}

func TestOpen_ListError(t *testing.T) {
	objects := storetest.New()
	objects.Fail("list", "", errors.New("denied"))

	_, err := store.Open(context.Background(), objects)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store: listing")
}
