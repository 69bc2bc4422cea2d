package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/dice-room-backend/internal/engine"
	"github.com/DoyleJ11/dice-room-backend/internal/store"
)

func newRoom(code string) engine.Room {
	return engine.NewRoom(code, "admin", engine.DefaultSettings(), time.Now())
}

func recv(t *testing.T, ch <-chan store.Snapshot) store.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "subscription closed unexpectedly")
		return snap
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for snapshot")
		return store.Snapshot{}
	}
}

func TestCreateRead(t *testing.T) {
	ctx := context.Background()
	s := New()

	snap, err := s.Create(ctx, newRoom("AAAAAA"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Version)

	_, err = s.Create(ctx, newRoom("AAAAAA"))
	assert.ErrorIs(t, err, store.ErrExists)

	got, err := s.Read(ctx, "AAAAAA")
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", got.Room.Code)

	_, err = s.Read(ctx, "ZZZZZZ")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCommit_RejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.Create(ctx, newRoom("AAAAAA"))
	require.NoError(t, err)

	room := newRoom("AAAAAA")
	room.Status = engine.StatusPlaying

	snap, err := s.Commit(ctx, "AAAAAA", 1, room)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Version)

	_, err = s.Commit(ctx, "AAAAAA", 1, room)
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.Commit(ctx, "ZZZZZZ", 1, room)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCommit_StoresACopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	room := newRoom("AAAAAA")
	_, err := s.Create(ctx, room)
	require.NoError(t, err)

	room.Players["p1"] = &engine.Player{ID: "p1"}
	got, err := s.Read(ctx, "AAAAAA")
	require.NoError(t, err)
	assert.Empty(t, got.Room.Players)
}

func TestSubscribe_DeliversInCommitOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New()
	_, err := s.Create(ctx, newRoom("AAAAAA"))
	require.NoError(t, err)

	ch, err := s.Subscribe(ctx, "AAAAAA")
	require.NoError(t, err)
	assert.Equal(t, int64(1), recv(t, ch).Version)

	for v := int64(1); v <= 3; v++ {
		_, err := s.Commit(ctx, "AAAAAA", v, newRoom("AAAAAA"))
		require.NoError(t, err)
	}
	for want := int64(2); want <= 4; want++ {
		assert.Equal(t, want, recv(t, ch).Version)
	}

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "expected channel closed after cancel")
	case <-time.After(time.Second):
		t.Fatalf("subscription not closed after cancel")
	}
}

func TestSubscribe_ClosesSlowSubscriber(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.Create(ctx, newRoom("AAAAAA"))
	require.NoError(t, err)

	ch, err := s.Subscribe(ctx, "AAAAAA")
	require.NoError(t, err)

	for v := int64(1); v <= subscriberBuffer+1; v++ {
		_, err := s.Commit(ctx, "AAAAAA", v, newRoom("AAAAAA"))
		require.NoError(t, err)
	}

	var last int64
	for snap := range ch {
		require.Equal(t, last+1, snap.Version, "gap in delivered versions")
		last = snap.Version
	}
	assert.Less(t, last, int64(subscriberBuffer+2))
}

func TestListActive(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.Create(ctx, newRoom("WAIT01"))
	require.NoError(t, err)

	playing := newRoom("PLAY01")
	playing.Status = engine.StatusPlaying
	_, err = s.Create(ctx, playing)
	require.NoError(t, err)

	codes, err := s.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"PLAY01"}, codes)
}
