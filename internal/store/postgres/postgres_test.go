package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/dice-room-backend/internal/engine"
	"github.com/DoyleJ11/dice-room-backend/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := Open(context.Background(), dsn, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func uniqueCode() string {
	return fmt.Sprintf("T%05d", time.Now().UnixNano()%100000)
}

func TestStore_CreateCommitConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	code := uniqueCode()

	room := engine.NewRoom(code, "admin", engine.DefaultSettings(), time.Now())
	snap, err := s.Create(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Version)

	_, err = s.Create(ctx, room)
	assert.ErrorIs(t, err, store.ErrExists)

	room.Status = engine.StatusPlaying
	snap, err = s.Commit(ctx, code, 1, room)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Version)

	_, err = s.Commit(ctx, code, 1, room)
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err := s.Read(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusPlaying, got.Room.Status)

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	assert.Contains(t, active, code)
}

func TestStore_SubscribeReplaysCommits(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	code := uniqueCode()

	room := engine.NewRoom(code, "admin", engine.DefaultSettings(), time.Now())
	_, err := s.Create(ctx, room)
	require.NoError(t, err)

	ch, err := s.Subscribe(ctx, code)
	require.NoError(t, err)

	for v := int64(1); v <= 3; v++ {
		_, err := s.Commit(ctx, code, v, room)
		require.NoError(t, err)
	}

	for want := int64(1); want <= 4; want++ {
		select {
		case snap := <-ch:
			assert.Equal(t, want, snap.Version)
		case <-ctx.Done():
			t.Fatalf("timed out waiting for version %d", want)
		}
	}
}

func recvVersion(t *testing.T, ctx context.Context, ch <-chan store.Snapshot, want int64) {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "feed closed waiting for version %d", want)
		assert.Equal(t, want, snap.Version)
	case <-ctx.Done():
		t.Fatalf("timed out waiting for version %d", want)
	}
}

// A commit landing between Subscribe's read and its feed loop must still be
// delivered, even if nothing is committed afterwards.
func TestStore_SubscribeDeliversCommitRacingRead(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	code := uniqueCode()

	room := engine.NewRoom(code, "admin", engine.DefaultSettings(), time.Now())
	_, err := s.Create(ctx, room)
	require.NoError(t, err)

	s.afterRead = func() {
		ended := room.Clone()
		ended.Status = engine.StatusFinished
		_, err := s.Commit(ctx, code, 1, ended)
		require.NoError(t, err)
	}
	ch, err := s.Subscribe(ctx, code)
	s.afterRead = nil
	require.NoError(t, err)

	recvVersion(t, ctx, ch, 1)
	recvVersion(t, ctx, ch, 2)
}

// Losing the LISTEN connection must not freeze feeds: the store reconnects
// and subscribers replay what they missed.
func TestStore_SubscribeSurvivesListenerLoss(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	code := uniqueCode()

	room := engine.NewRoom(code, "admin", engine.DefaultSettings(), time.Now())
	_, err := s.Create(ctx, room)
	require.NoError(t, err)

	ch, err := s.Subscribe(ctx, code)
	require.NoError(t, err)
	recvVersion(t, ctx, ch, 1)

	s.mu.Lock()
	pid := s.listenerPID
	s.mu.Unlock()
	require.NoError(t, s.db.WithContext(ctx).Exec("SELECT pg_terminate_backend(?)", pid).Error)

	_, err = s.Commit(ctx, code, 1, room)
	require.NoError(t, err)
	recvVersion(t, ctx, ch, 2)

	s.mu.Lock()
	assert.NotEqual(t, pid, s.listenerPID)
	s.mu.Unlock()
}
