package lobby

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/dice-room-backend/internal/room"
	"github.com/DoyleJ11/dice-room-backend/internal/store"
	"github.com/DoyleJ11/dice-room-backend/internal/store/memory"
)

// helper: receive one snapshot with a timeout so tests never hang
func recvSnapshot(t *testing.T, ch <-chan store.Snapshot, within time.Duration) store.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return snap
	case <-time.After(within):
		t.Fatalf("timed out waiting for snapshot")
		return store.Snapshot{} // unreachable
	}
}

func recvNoSnapshot(t *testing.T, ch <-chan store.Snapshot, within time.Duration) {
	t.Helper()
	select {
	case s, ok := <-ch:
		if !ok {
			// channel closed → that's fine; no further snapshots possible
			return
		}
		t.Fatalf("expected no snapshot within %v, but got version %d", within, s.Version)
	case <-time.After(within):
		// good: no snapshot
	}
}

func recvView(t *testing.T, ch <-chan View, within time.Duration) View {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func setup(t *testing.T) (*room.Service, *memory.Store, string) {
	t.Helper()
	st := memory.New()
	svc := room.NewService(st, zaptest.NewLogger(t))
	snap, err := svc.Create(context.Background(), "admin", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return svc, st, snap.Room.Code
}

func TestLobby_CommitBroadcastsSnapshot(t *testing.T) {
	svc, st, code := setup(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l, err := NewLobby(ctx, code, st, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("new lobby: %v", err)
	}

	out := make(chan store.Snapshot, 4)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}

	first := recvSnapshot(t, out, time.Second)
	if first.Version != 1 {
		t.Fatalf("after join: want version=1, got %d", first.Version)
	}

	if _, err := svc.Join(context.Background(), code, "p1", "Ana"); err != nil {
		t.Fatalf("join room: %v", err)
	}

	next := recvSnapshot(t, out, time.Second)
	if next.Version != 2 {
		t.Fatalf("after commit: want version=2, got %d", next.Version)
	}
	if _, ok := next.Room.Players["p1"]; !ok {
		t.Fatalf("snapshot missing joined player")
	}

	l.Inbox() <- Shutdown{}
}

func TestLobby_DropSlowClient(t *testing.T) {
	svc, st, code := setup(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l, err := NewLobby(ctx, code, st, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("new lobby: %v", err)
	}

	keep := make(chan store.Snapshot, 8)
	l.Inbox() <- Join{ClientID: "fast", Outbox: keep}
	recvSnapshot(t, keep, time.Second)

	slow := make(chan store.Snapshot, 1)
	l.Inbox() <- Join{ClientID: "slow", Outbox: slow}

	for _, p := range []string{"p1", "p2"} {
		if _, err := svc.Join(context.Background(), code, p, p); err != nil {
			t.Fatalf("join room: %v", err)
		}
		recvSnapshot(t, keep, time.Second)
	}

	reply := make(chan View, 1)
	l.Inbox() <- GetState{Reply: reply}
	view := recvView(t, reply, time.Second)

	if view.NumClients != 1 {
		t.Fatalf("expected slow client to be dropped; NumClients=%d", view.NumClients)
	}
	if view.Version != 3 {
		t.Fatalf("want version=3, got %d", view.Version)
	}
}

func TestLobby_LastLeaveShutsDown(t *testing.T) {
	_, st, code := setup(t)

	l, err := NewLobby(context.Background(), code, st, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("new lobby: %v", err)
	}

	out := make(chan store.Snapshot, 2)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}
	recvSnapshot(t, out, time.Second)

	l.Inbox() <- Leave{ClientID: "c1"}
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatalf("lobby still running after last client left")
	}
	if l.Send(GetState{Reply: make(chan View, 1)}) {
		t.Fatalf("Send succeeded on a closed lobby")
	}
}

// A Join queued behind the last Leave is either refused by Send or has
// its outbox closed by the shutdown; it never waits forever.
func TestLobby_JoinBehindLastLeave(t *testing.T) {
	_, st, code := setup(t)

	l, err := NewLobby(context.Background(), code, st, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("new lobby: %v", err)
	}

	first := make(chan store.Snapshot, 2)
	if !l.Send(Join{ClientID: "a", Outbox: first}) {
		t.Fatalf("join a refused")
	}
	recvSnapshot(t, first, time.Second)

	next := make(chan store.Snapshot, 2)
	l.Send(Leave{ClientID: "a"})
	if !l.Send(Join{ClientID: "b", Outbox: next}) {
		return // shut down before the join was queued
	}

	select {
	case s, ok := <-next:
		if ok {
			t.Fatalf("join behind the last leave was served version %d", s.Version)
		}
	case <-time.After(time.Second):
		t.Fatalf("queued join neither served nor closed")
	}
	<-l.Done()
}

func TestLobby_Shutdown_NoFurtherSnapshots(t *testing.T) {
	svc, st, code := setup(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l, err := NewLobby(ctx, code, st, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("new lobby: %v", err)
	}

	out := make(chan store.Snapshot, 2)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}
	recvSnapshot(t, out, time.Second) // drain join snapshot

	l.Inbox() <- Shutdown{}
	<-l.Done()

	if _, err := svc.Join(context.Background(), code, "p1", "Ana"); err != nil {
		t.Fatalf("join room: %v", err)
	}
	recvNoSnapshot(t, out, 200*time.Millisecond)
}

func TestNewLobby_UnknownRoom(t *testing.T) {
	st := memory.New()
	if _, err := NewLobby(context.Background(), "NOPE00", st, zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected error for unknown room")
	}
}
