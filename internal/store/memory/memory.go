// Package memory is an in-process store.Store used for single-node runs
// and tests.
package memory

import (
	"context"
	"sync"

	"github.com/DoyleJ11/dice-room-backend/internal/engine"
	"github.com/DoyleJ11/dice-room-backend/internal/store"
)

const subscriberBuffer = 32

type document struct {
	version int64
	room    engine.Room
	subs    map[int]chan store.Snapshot
	nextSub int
}

type Store struct {
	mu    sync.Mutex
	rooms map[string]*document
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{rooms: make(map[string]*document)}
}

func (s *Store) Create(_ context.Context, room engine.Room) (store.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[room.Code]; ok {
		return store.Snapshot{}, store.ErrExists
	}
	doc := &document{
		version: 1,
		room:    room.Clone(),
		subs:    make(map[int]chan store.Snapshot),
	}
	s.rooms[room.Code] = doc
	return doc.snapshot(), nil
}

func (s *Store) Read(_ context.Context, code string) (store.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.rooms[code]
	if !ok {
		return store.Snapshot{}, store.ErrNotFound
	}
	return doc.snapshot(), nil
}

func (s *Store) Commit(_ context.Context, code string, expected int64, room engine.Room) (store.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.rooms[code]
	if !ok {
		return store.Snapshot{}, store.ErrNotFound
	}
	if doc.version != expected {
		return store.Snapshot{}, store.ErrConflict
	}

	doc.version++
	doc.room = room.Clone()
	snap := doc.snapshot()
	doc.broadcast(snap)
	return snap, nil
}

func (s *Store) Subscribe(ctx context.Context, code string) (<-chan store.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.rooms[code]
	if !ok {
		return nil, store.ErrNotFound
	}

	ch := make(chan store.Snapshot, subscriberBuffer)
	ch <- doc.snapshot()
	id := doc.nextSub
	doc.nextSub++
	doc.subs[id] = ch

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := doc.subs[id]; ok {
			close(sub)
			delete(doc.subs, id)
		}
	}()
	return ch, nil
}

func (s *Store) ListActive(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var codes []string
	for code, doc := range s.rooms {
		if doc.room.Status == engine.StatusPlaying {
			codes = append(codes, code)
		}
	}
	return codes, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range s.rooms {
		for id, ch := range doc.subs {
			close(ch)
			delete(doc.subs, id)
		}
	}
	return nil
}

func (d *document) snapshot() store.Snapshot {
	return store.Snapshot{Version: d.version, Room: d.room.Clone()}
}

// broadcast must be called with the store lock held. A subscriber whose
// buffer is full is closed rather than skipped, so it never sees a gap.
func (d *document) broadcast(snap store.Snapshot) {
	for id, ch := range d.subs {
		select {
		case ch <- snap:
		default:
			close(ch)
			delete(d.subs, id)
		}
	}
}
