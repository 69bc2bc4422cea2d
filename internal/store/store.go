// Package store defines the replicated room document contract. A room is
// one versioned document; every write is a conditional commit against the
// version the writer read.
package store

import (
	"context"
	"errors"

	"github.com/DoyleJ11/dice-room-backend/internal/engine"
)

var ErrNotFound = errors.New("room not found")
var ErrExists = errors.New("room already exists")
var ErrConflict = errors.New("room changed since it was read")

// Snapshot is one committed version of a room.
type Snapshot struct {
	Version int64       `json:"version"`
	Room    engine.Room `json:"room"`
}

type Store interface {
	// Create stores room at version 1. Returns ErrExists on a code collision.
	Create(ctx context.Context, room engine.Room) (Snapshot, error)
	Read(ctx context.Context, code string) (Snapshot, error)
	// Commit writes room as expected+1 only if the stored version is still
	// expected; otherwise it returns ErrConflict and writes nothing.
	Commit(ctx context.Context, code string, expected int64, room engine.Room) (Snapshot, error)
	// Subscribe delivers the current snapshot followed by every later
	// commit, in version order. The channel is closed when ctx ends or the
	// subscriber falls too far behind; callers resubscribe after a close.
	Subscribe(ctx context.Context, code string) (<-chan Snapshot, error)
	// ListActive returns the codes of rooms whose game is in progress.
	ListActive(ctx context.Context) ([]string, error)
	Close() error
}
