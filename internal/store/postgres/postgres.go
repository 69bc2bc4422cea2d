// Package postgres stores room documents in PostgreSQL. Each room is one
// row guarded by a version column; every commit also appends to a revision
// log and raises a NOTIFY so subscribers on any node can replay it.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DoyleJ11/dice-room-backend/internal/engine"
	"github.com/DoyleJ11/dice-room-backend/internal/store"
)

const notifyChannel = "room_commits"

const uniqueViolation = "23505"

const relistenDelay = time.Second

type roomDocument struct {
	Code      string `gorm:"primaryKey;size:16"`
	Version   int64  `gorm:"not null"`
	Status    string `gorm:"index;size:16;not null"`
	State     []byte `gorm:"type:jsonb;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (roomDocument) TableName() string { return "room_documents" }

type roomRevision struct {
	Code      string `gorm:"primaryKey;size:16"`
	Version   int64  `gorm:"primaryKey"`
	State     []byte `gorm:"type:jsonb;not null"`
	CreatedAt time.Time
}

func (roomRevision) TableName() string { return "room_revisions" }

type subscriber struct {
	code string
	wake chan struct{}
}

type Store struct {
	db       *gorm.DB
	dsn      string
	listener *pgx.Conn // owned by the listen goroutine once Open returns
	log      *zap.Logger

	mu          sync.Mutex
	subs        map[*subscriber]struct{}
	listenerPID uint32
	cancel      context.CancelFunc
	done        chan struct{}

	// afterRead runs between Subscribe's first read and its feed loop.
	afterRead func()
}

var _ store.Store = (*Store)(nil)

// Open connects, migrates the schema and starts the LISTEN loop.
func Open(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(gormpg.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&roomDocument{}, &roomRevision{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	listener, err := connectListener(ctx, dsn)
	if err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s := &Store{
		db:          db,
		dsn:         dsn,
		listener:    listener,
		log:         log,
		subs:        make(map[*subscriber]struct{}),
		listenerPID: listener.PgConn().PID(),
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go s.listen(loopCtx)
	return s, nil
}

func connectListener(ctx context.Context, dsn string) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("listen: %w", err)
	}
	return conn, nil
}

func (s *Store) Create(ctx context.Context, room engine.Room) (store.Snapshot, error) {
	data, err := json.Marshal(room)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("encode room: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc := roomDocument{Code: room.Code, Version: 1, Status: string(room.Status), State: data}
		if err := tx.Create(&doc).Error; err != nil {
			return err
		}
		return appendRevision(tx, room.Code, 1, data)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.Snapshot{}, store.ErrExists
		}
		return store.Snapshot{}, fmt.Errorf("create room %s: %w", room.Code, err)
	}
	return store.Snapshot{Version: 1, Room: room.Clone()}, nil
}

func (s *Store) Read(ctx context.Context, code string) (store.Snapshot, error) {
	var doc roomDocument
	err := s.db.WithContext(ctx).Where("code = ?", code).Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.Snapshot{}, store.ErrNotFound
	}
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("read room %s: %w", code, err)
	}
	return decode(doc.Version, doc.State)
}

func (s *Store) Commit(ctx context.Context, code string, expected int64, room engine.Room) (store.Snapshot, error) {
	data, err := json.Marshal(room)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("encode room: %w", err)
	}
	next := expected + 1

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&roomDocument{}).
			Where("code = ? AND version = ?", code, expected).
			Updates(map[string]any{
				"version":    next,
				"status":     string(room.Status),
				"state":      data,
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&roomDocument{}).Where("code = ?", code).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return store.ErrNotFound
			}
			return store.ErrConflict
		}
		return appendRevision(tx, code, next, data)
	})
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConflict) {
		return store.Snapshot{}, err
	}
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("commit room %s: %w", code, err)
	}
	return store.Snapshot{Version: next, Room: room.Clone()}, nil
}

func appendRevision(tx *gorm.DB, code string, version int64, data []byte) error {
	if err := tx.Create(&roomRevision{Code: code, Version: version, State: data}).Error; err != nil {
		return err
	}
	// Delivered by postgres only when the transaction commits.
	return tx.Exec("SELECT pg_notify(?, ?)", notifyChannel, code+":"+strconv.FormatInt(version, 10)).Error
}

// Subscribe registers before reading, so a commit racing the read still
// wakes the subscriber. The first wake is queued up front: the initial
// replay covers anything committed between the read and the loop.
func (s *Store) Subscribe(ctx context.Context, code string) (<-chan store.Snapshot, error) {
	sub := &subscriber{code: code, wake: make(chan struct{}, 1)}
	sub.wake <- struct{}{}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	current, err := s.Read(ctx, code)
	if err != nil {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
		return nil, err
	}
	if s.afterRead != nil {
		s.afterRead()
	}

	out := make(chan store.Snapshot, 32)
	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.subs, sub)
			s.mu.Unlock()
		}()

		last := current.Version
		select {
		case out <- current:
		case <-ctx.Done():
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.wake:
			}

			revs, err := s.revisionsAfter(ctx, code, last)
			if err != nil {
				if ctx.Err() == nil {
					s.log.Error("replay revisions", zap.String("room", code), zap.Error(err))
				}
				return
			}
			for _, snap := range revs {
				select {
				case out <- snap:
					last = snap.Version
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *Store) revisionsAfter(ctx context.Context, code string, after int64) ([]store.Snapshot, error) {
	var revs []roomRevision
	err := s.db.WithContext(ctx).
		Where("code = ? AND version > ?", code, after).
		Order("version ASC").
		Find(&revs).Error
	if err != nil {
		return nil, err
	}

	out := make([]store.Snapshot, 0, len(revs))
	for _, r := range revs {
		snap, err := decode(r.Version, r.State)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func (s *Store) ListActive(ctx context.Context) ([]string, error) {
	var codes []string
	err := s.db.WithContext(ctx).Model(&roomDocument{}).
		Where("status = ?", string(engine.StatusPlaying)).
		Order("code").
		Pluck("code", &codes).Error
	if err != nil {
		return nil, fmt.Errorf("list active rooms: %w", err)
	}
	return codes, nil
}

func (s *Store) listen(ctx context.Context) {
	defer close(s.done)
	for {
		n, err := s.listener.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("listener lost, reconnecting", zap.Error(err))
			if !s.relisten(ctx) {
				return
			}
			// Notifications sent while disconnected are gone; every
			// subscriber replays from its last version instead.
			s.wake("")
			continue
		}
		code, _, ok := strings.Cut(n.Payload, ":")
		if !ok {
			continue
		}
		s.wake(code)
	}
}

// relisten replaces the LISTEN connection, retrying until it succeeds or
// ctx ends.
func (s *Store) relisten(ctx context.Context) bool {
	_ = s.listener.Close(context.Background())
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(relistenDelay):
		}

		conn, err := connectListener(ctx, s.dsn)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("relisten failed", zap.Error(err))
			}
			continue
		}
		s.listener = conn
		s.mu.Lock()
		s.listenerPID = conn.PgConn().PID()
		s.mu.Unlock()
		s.log.Info("listener reconnected")
		return true
	}
}

// wake nudges the subscribers of code, or all of them when code is empty.
func (s *Store) wake(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		if code != "" && sub.code != code {
			continue
		}
		select {
		case sub.wake <- struct{}{}:
		default:
			// already pending; the replay picks up every missed version
		}
	}
}

func (s *Store) Close() error {
	s.cancel()
	<-s.done

	var err error
	err = multierr.Append(err, s.listener.Close(context.Background()))
	if sqlDB, dbErr := s.db.DB(); dbErr != nil {
		err = multierr.Append(err, dbErr)
	} else {
		err = multierr.Append(err, sqlDB.Close())
	}
	return err
}

func decode(version int64, data []byte) (store.Snapshot, error) {
	var room engine.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return store.Snapshot{}, fmt.Errorf("decode room: %w", err)
	}
	return store.Snapshot{Version: version, Room: room}, nil
}
