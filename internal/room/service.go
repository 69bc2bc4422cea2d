// Package room runs engine transitions against the room store. Every
// operation is one read-validate-commit cycle over the whole room document,
// retried from a fresh read when another writer commits first.
package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/dice-room-backend/internal/engine"
	"github.com/DoyleJ11/dice-room-backend/internal/store"
)

// ErrCommitConflict means concurrent writers kept winning until the retry
// budget ran out. Nothing was applied.
var ErrCommitConflict = errors.New("room busy, try again")

const maxCodeAttempts = 10

// Result is the committed snapshot plus the changes that produced it.
// Changes is empty when the command was a no-op.
type Result struct {
	Snapshot store.Snapshot
	Changes  []engine.Change
}

type Service struct {
	store         store.Store
	engine        *engine.Engine
	arbiter       *ClaimArbiter
	log           *zap.Logger
	now           func() time.Time
	defaults      engine.Settings
	commitRetries int
	claimRetries  int
}

type Option func(*Service)

func WithEngine(e *engine.Engine) Option { return func(s *Service) { s.engine = e } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithDefaults(settings engine.Settings) Option {
	return func(s *Service) { s.defaults = settings }
}

func WithCommitRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.commitRetries = n
		}
	}
}

func WithClaimRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.claimRetries = n
		}
	}
}

func NewService(st store.Store, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:         st,
		engine:        engine.New(),
		log:           log,
		now:           time.Now,
		defaults:      engine.DefaultSettings(),
		commitRetries: 8,
		claimRetries:  5,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.arbiter = newClaimArbiter(s, s.claimRetries)
	return s
}

// Create opens a waiting room owned by adminID. A nil settings uses the
// service defaults.
func (s *Service) Create(ctx context.Context, adminID string, settings *engine.Settings) (store.Snapshot, error) {
	if adminID == "" {
		return store.Snapshot{}, fmt.Errorf("%w: missing admin id", engine.ErrInvalidCommand)
	}
	cfg := s.defaults
	if settings != nil {
		cfg = *settings
	}
	if err := cfg.Validate(); err != nil {
		return store.Snapshot{}, err
	}

	for range maxCodeAttempts {
		code, err := GenerateCode()
		if err != nil {
			return store.Snapshot{}, fmt.Errorf("generate code: %w", err)
		}
		snap, err := s.store.Create(ctx, engine.NewRoom(code, adminID, cfg, s.now()))
		if errors.Is(err, store.ErrExists) {
			s.log.Debug("collision on code, regenerating", zap.String("room", code))
			continue
		}
		if err != nil {
			return store.Snapshot{}, err
		}
		s.log.Info("room created", zap.String("room", code), zap.String("admin", adminID))
		return snap, nil
	}
	return store.Snapshot{}, errors.New("could not allocate a room code")
}

func (s *Service) Get(ctx context.Context, code string) (store.Snapshot, error) {
	return s.store.Read(ctx, code)
}

func (s *Service) Leaderboard(ctx context.Context, code string) ([]engine.LeaderboardEntry, error) {
	snap, err := s.store.Read(ctx, code)
	if err != nil {
		return nil, err
	}
	return snap.Room.RankedLeaderboard(), nil
}

func (s *Service) Join(ctx context.Context, code, playerID, name string) (Result, error) {
	return s.Apply(ctx, code, engine.Command{Type: engine.CmdJoinRoom, PlayerID: playerID, Name: name})
}

func (s *Service) Start(ctx context.Context, code, actorID string) (Result, error) {
	return s.Apply(ctx, code, engine.Command{Type: engine.CmdStartGame, ActorID: actorID})
}

// Roll returns the die value shown to the player alongside the new room.
func (s *Service) Roll(ctx context.Context, code, playerID string) (int, Result, error) {
	res, err := s.Apply(ctx, code, engine.Command{Type: engine.CmdRollDice, PlayerID: playerID})
	if err != nil {
		return 0, res, err
	}
	die, _ := engine.RolledValue(res.Changes)
	return die, res, nil
}

func (s *Service) Claim(ctx context.Context, code, playerID, rewardID string) (Result, error) {
	return s.arbiter.Claim(ctx, code, playerID, rewardID)
}

func (s *Service) TriggerEvent(ctx context.Context, code, actorID string, event engine.EventType) (Result, error) {
	return s.Apply(ctx, code, engine.Command{Type: engine.CmdTriggerEvent, ActorID: actorID, Event: event})
}

func (s *Service) ExpireEvent(ctx context.Context, code string) (Result, error) {
	return s.Apply(ctx, code, engine.Command{Type: engine.CmdExpireEvent, ActorID: engine.SystemActor})
}

func (s *Service) End(ctx context.Context, code, actorID string) (Result, error) {
	return s.Apply(ctx, code, engine.Command{Type: engine.CmdEndGame, ActorID: actorID})
}

func (s *Service) SetConnected(ctx context.Context, code, playerID string, connected bool) (Result, error) {
	return s.Apply(ctx, code, engine.Command{Type: engine.CmdSetConnected, PlayerID: playerID, Connected: connected})
}

// Tick runs whatever time-driven command is due for the room, if any.
func (s *Service) Tick(ctx context.Context, code string) (Result, error) {
	return s.transact(ctx, code, s.commitRetries, func(r engine.Room) (engine.Command, bool) {
		return engine.NextScheduled(r, s.now())
	})
}

// Apply runs one command through the commit loop.
func (s *Service) Apply(ctx context.Context, code string, cmd engine.Command) (Result, error) {
	return s.transact(ctx, code, s.commitRetries, func(engine.Room) (engine.Command, bool) {
		return cmd, true
	})
}

// transact is the optimistic loop shared by every write: read, build the
// command from what was read, apply, commit conditionally on the version.
func (s *Service) transact(
	ctx context.Context,
	code string,
	attempts int,
	build func(engine.Room) (engine.Command, bool),
) (Result, error) {
	for attempt := 1; attempt <= attempts; attempt++ {
		cur, err := s.store.Read(ctx, code)
		if err != nil {
			return Result{}, err
		}

		cmd, ok := build(cur.Room)
		if !ok {
			return Result{Snapshot: cur}, nil
		}
		if cmd.At.IsZero() {
			cmd.At = s.now()
		}

		changes, next, err := s.engine.Apply(cur.Room, cmd)
		if err != nil {
			s.log.Debug("transition rejected",
				zap.String("room", code),
				zap.String("cmd", string(cmd.Type)),
				zap.String("player", cmd.PlayerID),
				zap.Error(err),
			)
			return Result{Snapshot: cur}, err
		}
		if len(changes) == 0 {
			return Result{Snapshot: cur}, nil
		}

		snap, err := s.store.Commit(ctx, code, cur.Version, next)
		if errors.Is(err, store.ErrConflict) {
			s.log.Debug("commit conflict, retrying",
				zap.String("room", code),
				zap.String("cmd", string(cmd.Type)),
				zap.Int64("version", cur.Version),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			s.log.Error("commit failed", zap.String("room", code), zap.Error(err))
			return Result{Snapshot: cur}, err
		}

		for _, c := range changes {
			s.log.Debug("transition committed",
				zap.String("room", code),
				zap.String("change", string(c.Type)),
				zap.String("player", c.PlayerID),
				zap.Int64("version", snap.Version),
			)
		}
		return Result{Snapshot: snap, Changes: changes}, nil
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.log.Warn("commit retries exhausted", zap.String("room", code), zap.Int("attempts", attempts))
	return Result{}, ErrCommitConflict
}
