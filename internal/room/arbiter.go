package room

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/dice-room-backend/internal/engine"
)

// ErrClaimConflict means contention kept the claim from resolving within
// the retry budget. Unlike engine.ErrRewardExhausted, the reward may still
// be available.
var ErrClaimConflict = errors.New("claim conflict, try again")

const claimStripes = 64

// ClaimArbiter serializes reward claims. Claims on the same reward inside
// this process queue on a striped lock; claims from other processes, and
// any other write to the room, are caught by the store's version check and
// retried from a fresh read.
type ClaimArbiter struct {
	svc        *Service
	maxRetries int
	stripes    [claimStripes]sync.Mutex
}

func newClaimArbiter(svc *Service, maxRetries int) *ClaimArbiter {
	return &ClaimArbiter{svc: svc, maxRetries: maxRetries}
}

func (a *ClaimArbiter) Claim(ctx context.Context, code, playerID, rewardID string) (Result, error) {
	mu := a.stripe(code, rewardID)
	mu.Lock()
	defer mu.Unlock()

	cmd := engine.Command{Type: engine.CmdClaimReward, PlayerID: playerID, RewardID: rewardID}
	res, err := a.svc.transact(ctx, code, a.maxRetries, func(engine.Room) (engine.Command, bool) {
		return cmd, true
	})
	if !errors.Is(err, ErrCommitConflict) {
		if err == nil {
			a.svc.log.Info("reward claimed",
				zap.String("room", code),
				zap.String("player", playerID),
				zap.String("reward", rewardID),
				zap.Int64("version", res.Snapshot.Version),
			)
		}
		return res, err
	}

	// Out of retries. Report a definitive outcome if the last state has one.
	return a.settle(ctx, code, playerID, rewardID)
}

func (a *ClaimArbiter) settle(ctx context.Context, code, playerID, rewardID string) (Result, error) {
	cur, err := a.svc.store.Read(ctx, code)
	if err != nil {
		return Result{}, err
	}
	if r, ok := cur.Room.Rewards[rewardID]; ok {
		switch {
		case r.ClaimedByPlayer(playerID):
			return Result{Snapshot: cur}, engine.ErrAlreadyClaimed
		case r.Claimed >= r.Total:
			return Result{Snapshot: cur}, engine.ErrRewardExhausted
		}
	}

	a.svc.log.Warn("claim retries exhausted",
		zap.String("room", code),
		zap.String("player", playerID),
		zap.String("reward", rewardID),
		zap.Int("attempts", a.maxRetries),
	)
	return Result{Snapshot: cur}, ErrClaimConflict
}

func (a *ClaimArbiter) stripe(code, rewardID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(code))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(rewardID))
	return &a.stripes[h.Sum32()%claimStripes]
}
