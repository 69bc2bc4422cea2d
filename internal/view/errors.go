package view

import (
	"errors"

	"github.com/DoyleJ11/dice-room-backend/internal/engine"
	"github.com/DoyleJ11/dice-room-backend/internal/room"
	"github.com/DoyleJ11/dice-room-backend/internal/store"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{store.ErrNotFound, "room_not_found"},
	{engine.ErrRoomFull, "room_full"},
	{engine.ErrAlreadyJoined, "already_joined"},
	{engine.ErrPlayerNotFound, "player_not_found"},
	{engine.ErrInvalidState, "invalid_state"},
	{engine.ErrNoRollsLeft, "no_rolls_left"},
	{engine.ErrUnknownEvent, "unknown_event"},
	{engine.ErrEventAlreadyActive, "event_already_active"},
	{engine.ErrRewardNotFound, "reward_not_found"},
	{engine.ErrRewardExhausted, "reward_exhausted"},
	{engine.ErrAlreadyClaimed, "already_claimed"},
	{engine.ErrInsufficientScore, "insufficient_score"},
	{engine.ErrNotAdmin, "not_admin"},
	{engine.ErrInvalidCommand, "invalid_command"},
	{engine.ErrUnsupportedCommand, "unsupported_command"},
	{room.ErrClaimConflict, "claim_conflict"},
	{room.ErrCommitConflict, "room_busy"},
}

// ErrorCode returns the stable client-facing code for err, or "internal"
// for anything that is not a known transition failure.
func ErrorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "internal"
}
