package engine

import "errors"

var ErrRoomFull = errors.New("room full")
var ErrAlreadyJoined = errors.New("player already joined")
var ErrPlayerNotFound = errors.New("player not found")
var ErrInvalidState = errors.New("action not allowed in current room state")
var ErrNoRollsLeft = errors.New("no dice rolls left")
var ErrUnknownEvent = errors.New("unknown event")
var ErrEventAlreadyActive = errors.New("event already active")
var ErrRewardNotFound = errors.New("reward not found")
var ErrRewardExhausted = errors.New("reward exhausted")
var ErrAlreadyClaimed = errors.New("reward already claimed by player")
var ErrInsufficientScore = errors.New("score too low for reward")
var ErrNotAdmin = errors.New("only the room admin may do that")
var ErrInvalidCommand = errors.New("invalid command")
var ErrUnsupportedCommand = errors.New("unsupported command")
