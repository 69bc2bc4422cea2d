package engine

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"time"
)

type CommandType string

const (
	CmdJoinRoom     CommandType = "JoinRoom"
	CmdStartGame    CommandType = "StartGame"
	CmdRollDice     CommandType = "RollDice"
	CmdClaimReward  CommandType = "ClaimReward"
	CmdTriggerEvent CommandType = "TriggerEvent"
	CmdExpireEvent  CommandType = "ExpireEvent"
	CmdEndGame      CommandType = "EndGame"
	CmdSetConnected CommandType = "SetConnected"
)

/*
	CmdJoinRoom      -> ChangePlayerJoined
	CmdStartGame     -> ChangeGameStarted
	CmdRollDice      -> ChangeDiceRolled (Value = die shown to the roller)
	CmdClaimReward   -> ChangeRewardClaimed
	CmdTriggerEvent  -> ChangeEventTriggered
	CmdExpireEvent   -> ChangeEventExpired, or nothing when no event is due
	CmdEndGame       -> ChangeGameEnded
	CmdSetConnected  -> ChangePresence
*/

// SystemActor is the actor id used by the scheduler. Admin-only commands
// accept it in place of the room admin.
const SystemActor = ""

type Command struct {
	Type      CommandType
	ActorID   string
	PlayerID  string
	Name      string
	Event     EventType
	RewardID  string
	Connected bool
	At        time.Time
}

type ChangeType string

const (
	ChangePlayerJoined   ChangeType = "PlayerJoined"
	ChangeGameStarted    ChangeType = "GameStarted"
	ChangeDiceRolled     ChangeType = "DiceRolled"
	ChangeRewardClaimed  ChangeType = "RewardClaimed"
	ChangeEventTriggered ChangeType = "EventTriggered"
	ChangeEventExpired   ChangeType = "EventExpired"
	ChangeGameEnded      ChangeType = "GameEnded"
	ChangePresence       ChangeType = "Presence"
)

type Change struct {
	Type     ChangeType `json:"type"`
	PlayerID string     `json:"playerId,omitempty"`
	RewardID string     `json:"rewardId,omitempty"`
	Event    EventType  `json:"event,omitempty"`
	Value    int        `json:"value,omitempty"`
}

// Engine computes room transitions. It holds no room state; Roll is the
// only source of randomness and can be replaced in tests.
type Engine struct {
	Roll func(faces int) int
}

func New() *Engine {
	return &Engine{Roll: rollDie}
}

func rollDie(faces int) int {
	return rand.IntN(faces) + 1
}

// Apply validates cmd against s and returns the resulting room. On error
// the returned room is s, untouched.
func (e *Engine) Apply(s Room, cmd Command) ([]Change, Room, error) {
	now := cmd.At
	if now.IsZero() {
		now = time.Now()
	}

	next := s.Clone()

	var (
		changes []Change
		err     error
	)
	switch cmd.Type {
	case CmdJoinRoom:
		changes, err = joinRoom(&next, cmd, now)
	case CmdStartGame:
		changes, err = startGame(&next, cmd, now)
	case CmdRollDice:
		changes, err = e.rollDice(&next, cmd)
	case CmdClaimReward:
		changes, err = claimReward(&next, cmd)
	case CmdTriggerEvent:
		changes, err = triggerEvent(&next, cmd, now)
	case CmdExpireEvent:
		changes, err = expireEvent(&next, now)
	case CmdEndGame:
		changes, err = endGame(&next, cmd, now)
	case CmdSetConnected:
		changes, err = setConnected(&next, cmd)
	default:
		err = ErrUnsupportedCommand
	}
	if err != nil {
		return nil, s, err
	}
	if len(changes) == 0 {
		return nil, s, nil
	}

	if next.Status != StatusFinished {
		next.Leaderboard = LeaderboardMap(Standings(next.Players))
	}
	return changes, next, nil
}

func joinRoom(s *Room, cmd Command, now time.Time) ([]Change, error) {
	if cmd.PlayerID == "" {
		return nil, fmt.Errorf("%w: missing player id", ErrInvalidCommand)
	}

	switch s.Status {
	case StatusWaiting:
	case StatusPlaying:
		if !s.Settings.AllowLateJoin {
			return nil, fmt.Errorf("%w: game already started", ErrInvalidState)
		}
	default:
		return nil, fmt.Errorf("%w: game finished", ErrInvalidState)
	}

	if _, ok := s.Players[cmd.PlayerID]; ok {
		return nil, ErrAlreadyJoined
	}
	if len(s.Players) >= s.Settings.MaxPlayers {
		return nil, ErrRoomFull
	}

	name := cmd.Name
	if name == "" {
		name = cmd.PlayerID
	}
	p := &Player{
		ID:           cmd.PlayerID,
		Name:         name,
		DiceRolls:    s.Settings.InitialDiceRolls,
		EventEffects: map[Effect]bool{},
		JoinedAt:     now,
	}
	// Event effects are global, so a late joiner picks up the active one.
	if def, ok := LookupEvent(s.Events.Active.Type); ok {
		p.EventEffects[def.Effect] = true
	}
	s.Players[p.ID] = p

	return []Change{{Type: ChangePlayerJoined, PlayerID: p.ID}}, nil
}

func startGame(s *Room, cmd Command, now time.Time) ([]Change, error) {
	if err := requireAdmin(s, cmd); err != nil {
		return nil, err
	}
	if s.Status != StatusWaiting {
		return nil, fmt.Errorf("%w: room is %s", ErrInvalidState, s.Status)
	}
	if len(s.Players) == 0 {
		return nil, fmt.Errorf("%w: no players", ErrInvalidState)
	}

	s.Status = StatusPlaying
	s.StartedAt = now
	s.Events.LastEndedAt = now
	return []Change{{Type: ChangeGameStarted}}, nil
}

func (e *Engine) rollDice(s *Room, cmd Command) ([]Change, error) {
	if s.Status != StatusPlaying {
		return nil, fmt.Errorf("%w: room is %s", ErrInvalidState, s.Status)
	}
	p, ok := s.Players[cmd.PlayerID]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	if p.DiceRolls == 0 && p.FreeDiceRolls == 0 {
		return nil, ErrNoRollsLeft
	}

	roll := e.Roll
	if roll == nil {
		roll = rollDie
	}
	die := 0
	for range s.Settings.DiceCount {
		die += roll(s.Settings.DiceFaces)
	}
	if p.EventEffects[EffectDiceDouble] {
		die *= 2
	}
	multiplier := 1
	if p.EventEffects[EffectScoreDouble] {
		multiplier = 2
	}

	p.Position = (p.Position + die) % s.Settings.TrackLength
	p.Score += die * multiplier
	if p.FreeDiceRolls > 0 {
		p.FreeDiceRolls--
	} else {
		p.DiceRolls--
	}

	return []Change{{Type: ChangeDiceRolled, PlayerID: p.ID, Value: die}}, nil
}

func claimReward(s *Room, cmd Command) ([]Change, error) {
	if s.Status != StatusPlaying {
		return nil, fmt.Errorf("%w: room is %s", ErrInvalidState, s.Status)
	}
	p, ok := s.Players[cmd.PlayerID]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	r, ok := s.Rewards[cmd.RewardID]
	if !ok {
		return nil, ErrRewardNotFound
	}
	if r.ClaimedByPlayer(p.ID) {
		return nil, ErrAlreadyClaimed
	}
	if r.Claimed >= r.Total {
		return nil, ErrRewardExhausted
	}
	if p.Score < r.Cost {
		return nil, ErrInsufficientScore
	}

	r.Claimed++
	r.ClaimedBy = append(r.ClaimedBy, p.ID)
	return []Change{{Type: ChangeRewardClaimed, PlayerID: p.ID, RewardID: r.ID, Value: r.Claimed}}, nil
}

func triggerEvent(s *Room, cmd Command, now time.Time) ([]Change, error) {
	if err := requireAdmin(s, cmd); err != nil {
		return nil, err
	}
	if s.Status != StatusPlaying {
		return nil, fmt.Errorf("%w: room is %s", ErrInvalidState, s.Status)
	}
	if s.Events.Active.Active() {
		return nil, ErrEventAlreadyActive
	}
	def, ok := LookupEvent(cmd.Event)
	if !ok {
		return nil, ErrUnknownEvent
	}
	idx := slices.Index(s.Events.Remaining, cmd.Event)
	if idx < 0 {
		return nil, ErrUnknownEvent
	}

	s.Events.Remaining = slices.Delete(s.Events.Remaining, idx, idx+1)
	s.Events.Active = ActiveEvent{
		Type:      def.Type,
		StartedAt: now,
		Duration:  s.Settings.EventDuration,
	}
	for _, p := range s.Players {
		p.EventEffects[def.Effect] = true
		p.FreeDiceRolls += def.FreeRolls
	}

	return []Change{{Type: ChangeEventTriggered, Event: def.Type}}, nil
}

// expireEvent is a no-op unless an event is active and its duration has
// elapsed, so redundant callers never double-expire.
func expireEvent(s *Room, now time.Time) ([]Change, error) {
	active := s.Events.Active
	if !active.Active() || now.Before(active.EndsAt()) {
		return nil, nil
	}

	if def, ok := LookupEvent(active.Type); ok {
		for _, p := range s.Players {
			delete(p.EventEffects, def.Effect)
		}
	}
	s.Events.Active = ActiveEvent{}
	s.Events.LastEndedAt = now

	return []Change{{Type: ChangeEventExpired, Event: active.Type}}, nil
}

func endGame(s *Room, cmd Command, now time.Time) ([]Change, error) {
	if err := requireAdmin(s, cmd); err != nil {
		return nil, err
	}
	if s.Status != StatusPlaying {
		return nil, fmt.Errorf("%w: room is %s", ErrInvalidState, s.Status)
	}

	s.Status = StatusFinished
	s.EndedAt = now
	// Final standings; Apply leaves the leaderboard alone from here on.
	s.Leaderboard = LeaderboardMap(Standings(s.Players))
	return []Change{{Type: ChangeGameEnded}}, nil
}

func setConnected(s *Room, cmd Command) ([]Change, error) {
	p, ok := s.Players[cmd.PlayerID]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	if p.Disconnected == !cmd.Connected {
		return nil, nil
	}
	p.Disconnected = !cmd.Connected

	value := 0
	if cmd.Connected {
		value = 1
	}
	return []Change{{Type: ChangePresence, PlayerID: p.ID, Value: value}}, nil
}

func requireAdmin(s *Room, cmd Command) error {
	if cmd.ActorID == SystemActor || cmd.ActorID == s.AdminID {
		return nil
	}
	return ErrNotAdmin
}

// RolledValue returns the die value from a RollDice transition.
func RolledValue(changes []Change) (int, bool) {
	for _, c := range changes {
		if c.Type == ChangeDiceRolled {
			return c.Value, true
		}
	}
	return 0, false
}
