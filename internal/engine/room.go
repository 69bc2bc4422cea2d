package engine

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

type EventType string

const (
	EventNone        EventType = ""
	EventDiceDouble  EventType = "dice_double"
	EventScoreDouble EventType = "score_double"
	EventBonusRoll   EventType = "bonus_roll"
)

type Effect string

const (
	EffectDiceDouble  Effect = "diceDouble"
	EffectScoreDouble Effect = "scoreDouble"
	EffectBonusRoll   Effect = "bonusRoll"
)

type Player struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Position      int             `json:"position"`
	Score         int             `json:"score"`
	DiceRolls     int             `json:"diceRolls"`
	FreeDiceRolls int             `json:"freeDiceRolls"`
	EventEffects  map[Effect]bool `json:"eventEffects"`
	Disconnected  bool            `json:"disconnected,omitempty"`
	JoinedAt      time.Time       `json:"joinedAt"`
}

type Reward struct {
	ID        string   `json:"id"`
	Name      string   `json:"name,omitempty"`
	Total     int      `json:"total"`
	Cost      int      `json:"cost,omitempty"`
	Claimed   int      `json:"claimed"`
	ClaimedBy []string `json:"claimedBy"`
}

func (r Reward) ClaimedByPlayer(playerID string) bool {
	return slices.Contains(r.ClaimedBy, playerID)
}

type ActiveEvent struct {
	Type      EventType     `json:"type"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}

// EndsAt is only meaningful while an event is active.
func (a ActiveEvent) EndsAt() time.Time { return a.StartedAt.Add(a.Duration) }

func (a ActiveEvent) Active() bool { return a.Type != EventNone }

type EventState struct {
	Active    ActiveEvent `json:"activeEvent"`
	Remaining []EventType `json:"remainingEvents"`
	// LastEndedAt anchors the scheduler's interval between events. It is
	// set when the game starts and whenever an event expires.
	LastEndedAt time.Time `json:"lastEndedAt"`
}

type LeaderboardEntry struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Position int    `json:"position"`
	Rank     int    `json:"rank"`
}

type RewardSpec struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Total int    `json:"total"`
	Cost  int    `json:"cost,omitempty"`
}

type Settings struct {
	TrackLength      int           `json:"trackLength"`
	MaxPlayers       int           `json:"maxPlayers"`
	InitialDiceRolls int           `json:"initialDiceRolls"`
	DiceFaces        int           `json:"diceFaces"`
	DiceCount        int           `json:"diceCount"`
	AllowLateJoin    bool          `json:"allowLateJoin"`
	EventDuration    time.Duration `json:"eventDuration"`
	EventInterval    time.Duration `json:"eventInterval"`
	Events           []EventType   `json:"events"`
	Rewards          []RewardSpec  `json:"rewards"`
}

func DefaultSettings() Settings {
	return Settings{
		TrackLength:      24,
		MaxPlayers:       8,
		InitialDiceRolls: 10,
		DiceFaces:        6,
		DiceCount:        1,
		EventDuration:    30 * time.Second,
		EventInterval:    60 * time.Second,
		Events:           []EventType{EventDiceDouble, EventScoreDouble, EventBonusRoll},
	}
}

type Room struct {
	Code        string                      `json:"code"`
	AdminID     string                      `json:"adminId"`
	Status      Status                      `json:"status"`
	Players     map[string]*Player          `json:"players"`
	Rewards     map[string]*Reward          `json:"rewards"`
	Events      EventState                  `json:"events"`
	Leaderboard map[string]LeaderboardEntry `json:"leaderboard"`
	CreatedAt   time.Time                   `json:"createdAt"`
	StartedAt   time.Time                   `json:"startedAt,omitzero"`
	EndedAt     time.Time                   `json:"endedAt,omitzero"`
	Settings    Settings                    `json:"settings"`
}

// NewRoom builds a waiting room with rewards and the event queue seeded
// from settings. Zero-valued settings fall back to DefaultSettings.
func NewRoom(code, adminID string, settings Settings, now time.Time) Room {
	settings = settings.withDefaults()

	rewards := make(map[string]*Reward, len(settings.Rewards))
	for _, spec := range settings.Rewards {
		rewards[spec.ID] = &Reward{
			ID:        spec.ID,
			Name:      spec.Name,
			Total:     spec.Total,
			Cost:      spec.Cost,
			ClaimedBy: []string{},
		}
	}

	return Room{
		Code:        code,
		AdminID:     adminID,
		Status:      StatusWaiting,
		Players:     map[string]*Player{},
		Rewards:     rewards,
		Events:      EventState{Remaining: slices.Clone(settings.Events)},
		Leaderboard: map[string]LeaderboardEntry{},
		CreatedAt:   now,
		Settings:    settings,
	}
}

// Validate rejects reward pools that could never satisfy the claim
// invariant and events the catalog does not know.
func (s Settings) Validate() error {
	seen := make(map[string]bool, len(s.Rewards))
	for _, r := range s.Rewards {
		if r.ID == "" || r.Total <= 0 || r.Cost < 0 {
			return fmt.Errorf("%w: reward %q needs an id, a positive total and a non-negative cost", ErrInvalidCommand, r.ID)
		}
		if seen[r.ID] {
			return fmt.Errorf("%w: duplicate reward %q", ErrInvalidCommand, r.ID)
		}
		seen[r.ID] = true
	}
	for _, e := range s.Events {
		if _, ok := LookupEvent(e); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownEvent, e)
		}
	}
	return nil
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.TrackLength <= 0 {
		s.TrackLength = d.TrackLength
	}
	if s.MaxPlayers <= 0 {
		s.MaxPlayers = d.MaxPlayers
	}
	if s.InitialDiceRolls < 0 {
		s.InitialDiceRolls = 0
	}
	if s.DiceFaces <= 0 {
		s.DiceFaces = d.DiceFaces
	}
	if s.DiceCount <= 0 {
		s.DiceCount = d.DiceCount
	}
	if s.EventDuration <= 0 {
		s.EventDuration = d.EventDuration
	}
	if s.EventInterval < 0 {
		s.EventInterval = 0
	}
	if s.Events == nil {
		s.Events = d.Events
	}
	return s
}

// Clone returns a deep copy so transitions never alias the caller's maps.
func (r Room) Clone() Room {
	out := r

	out.Players = make(map[string]*Player, len(r.Players))
	for id, p := range r.Players {
		cp := *p
		cp.EventEffects = maps.Clone(p.EventEffects)
		if cp.EventEffects == nil {
			cp.EventEffects = map[Effect]bool{}
		}
		out.Players[id] = &cp
	}

	out.Rewards = make(map[string]*Reward, len(r.Rewards))
	for id, rw := range r.Rewards {
		cp := *rw
		cp.ClaimedBy = slices.Clone(rw.ClaimedBy)
		out.Rewards[id] = &cp
	}

	out.Events.Remaining = slices.Clone(r.Events.Remaining)
	out.Leaderboard = maps.Clone(r.Leaderboard)
	if out.Leaderboard == nil {
		out.Leaderboard = map[string]LeaderboardEntry{}
	}
	out.Settings.Events = slices.Clone(r.Settings.Events)
	out.Settings.Rewards = slices.Clone(r.Settings.Rewards)
	return out
}
