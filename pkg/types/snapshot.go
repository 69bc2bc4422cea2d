package types

type Snapshot struct {
	Version     int64              `json:"version"`
	Code        string             `json:"code"`
	AdminID     string             `json:"admin_id"`
	Status      string             `json:"status"`
	Players     []Player           `json:"players"`
	Rewards     []Reward           `json:"rewards"`
	Events      Events             `json:"events"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	StartedAt   int64              `json:"started_at_ms,omitempty"`
	EndedAt     int64              `json:"ended_at_ms,omitempty"`
	Settings    Settings           `json:"settings"`
}

type Player struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Position      int             `json:"position"`
	Score         int             `json:"score"`
	DiceRolls     int             `json:"dice_rolls"`
	FreeDiceRolls int             `json:"free_dice_rolls"`
	EventEffects  map[string]bool `json:"event_effects"`
	Connected     bool            `json:"connected"`
}

type Reward struct {
	ID        string   `json:"id"`
	Name      string   `json:"name,omitempty"`
	Total     int      `json:"total"`
	Cost      int      `json:"cost,omitempty"`
	Claimed   int      `json:"claimed"`
	ClaimedBy []string `json:"claimed_by"`
}

type Events struct {
	Active    string   `json:"active,omitempty"`
	StartedAt int64    `json:"started_at_ms,omitempty"`
	EndsAt    int64    `json:"ends_at_ms,omitempty"`
	Remaining []string `json:"remaining"`
}

type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Position int    `json:"position"`
}

type RewardSpec struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Total int    `json:"total"`
	Cost  int    `json:"cost,omitempty"`
}

// Settings on a create request override the server defaults field by
// field. Zero numbers keep the default, except InitialDiceRolls, which is
// a pointer so that 0 can be asked for. AllowLateJoin is a pointer for
// the same reason. A present but empty events list means no events; an
// absent one keeps the default catalogue.
type Settings struct {
	TrackLength      int          `json:"track_length,omitempty"`
	MaxPlayers       int          `json:"max_players,omitempty"`
	InitialDiceRolls *int         `json:"initial_dice_rolls,omitempty"`
	DiceFaces        int          `json:"dice_faces,omitempty"`
	DiceCount        int          `json:"dice_count,omitempty"`
	AllowLateJoin    *bool        `json:"allow_late_join,omitempty"`
	EventDurationSec int          `json:"event_duration_sec,omitempty"`
	EventIntervalSec int          `json:"event_interval_sec,omitempty"`
	Events           []string     `json:"events"`
	Rewards          []RewardSpec `json:"rewards,omitempty"`
}
