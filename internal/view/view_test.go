package view

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/dice-room-backend/internal/engine"
	"github.com/DoyleJ11/dice-room-backend/internal/room"
	"github.com/DoyleJ11/dice-room-backend/internal/store"
	"github.com/DoyleJ11/dice-room-backend/pkg/types"
)

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "reward_exhausted", ErrorCode(engine.ErrRewardExhausted))
	assert.Equal(t, "claim_conflict", ErrorCode(room.ErrClaimConflict))
	assert.Equal(t, "invalid_state", ErrorCode(fmt.Errorf("%w: room is finished", engine.ErrInvalidState)))
	assert.Equal(t, "room_not_found", ErrorCode(store.ErrNotFound))
	assert.Equal(t, "internal", ErrorCode(fmt.Errorf("boom")))
}

func TestSnapshot(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	settings := engine.DefaultSettings()
	settings.Rewards = []engine.RewardSpec{{ID: "b", Total: 2}, {ID: "a", Total: 1}}
	r := engine.NewRoom("ABC123", "admin", settings, now)
	r.Players["p2"] = &engine.Player{ID: "p2", Name: "Bo", Score: 9, EventEffects: map[engine.Effect]bool{engine.EffectDiceDouble: true}}
	r.Players["p1"] = &engine.Player{ID: "p1", Name: "Ana", Score: 3, Disconnected: true, EventEffects: map[engine.Effect]bool{}}
	r.Leaderboard = engine.LeaderboardMap(engine.Standings(r.Players))
	r.Events.Active = engine.ActiveEvent{Type: engine.EventDiceDouble, StartedAt: now, Duration: 30 * time.Second}

	got := Snapshot(store.Snapshot{Version: 7, Room: r})

	assert.Equal(t, int64(7), got.Version)
	require.Len(t, got.Players, 2)
	assert.Equal(t, "p1", got.Players[0].ID)
	assert.False(t, got.Players[0].Connected)
	assert.True(t, got.Players[1].EventEffects["diceDouble"])
	require.Len(t, got.Rewards, 2)
	assert.Equal(t, "a", got.Rewards[0].ID)
	require.Len(t, got.Leaderboard, 2)
	assert.Equal(t, "p2", got.Leaderboard[0].PlayerID)
	assert.Equal(t, "dice_double", got.Events.Active)
	assert.Equal(t, now.Add(30*time.Second).UnixMilli(), got.Events.EndsAt)
}

func TestEngineSettings(t *testing.T) {
	base := engine.DefaultSettings()
	got := EngineSettings(base, types.Settings{
		MaxPlayers:       4,
		EventDurationSec: 10,
		Events:           []string{"score_double"},
		Rewards:          []types.RewardSpec{{ID: "gold", Total: 1, Cost: 20}},
	})

	assert.Equal(t, 4, got.MaxPlayers)
	assert.Equal(t, base.TrackLength, got.TrackLength)
	assert.Equal(t, 10*time.Second, got.EventDuration)
	assert.Equal(t, []engine.EventType{engine.EventScoreDouble}, got.Events)
	assert.Equal(t, []engine.RewardSpec{{ID: "gold", Total: 1, Cost: 20}}, got.Rewards)
}

func TestEngineSettings_ExplicitZeroValues(t *testing.T) {
	base := engine.DefaultSettings()
	base.AllowLateJoin = true

	var in types.Settings
	require.NoError(t, json.Unmarshal([]byte(`{"initial_dice_rolls":0,"allow_late_join":false,"events":[]}`), &in))
	got := EngineSettings(base, in)

	assert.Equal(t, 0, got.InitialDiceRolls)
	assert.False(t, got.AllowLateJoin)
	assert.NotNil(t, got.Events)
	assert.Empty(t, got.Events)

	var absent types.Settings
	require.NoError(t, json.Unmarshal([]byte(`{"max_players":3}`), &absent))
	got = EngineSettings(base, absent)

	assert.Equal(t, 3, got.MaxPlayers)
	assert.Equal(t, base.InitialDiceRolls, got.InitialDiceRolls)
	assert.True(t, got.AllowLateJoin)
	assert.Equal(t, base.Events, got.Events)
}

func TestSettings_RoundTrip(t *testing.T) {
	base := engine.DefaultSettings()
	base.InitialDiceRolls = 0
	base.Events = []engine.EventType{}

	assert.Equal(t, base, EngineSettings(engine.DefaultSettings(), Settings(base)))
}
