// Package view converts committed room state into the wire shapes in
// pkg/types, and client settings back into engine settings.
package view

import (
	"cmp"
	"slices"
	"time"

	"github.com/DoyleJ11/dice-room-backend/internal/engine"
	"github.com/DoyleJ11/dice-room-backend/internal/store"
	"github.com/DoyleJ11/dice-room-backend/pkg/types"
)

func Snapshot(snap store.Snapshot) types.Snapshot {
	r := snap.Room
	out := types.Snapshot{
		Version:     snap.Version,
		Code:        r.Code,
		AdminID:     r.AdminID,
		Status:      string(r.Status),
		Players:     make([]types.Player, 0, len(r.Players)),
		Rewards:     make([]types.Reward, 0, len(r.Rewards)),
		Leaderboard: Leaderboard(r.RankedLeaderboard()),
		StartedAt:   millis(r.StartedAt),
		EndedAt:     millis(r.EndedAt),
		Settings:    Settings(r.Settings),
	}

	for _, p := range r.Players {
		effects := make(map[string]bool, len(p.EventEffects))
		for k, v := range p.EventEffects {
			effects[string(k)] = v
		}
		out.Players = append(out.Players, types.Player{
			ID:            p.ID,
			Name:          p.Name,
			Position:      p.Position,
			Score:         p.Score,
			DiceRolls:     p.DiceRolls,
			FreeDiceRolls: p.FreeDiceRolls,
			EventEffects:  effects,
			Connected:     !p.Disconnected,
		})
	}
	slices.SortFunc(out.Players, func(a, b types.Player) int { return cmp.Compare(a.ID, b.ID) })

	for _, rw := range r.Rewards {
		out.Rewards = append(out.Rewards, types.Reward{
			ID:        rw.ID,
			Name:      rw.Name,
			Total:     rw.Total,
			Cost:      rw.Cost,
			Claimed:   rw.Claimed,
			ClaimedBy: slices.Clone(rw.ClaimedBy),
		})
	}
	slices.SortFunc(out.Rewards, func(a, b types.Reward) int { return cmp.Compare(a.ID, b.ID) })

	out.Events.Remaining = make([]string, 0, len(r.Events.Remaining))
	for _, e := range r.Events.Remaining {
		out.Events.Remaining = append(out.Events.Remaining, string(e))
	}
	if a := r.Events.Active; a.Active() {
		out.Events.Active = string(a.Type)
		out.Events.StartedAt = millis(a.StartedAt)
		out.Events.EndsAt = millis(a.EndsAt())
	}
	return out
}

func Leaderboard(entries []engine.LeaderboardEntry) []types.LeaderboardEntry {
	out := make([]types.LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, types.LeaderboardEntry{
			Rank:     e.Rank,
			PlayerID: e.PlayerID,
			Name:     e.Name,
			Score:    e.Score,
			Position: e.Position,
		})
	}
	return out
}

func Changes(changes []engine.Change) []types.Change {
	out := make([]types.Change, 0, len(changes))
	for _, c := range changes {
		out = append(out, types.Change{
			Type:     string(c.Type),
			PlayerID: c.PlayerID,
			RewardID: c.RewardID,
			Event:    string(c.Event),
			Value:    c.Value,
		})
	}
	return out
}

func Settings(s engine.Settings) types.Settings {
	out := types.Settings{
		TrackLength:      s.TrackLength,
		MaxPlayers:       s.MaxPlayers,
		InitialDiceRolls: &s.InitialDiceRolls,
		DiceFaces:        s.DiceFaces,
		DiceCount:        s.DiceCount,
		AllowLateJoin:    &s.AllowLateJoin,
		EventDurationSec: int(s.EventDuration / time.Second),
		EventIntervalSec: int(s.EventInterval / time.Second),
		Events:           make([]string, 0, len(s.Events)),
	}
	for _, e := range s.Events {
		out.Events = append(out.Events, string(e))
	}
	for _, r := range s.Rewards {
		out.Rewards = append(out.Rewards, types.RewardSpec{ID: r.ID, Name: r.Name, Total: r.Total, Cost: r.Cost})
	}
	return out
}

// EngineSettings overlays the fields a client set onto base. Unset
// fields keep the value from base.
func EngineSettings(base engine.Settings, in types.Settings) engine.Settings {
	out := base
	if in.TrackLength > 0 {
		out.TrackLength = in.TrackLength
	}
	if in.MaxPlayers > 0 {
		out.MaxPlayers = in.MaxPlayers
	}
	if in.InitialDiceRolls != nil {
		out.InitialDiceRolls = *in.InitialDiceRolls
	}
	if in.DiceFaces > 0 {
		out.DiceFaces = in.DiceFaces
	}
	if in.DiceCount > 0 {
		out.DiceCount = in.DiceCount
	}
	if in.AllowLateJoin != nil {
		out.AllowLateJoin = *in.AllowLateJoin
	}
	if in.EventDurationSec > 0 {
		out.EventDuration = time.Duration(in.EventDurationSec) * time.Second
	}
	if in.EventIntervalSec > 0 {
		out.EventInterval = time.Duration(in.EventIntervalSec) * time.Second
	}
	// nil means the field was absent; an empty list disables events.
	if in.Events != nil {
		out.Events = make([]engine.EventType, 0, len(in.Events))
		for _, e := range in.Events {
			out.Events = append(out.Events, engine.EventType(e))
		}
	}
	if len(in.Rewards) > 0 {
		out.Rewards = make([]engine.RewardSpec, 0, len(in.Rewards))
		for _, r := range in.Rewards {
			out.Rewards = append(out.Rewards, engine.RewardSpec{ID: r.ID, Name: r.Name, Total: r.Total, Cost: r.Cost})
		}
	}
	return out
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
