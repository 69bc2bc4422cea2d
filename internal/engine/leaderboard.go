package engine

import (
	"cmp"
	"slices"
)

// Standings ranks players by score, then by track position. Player id is
// the last tie-break so equal inputs always produce the same order.
func Standings(players map[string]*Player) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(players))
	for _, p := range players {
		entries = append(entries, LeaderboardEntry{
			PlayerID: p.ID,
			Name:     p.Name,
			Score:    p.Score,
			Position: p.Position,
		})
	}

	slices.SortFunc(entries, func(a, b LeaderboardEntry) int {
		return cmp.Or(
			cmp.Compare(b.Score, a.Score),
			cmp.Compare(b.Position, a.Position),
			cmp.Compare(a.PlayerID, b.PlayerID),
		)
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func LeaderboardMap(entries []LeaderboardEntry) map[string]LeaderboardEntry {
	out := make(map[string]LeaderboardEntry, len(entries))
	for _, e := range entries {
		out[e.PlayerID] = e
	}
	return out
}

// RankedLeaderboard returns the room's stored leaderboard in rank order.
func (r Room) RankedLeaderboard() []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(r.Leaderboard))
	for _, e := range r.Leaderboard {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b LeaderboardEntry) int {
		return cmp.Compare(a.Rank, b.Rank)
	})
	return entries
}
