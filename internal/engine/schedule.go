package engine

import "time"

// NextScheduled decides which time-driven command, if any, is due for s
// at now. Expiry wins over triggering; events are consumed in queue order.
func NextScheduled(s Room, now time.Time) (Command, bool) {
	if s.Status != StatusPlaying {
		return Command{}, false
	}

	if active := s.Events.Active; active.Active() {
		if now.Before(active.EndsAt()) {
			return Command{}, false
		}
		return Command{Type: CmdExpireEvent, ActorID: SystemActor, At: now}, true
	}

	if len(s.Events.Remaining) == 0 {
		return Command{}, false
	}
	if now.Before(s.Events.LastEndedAt.Add(s.Settings.EventInterval)) {
		return Command{}, false
	}
	return Command{
		Type:    CmdTriggerEvent,
		ActorID: SystemActor,
		Event:   s.Events.Remaining[0],
		At:      now,
	}, true
}
