package engine

type EventDef struct {
	Type   EventType
	Effect Effect
	// FreeRolls is granted to every joined player when the event starts.
	FreeRolls int
}

var EventCatalog = map[EventType]EventDef{
	EventDiceDouble:  {Type: EventDiceDouble, Effect: EffectDiceDouble},
	EventScoreDouble: {Type: EventScoreDouble, Effect: EffectScoreDouble},
	EventBonusRoll:   {Type: EventBonusRoll, Effect: EffectBonusRoll, FreeRolls: 1},
}

func LookupEvent(t EventType) (EventDef, bool) {
	def, ok := EventCatalog[t]
	return def, ok
}
