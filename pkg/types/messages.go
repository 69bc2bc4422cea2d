// Package types holds the JSON shapes exchanged with clients over the
// websocket and REST endpoints.
package types

// Client -> Server (websocket)
//
//	Roll:         {}
//	Claim:        reward_id
//	TriggerEvent: event ("dice_double" | "score_double" | "bonus_roll"), admin only
//	ExpireEvent:  {}
//	Start, End:   {}, admin only
type ClientMessage struct {
	Type     string `json:"type"`
	RewardID string `json:"reward_id,omitempty"`
	Event    string `json:"event,omitempty"`
}

const (
	ClientRoll         = "Roll"
	ClientClaim        = "Claim"
	ClientTriggerEvent = "TriggerEvent"
	ClientExpireEvent  = "ExpireEvent"
	ClientStart        = "Start"
	ClientEnd          = "End"
)

// Server -> Client (websocket)
//
//	StateSnapshot: version, snapshot
//	RollResult:    die, version (sent only to the roller; the snapshot follows)
//	Ack:           version, changes
//	Error:         code, error
type ServerMessage struct {
	Type     string    `json:"type"`
	Version  int64     `json:"version,omitempty"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Die      int       `json:"die,omitempty"`
	Changes  []Change  `json:"changes,omitempty"`
	Code     string    `json:"code,omitempty"`
	Error    string    `json:"error,omitempty"`
}

const (
	ServerStateSnapshot = "StateSnapshot"
	ServerRollResult    = "RollResult"
	ServerAck           = "Ack"
	ServerError         = "Error"
)

type Change struct {
	Type     string `json:"type"`
	PlayerID string `json:"player_id,omitempty"`
	RewardID string `json:"reward_id,omitempty"`
	Event    string `json:"event,omitempty"`
	Value    int    `json:"value,omitempty"`
}

// REST bodies

type CreateRoomRequest struct {
	AdminID  string    `json:"admin_id"`
	Settings *Settings `json:"settings,omitempty"`
}

type JoinRoomRequest struct {
	PlayerID string `json:"player_id,omitempty"`
	Name     string `json:"name"`
}

type TriggerEventRequest struct {
	Event string `json:"event"`
}

type RollResponse struct {
	Die      int      `json:"die"`
	Snapshot Snapshot `json:"snapshot"`
}

type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}
