package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/DoyleJ11/dice-room-backend/internal/engine"
	"github.com/DoyleJ11/dice-room-backend/internal/hub"
	"github.com/DoyleJ11/dice-room-backend/internal/lobby"
	"github.com/DoyleJ11/dice-room-backend/internal/room"
	"github.com/DoyleJ11/dice-room-backend/internal/store"
	"github.com/DoyleJ11/dice-room-backend/internal/view"
	"github.com/DoyleJ11/dice-room-backend/pkg/types"
)

const (
	writeTimeout = 3 * time.Second
	readTimeout  = 30 * time.Second
	outboxSize   = 8
)

// Handler upgrades /ws?code=&player= to a websocket. Without a player the
// connection only watches the room.
func Handler(svc *room.Service, h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		player := r.URL.Query().Get("player")

		lb, err := h.Ensure(r.Context(), code)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Error("ensure lobby", zap.String("room", code), zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		if player != "" {
			snap, err := svc.Get(r.Context(), code)
			if err != nil {
				log.Error("read room", zap.String("room", code), zap.Error(err))
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			if _, ok := snap.Room.Players[player]; !ok {
				http.Error(w, "player not in room", http.StatusNotFound)
				return
			}
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		c := &client{
			id:     uuid.NewString(),
			code:   code,
			player: player,
			conn:   conn,
			svc:    svc,
			log:    log.With(zap.String("room", code), zap.String("player", player)),
		}

		// Presence changes only once the socket is up, and the disconnect
		// is registered before anything else can return.
		if player != "" {
			defer func() {
				// The request context is gone by now.
				ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
				defer cancel()
				if _, err := svc.SetConnected(ctx, code, player, false); err != nil {
					c.log.Warn("mark disconnected", zap.Error(err))
				}
			}()
			if _, err := svc.SetConnected(r.Context(), code, player, true); err != nil {
				c.log.Warn("mark connected", zap.Error(err))
			}
		}

		out := make(chan store.Snapshot, outboxSize)
		if !lb.Send(lobby.Join{ClientID: c.id, Outbox: out}) {
			conn.Close(websocket.StatusTryAgainLater, "room closing")
			return
		}
		defer lb.Send(lobby.Leave{ClientID: c.id})

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go c.writeLoop(writeCtx, out)

		c.readLoop(r.Context())
	}
}

type client struct {
	id     string
	code   string
	player string
	conn   *websocket.Conn
	svc    *room.Service
	log    *zap.Logger
}

// writeLoop forwards lobby snapshots until the lobby closes the outbox,
// then closes the connection so the reader stops too.
func (c *client) writeLoop(ctx context.Context, out <-chan store.Snapshot) {
	for snap := range out {
		s := view.Snapshot(snap)
		c.send(ctx, types.ServerMessage{Type: types.ServerStateSnapshot, Version: snap.Version, Snapshot: &s})
	}
	if ctx.Err() == nil {
		c.conn.Close(websocket.StatusGoingAway, "room closed")
	}
}

func (c *client) readLoop(ctx context.Context) {
	for {
		rctx, cancel := context.WithTimeout(ctx, readTimeout)
		_, data, err := c.conn.Read(rctx)
		cancel()
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				c.log.Debug("read ended", zap.Error(err))
			}
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			c.send(ctx, types.ServerMessage{Type: types.ServerError, Code: "bad_json", Error: "bad json"})
			continue
		}
		c.handle(ctx, cm)
	}
}

func (c *client) handle(ctx context.Context, cm types.ClientMessage) {
	if c.player == "" && cm.Type != types.ClientExpireEvent {
		c.send(ctx, types.ServerMessage{Type: types.ServerError, Code: "missing_player", Error: "connect with a player to send commands"})
		return
	}

	var (
		res room.Result
		die int
		err error
	)
	switch cm.Type {
	case types.ClientRoll:
		die, res, err = c.svc.Roll(ctx, c.code, c.player)
	case types.ClientClaim:
		res, err = c.svc.Claim(ctx, c.code, c.player, cm.RewardID)
	case types.ClientTriggerEvent:
		res, err = c.svc.TriggerEvent(ctx, c.code, c.player, engine.EventType(cm.Event))
	case types.ClientExpireEvent:
		res, err = c.svc.ExpireEvent(ctx, c.code)
	case types.ClientStart:
		res, err = c.svc.Start(ctx, c.code, c.player)
	case types.ClientEnd:
		res, err = c.svc.End(ctx, c.code, c.player)
	default:
		c.send(ctx, types.ServerMessage{Type: types.ServerError, Code: "unknown_type", Error: "unknown type"})
		return
	}

	if err != nil {
		code := view.ErrorCode(err)
		if code == "internal" {
			c.log.Error("command failed", zap.String("type", cm.Type), zap.Error(err))
		}
		c.send(ctx, types.ServerMessage{Type: types.ServerError, Code: code, Error: err.Error()})
		return
	}

	msg := types.ServerMessage{Type: types.ServerAck, Version: res.Snapshot.Version, Changes: view.Changes(res.Changes)}
	if cm.Type == types.ClientRoll {
		msg.Type = types.ServerRollResult
		msg.Die = die
	}
	c.send(ctx, msg)
}

func (c *client) send(ctx context.Context, msg types.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("marshal message", zap.Error(err))
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = c.conn.Write(wctx, websocket.MessageText, payload)
}
