package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/dice-room-backend/internal/lobby"
)

type HubMsg interface{ isHubMsg() }

type Ensured struct {
	Lobby *lobby.Lobby
	Err   error
}

type GetLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

// EnsureLobby returns the running lobby for Code, starting one if none is
// running. Err is set when the room does not exist.
type EnsureLobby struct {
	Code  string
	Reply chan Ensured
}

type CountLobbies struct {
	Reply chan int
}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	source  lobby.Subscriber
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

type ShutdownHub struct{}

func (GetLobby) isHubMsg()     {}
func (EnsureLobby) isHubMsg()  {}
func (CountLobbies) isHubMsg() {}
func (ShutdownHub) isHubMsg()  {}

func NewHub(parent context.Context, source lobby.Subscriber, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		source:  source,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Ensure is the blocking form of EnsureLobby.
func (h *Hub) Ensure(ctx context.Context, code string) (*lobby.Lobby, error) {
	reply := make(chan Ensured, 1)
	select {
	case h.inbox <- EnsureLobby{Code: code, Reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, context.Canceled
	}
	select {
	case res := <-reply:
		return res.Lobby, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetLobby:
				msg.Reply <- h.live(msg.Code) // May be nil

			case EnsureLobby:
				if lb := h.live(msg.Code); lb != nil {
					msg.Reply <- Ensured{Lobby: lb}
					break
				}
				lb, err := lobby.NewLobby(h.ctx, msg.Code, h.source, h.log)
				if err != nil {
					msg.Reply <- Ensured{Err: err}
					break
				}
				h.lobbies[msg.Code] = lb
				msg.Reply <- Ensured{Lobby: lb}

			case CountLobbies:
				n := 0
				for code := range h.lobbies {
					if h.live(code) != nil {
						n++
					}
				}
				msg.Reply <- n

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// live returns the lobby for code if it is still running, forgetting it
// otherwise. Lobbies close themselves when their last client leaves.
func (h *Hub) live(code string) *lobby.Lobby {
	lb := h.lobbies[code]
	if lb == nil {
		return nil
	}
	select {
	case <-lb.Done():
		delete(h.lobbies, code)
		return nil
	default:
		return lb
	}
}

func (h *Hub) shutdown() {
	for code, lb := range h.lobbies {
		lb.Send(lobby.Shutdown{})
		delete(h.lobbies, code)
	}
	h.cancel()
}
