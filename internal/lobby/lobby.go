// Package lobby fans committed room snapshots out to the clients watching
// one room. A lobby owns no game state: it follows the store subscription
// and forwards what was committed.
package lobby

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/dice-room-backend/internal/store"
)

const resubscribeDelay = 200 * time.Millisecond

type Msg interface{ isLobbyMsg() }

type Join struct {
	ClientID string
	Outbox   chan store.Snapshot // where this client wants to receive snapshots
}

func (Join) isLobbyMsg() {}

type Leave struct{ ClientID string }

func (Leave) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type View struct {
	Version    int64
	NumClients int
	Snapshot   store.Snapshot
}

type Subscriber interface {
	Subscribe(ctx context.Context, code string) (<-chan store.Snapshot, error)
}

type Lobby struct {
	code    string
	inbox   chan Msg
	snap    store.Snapshot
	clients map[string]chan store.Snapshot
	source  Subscriber
	feed    <-chan store.Snapshot
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	// mu orders Send against shutdown: once closed is set no message can
	// reach the inbox, so the final drain sees everything.
	mu     sync.RWMutex
	closed bool
}

// NewLobby subscribes to the room and starts the fan-out loop. It fails if
// the room does not exist.
func NewLobby(parent context.Context, code string, source Subscriber, log *zap.Logger) (*Lobby, error) {
	ctx, cancel := context.WithCancel(parent)

	feed, err := source.Subscribe(ctx, code)
	if err != nil {
		cancel()
		return nil, err
	}

	l := &Lobby{
		code:    code,
		inbox:   make(chan Msg, 64), // Small buffer
		clients: make(map[string]chan store.Snapshot),
		source:  source,
		feed:    feed,
		log:     log.With(zap.String("room", code)),
		ctx:     ctx,
		cancel:  cancel,
	}

	go l.loop()
	return l, nil
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case snap, ok := <-l.feed:
			if !ok {
				l.resubscribe()
				break
			}
			if snap.Version <= l.snap.Version {
				// replay after a resubscribe
				break
			}
			l.snap = snap
			l.broadcast(snap)

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				// Register client + send current snapshot immediately
				l.clients[msg.ClientID] = msg.Outbox
				if l.snap.Version > 0 {
					msg.Outbox <- l.snap
				}

			case Leave:
				if ch, ok := l.clients[msg.ClientID]; ok {
					close(ch)
					delete(l.clients, msg.ClientID)
				}
				if len(l.clients) == 0 {
					l.log.Debug("last client left, closing lobby")
					l.shutdown()
					return
				}

			case GetState:
				msg.Reply <- View{
					Version:    l.snap.Version,
					NumClients: len(l.clients),
					Snapshot:   l.snap,
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) resubscribe() {
	for l.ctx.Err() == nil {
		feed, err := l.source.Subscribe(l.ctx, l.code)
		if err == nil {
			l.feed = feed
			return
		}
		l.log.Warn("resubscribe failed", zap.Error(err))
		select {
		case <-l.ctx.Done():
		case <-time.After(resubscribeDelay):
		}
	}
}

func (l *Lobby) shutdown() {
	for id, ch := range l.clients {
		close(ch) // Tell client no more snapshots
		delete(l.clients, id)
	}
	l.cancel()

	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.drain()
}

// drain answers whatever was queued behind the shutdown. A pending Join
// gets its outbox closed so the caller knows to find a live lobby.
func (l *Lobby) drain() {
	for {
		select {
		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				close(msg.Outbox)
			case GetState:
				select {
				case msg.Reply <- View{Version: l.snap.Version, Snapshot: l.snap}:
				default:
				}
			}
		default:
			return
		}
	}
}

func (l *Lobby) broadcast(snap store.Snapshot) {
	for id, ch := range l.clients {
		select {
		case ch <- snap:
			//ok
		default:
			// Client is slow/full - drop them.
			l.log.Debug("dropping slow client", zap.String("client", id))
			close(ch)
			delete(l.clients, id)
		}
	}
}

// Inbox exposes the lobby's message channel to the hub and the ws layer.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Send delivers m unless the lobby has already shut down. A Join that is
// accepted here either registers or has its outbox closed.
func (l *Lobby) Send(m Msg) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed || l.ctx.Err() != nil {
		return false
	}
	select {
	case l.inbox <- m:
		return true
	case <-l.ctx.Done():
		return false
	}
}

// Done is closed once the lobby has shut down.
func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }
