package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/dice-room-backend/internal/engine"
	"github.com/DoyleJ11/dice-room-backend/internal/room"
	"github.com/DoyleJ11/dice-room-backend/internal/store"
	"github.com/DoyleJ11/dice-room-backend/internal/view"
	"github.com/DoyleJ11/dice-room-backend/pkg/types"
)

// PlayerHeader carries the caller's player id. Identity is trusted as sent.
const PlayerHeader = "X-Player-ID"

type Handlers struct {
	svc      *room.Service
	defaults engine.Settings
	log      *zap.Logger
}

func NewHandlers(svc *room.Service, defaults engine.Settings, log *zap.Logger) *Handlers {
	return &Handlers{svc: svc, defaults: defaults, log: log}
}

func (h *Handlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req types.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "bad json")
		return
	}
	if req.AdminID == "" {
		req.AdminID = r.Header.Get(PlayerHeader)
	}

	var settings *engine.Settings
	if req.Settings != nil {
		s := view.EngineSettings(h.defaults, *req.Settings)
		settings = &s
	}

	snap, err := h.svc.Create(r.Context(), req.AdminID, settings)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view.Snapshot(snap))
}

func (h *Handlers) GetRoom(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Snapshot(snap))
}

func (h *Handlers) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.svc.Leaderboard(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Leaderboard(board))
}

func (h *Handlers) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req types.JoinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "bad json")
		return
	}
	if req.PlayerID == "" {
		req.PlayerID = r.Header.Get(PlayerHeader)
	}
	if req.PlayerID == "" {
		req.PlayerID = uuid.NewString()
	}

	res, err := h.svc.Join(r.Context(), chi.URLParam(r, "code"), req.PlayerID, req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view.Snapshot(res.Snapshot))
}

func (h *Handlers) StartGame(w http.ResponseWriter, r *http.Request) {
	h.asPlayer(w, r, func(player string) (room.Result, error) {
		return h.svc.Start(r.Context(), chi.URLParam(r, "code"), player)
	})
}

func (h *Handlers) EndGame(w http.ResponseWriter, r *http.Request) {
	h.asPlayer(w, r, func(player string) (room.Result, error) {
		return h.svc.End(r.Context(), chi.URLParam(r, "code"), player)
	})
}

func (h *Handlers) RollDice(w http.ResponseWriter, r *http.Request) {
	player := r.Header.Get(PlayerHeader)
	if player == "" {
		writeError(w, http.StatusBadRequest, "missing_player", "missing "+PlayerHeader)
		return
	}
	die, res, err := h.svc.Roll(r.Context(), chi.URLParam(r, "code"), player)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.RollResponse{Die: die, Snapshot: view.Snapshot(res.Snapshot)})
}

func (h *Handlers) ClaimReward(w http.ResponseWriter, r *http.Request) {
	h.asPlayer(w, r, func(player string) (room.Result, error) {
		return h.svc.Claim(r.Context(), chi.URLParam(r, "code"), player, chi.URLParam(r, "rewardID"))
	})
}

func (h *Handlers) TriggerEvent(w http.ResponseWriter, r *http.Request) {
	var req types.TriggerEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "bad json")
		return
	}
	h.asPlayer(w, r, func(player string) (room.Result, error) {
		return h.svc.TriggerEvent(r.Context(), chi.URLParam(r, "code"), player, engine.EventType(req.Event))
	})
}

func (h *Handlers) ExpireEvent(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ExpireEvent(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Snapshot(res.Snapshot))
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// asPlayer requires the player header. Admin commands need it too: an
// empty actor would otherwise pass as the scheduler.
func (h *Handlers) asPlayer(w http.ResponseWriter, r *http.Request, fn func(player string) (room.Result, error)) {
	player := r.Header.Get(PlayerHeader)
	if player == "" {
		writeError(w, http.StatusBadRequest, "missing_player", "missing "+PlayerHeader)
		return
	}
	res, err := fn(player)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Snapshot(res.Snapshot))
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, status, "internal", "internal error")
		return
	}
	writeError(w, status, view.ErrorCode(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, engine.ErrPlayerNotFound),
		errors.Is(err, engine.ErrRewardNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidCommand),
		errors.Is(err, engine.ErrUnknownEvent),
		errors.Is(err, engine.ErrUnsupportedCommand):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotAdmin):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrRewardExhausted):
		return http.StatusGone
	case errors.Is(err, room.ErrClaimConflict),
		errors.Is(err, room.ErrCommitConflict):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrRoomFull),
		errors.Is(err, engine.ErrAlreadyJoined),
		errors.Is(err, engine.ErrInvalidState),
		errors.Is(err, engine.ErrNoRollsLeft),
		errors.Is(err, engine.ErrEventAlreadyActive),
		errors.Is(err, engine.ErrAlreadyClaimed),
		errors.Is(err, engine.ErrInsufficientScore):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, types.ErrorResponse{Code: code, Error: msg})
}
