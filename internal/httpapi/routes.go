package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/dice-room-backend/internal/engine"
	"github.com/DoyleJ11/dice-room-backend/internal/hub"
	"github.com/DoyleJ11/dice-room-backend/internal/room"
	"github.com/DoyleJ11/dice-room-backend/internal/ws"
)

func SetupRoutes(svc *room.Service, h *hub.Hub, defaults engine.Settings, log *zap.Logger) http.Handler {
	hd := NewHandlers(svc, defaults, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(svc, h, log))

	r.Route("/rooms", func(r chi.Router) {
		r.Post("/", hd.CreateRoom)
		r.Route("/{code}", func(r chi.Router) {
			r.Get("/", hd.GetRoom)
			r.Get("/leaderboard", hd.GetLeaderboard)
			r.Post("/players", hd.JoinRoom)
			r.Post("/start", hd.StartGame)
			r.Post("/end", hd.EndGame)
			r.Post("/roll", hd.RollDice)
			r.Post("/rewards/{rewardID}/claim", hd.ClaimReward)
			r.Post("/events", hd.TriggerEvent)
			r.Post("/events/expire", hd.ExpireEvent)
		})
	})
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
