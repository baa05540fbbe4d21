package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rentchat/internal/chat"
	"rentchat/internal/httpjson"
	myMiddleware "rentchat/internal/middleware"
	"rentchat/internal/user"
)

// RouterDeps is what the HTTP surface needs.
type RouterDeps struct {
	Log         *slog.Logger
	Auth        *myMiddleware.AuthMiddleware
	Chat        *chat.Handler
	Users       *user.Handler
	Gateway     *chat.Gateway
	Ready       func(context.Context) error
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(myMiddleware.RequestLogger(d.Log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if d.Ready != nil {
			if err := d.Ready(ctx); err != nil {
				d.Log.Info("readyz.not_ready", "err", err)
				http.Error(w, "store not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	// WebSocket (real-time)
	r.With(d.Auth.HandleHandshake).Get("/ws", d.Gateway.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			httpjson.Write(w, http.StatusOK, map[string]string{"message": "Rental Marketplace API is running"})
		})

		// Protected routes (require JWT)
		r.Group(func(r chi.Router) {
			r.Use(d.Auth.Handle)
			r.Get("/users/me", d.Users.Me)
			d.Chat.Routes(r)
		})
	})

	return r
}
