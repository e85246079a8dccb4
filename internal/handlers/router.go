package handlers

import (
	"net/http"
	"time"

	"heartsync-backend/internal/config"
	"heartsync-backend/internal/middleware"
	"heartsync-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the services the router dispatches to
type Deps struct {
	Config              *config.Config
	DB                  Pinger
	UserService         *services.UserService
	PairService         *services.PairService
	VerificationService *services.VerificationService
	RouletteService     *services.RouletteService
	UsageService        *services.UsageService
	PhotoService        *services.PhotoService
	Hub                 *services.WSHub
	// UploadDir is served under /upload when images are stored locally
	UploadDir string
}

// NewRouter builds the HTTP routes
func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	dev := cfg.Server.IsDevelopment()
	maxUpload := cfg.Storage.MaxUploadMB << 20

	authHandler := NewAuthHandler(d.UserService, d.VerificationService, dev)
	userHandler := NewUserHandler(d.UserService, d.PhotoService, maxUpload, dev)
	pairHandler := NewPairHandler(d.PairService, dev)
	rouletteHandler := NewRouletteHandler(d.RouletteService, dev)
	usageHandler := NewUsageHandler(d.UsageService, dev)
	uploadHandler := NewUploadHandler(d.PhotoService, maxUpload, dev)
	healthHandler := NewHealthHandler(d.DB)
	wsHandler := NewWebSocketHandler(d.Hub, d.UserService)

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	// Brute-force protection on credential and upload endpoints
	limiter := httprate.LimitByIP(cfg.Security.RateLimitReqs, cfg.Security.RateLimitWindow)

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(limiter)
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/verify-code", authHandler.VerifyCode)
		r.Post("/send-verification-code", authHandler.SendVerificationCode)
		r.Post("/upload", uploadHandler.Upload)
	})

	if d.UploadDir != "" {
		fs := http.StripPrefix("/upload/", http.FileServer(http.Dir(d.UploadDir)))
		r.Get("/upload/*", fs.ServeHTTP)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(d.UserService))
		r.Use(chiMiddleware.Timeout(30 * time.Second))

		r.Post("/validate-heartcode", pairHandler.ValidateHeartcode)
		r.Get("/couples/me", pairHandler.GetCouple)
		r.Delete("/couples/me", pairHandler.Disconnect)

		r.Get("/users/me", userHandler.Me)
		r.Put("/users/me/push-token", userHandler.SetPushToken)
		r.Put("/users/{id}", userHandler.Update)
		r.Delete("/users/{id}", userHandler.Delete)
		r.With(limiter).Post("/users/{id}/avatar", userHandler.UploadAvatar)

		r.Post("/roulette/save", rouletteHandler.Save)
		r.Post("/roulette/update-streak", rouletteHandler.UpdateStreak)
		r.Post("/roulette/reset-streak", rouletteHandler.ResetStreak)
		r.Get("/roulette/streak/{userId}", rouletteHandler.GetStreak)
		r.Get("/roulette/history/{userId}", rouletteHandler.History)

		r.Post("/usage/report", usageHandler.Report)
		r.Get("/usage/today", usageHandler.Today)
		r.Get("/usage/partner", usageHandler.Partner)
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	r.Get("/healthz", healthHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
