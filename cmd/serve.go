package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"heartsync-backend/internal/database"
	"heartsync-backend/internal/handlers"
	"heartsync-backend/internal/jobs"
	"heartsync-backend/internal/mail"
	"heartsync-backend/internal/repository"
	"heartsync-backend/internal/services"
	"heartsync-backend/internal/storage"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var autoMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return Run()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply pending migrations before serving")
}

// Run starts the server and blocks until SIGINT or SIGTERM
func Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx := context.Background()

	if autoMigrate {
		if err := database.Migrate(cfg.Database.DSN(), database.Up); err != nil {
			return err
		}
		log.Info().Msg("Database migrations applied")
	}

	// Connect to database
	db, err := database.Open(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	store := repository.NewPostgresStore(db)

	mailer := mail.New(cfg.SMTP)

	imageStore, err := storage.New(ctx, cfg.Storage, cfg.AWS)
	if err != nil {
		return fmt.Errorf("failed to create image storage: %w", err)
	}
	var uploadDir string
	if local, ok := imageStore.(*storage.Local); ok {
		uploadDir = local.Dir()
	}

	var pusher services.Pusher
	if cfg.APNS.Enabled {
		apns, err := services.NewAPNSPusher(cfg.APNS)
		if err != nil {
			return fmt.Errorf("failed to create APNs client: %w", err)
		}
		pusher = apns
		log.Info().Str("topic", cfg.APNS.Topic).Bool("production", cfg.APNS.Production).Msg("APNs enabled")
	}

	// Initialize services
	wsHub := services.NewWSHub(store)
	notifier := services.NewPartnerNotifier(wsHub, pusher, store)
	userService := services.NewUserService(store, notifier, services.UserServiceConfig{
		JWTSecret:      cfg.JWT.Secret,
		TokenTTL:       cfg.JWT.TTL,
		BcryptCost:     cfg.Security.BcryptCost,
		MinPasswordLen: cfg.Security.MinPasswordLen,
	})
	verificationService := services.NewVerificationService(store, mailer, cfg.Verification.CodeTTL)

	scheduler := jobs.NewScheduler()
	if err := scheduler.AddCodePurge(cfg.Verification.PurgeSchedule, verificationService); err != nil {
		return err
	}
	scheduler.Start()

	router := handlers.NewRouter(handlers.Deps{
		Config:              cfg,
		DB:                  store,
		UserService:         userService,
		PairService:         services.NewPairService(store, notifier),
		VerificationService: verificationService,
		RouletteService:     services.NewRouletteService(store, notifier),
		UsageService:        services.NewUsageService(store),
		PhotoService:        services.NewPhotoService(imageStore, userService),
		Hub:                 wsHub,
		UploadDir:           uploadDir,
	})

	// Create HTTP server. WriteTimeout stays generous for uploads; sockets are hijacked and unaffected.
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Str("environment", cfg.Server.Environment).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		scheduler.Stop(context.Background())
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	wsHub.CloseAll()
	scheduler.Stop(shutdownCtx)

	log.Info().Msg("Server exited")
	return nil
}
