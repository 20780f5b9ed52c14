package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/tabeq/internal/api"
	"github.com/RMahshie/tabeq/internal/api/handlers"
	"github.com/RMahshie/tabeq/internal/audio/filterchain"
	"github.com/RMahshie/tabeq/internal/audio/graph"
	"github.com/RMahshie/tabeq/internal/config"
	"github.com/RMahshie/tabeq/internal/coordinator"
	"github.com/RMahshie/tabeq/internal/host"
	"github.com/RMahshie/tabeq/internal/host/chrome"
	"github.com/RMahshie/tabeq/internal/host/sim"
	"github.com/RMahshie/tabeq/internal/processing"
	"github.com/RMahshie/tabeq/internal/repository"
	"github.com/RMahshie/tabeq/internal/repository/memory"
	"github.com/RMahshie/tabeq/internal/repository/postgres"
	"github.com/RMahshie/tabeq/internal/storage"
	"github.com/RMahshie/tabeq/pkg/models"
)

const version = "1.0.0"

func main() {
	// Configure zerolog for structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	zerolog.SetGlobalLevel(cfg.Server.LogLevel)
	if cfg.Server.Env == "prod" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Browser host. It outlives the signal context so shutdown can unmute.
	browser, err := newHost(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start browser host")
	}

	// Audio processor
	sink, closeSink := newSink(cfg)
	audio := processing.NewManager(browser, processing.Config{
		SampleRate: beep.SampleRate(cfg.Audio.SampleRate),
		Bands:      cfg.Equalizer.Bands,
		Filter:     filterchain.Options{Q: cfg.Equalizer.Q, Ramp: cfg.Equalizer.GainRamp},
		Sink:       sink,
	})
	audioCtx, stopAudio := context.WithCancel(context.Background())
	audioDone := make(chan struct{})
	go func() {
		defer close(audioDone)
		if err := audio.Run(audioCtx); err != nil {
			log.Error().Err(err).Msg("Audio processor stopped")
		}
	}()

	// Session coordinator
	coord := coordinator.New(browser, browser, audio, coordinator.Options{
		StopOnFocusLoss: cfg.Equalizer.StopOnFocusLoss,
	})
	go coord.Watch(ctx, browser.Events())

	// Persistence
	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open settings store")
	}
	archive, err := newArchive(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open preset archive")
	}

	// Create Chi router
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(zerologLogger())
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Create Huma API
	humaConfig := huma.DefaultConfig("Tab Equalizer API", version)
	humaConfig.DocsPath = "/api/docs"
	humaAPI := humachi.New(router, humaConfig)

	// Register health endpoint
	huma.Register(humaAPI, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the service",
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		resp := &models.HealthResponse{}
		resp.Body.Status = "healthy"
		resp.Body.Version = version
		resp.Body.Time = time.Now()
		return resp, nil
	})

	eq := handlers.NewEqualizerHandler(store, coord, browser, cfg.Equalizer.Bands, cfg.Equalizer.GainLimit)
	presets := handlers.NewPresetHandler(store, store, archive, eq)
	api.RegisterRoutes(humaAPI, eq, presets)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("host", cfg.Host.Driver).Msg("Starting Tab Equalizer API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop the session before the host so the tab is unmuted
	if err := coord.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to stop equalizer session")
	}
	stopAudio()
	<-audioDone
	if err := browser.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close browser host")
	}
	closeSink()
	closeStore()

	log.Info().Msg("Server exited")
}

// newHost starts the configured browser adapter
func newHost(ctx context.Context, cfg *config.Config) (host.Host, error) {
	rate := beep.SampleRate(cfg.Audio.SampleRate)
	switch cfg.Host.Driver {
	case "chrome":
		h, err := chrome.New(ctx, chrome.Options{
			ControlURL: cfg.Host.ChromeURL,
			Headless:   cfg.Host.Headless,
			SampleRate: rate,
		})
		if err != nil {
			return nil, err
		}
		return h, nil
	default:
		tabs, err := sim.ParseTabs(cfg.Host.SimTabs)
		if err != nil {
			return nil, err
		}
		log.Info().Int("tabs", len(tabs)).Msg("Using simulated browser")
		return sim.New(rate, tabs), nil
	}
}

// newSink opens the audio output
func newSink(cfg *config.Config) (graph.Sink, func()) {
	if cfg.Audio.Output == "speaker" {
		sink := &graph.SpeakerSink{}
		return sink, sink.Close
	}
	return &graph.NullSink{}, func() {}
}

// newStore opens the settings and preset store
func newStore(ctx context.Context, cfg *config.Config) (repository.Store, func(), error) {
	if cfg.Store.Driver != "postgres" {
		log.Info().Msg("Using in-memory settings store")
		return memory.NewStore(cfg.Equalizer.Bands), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.Store.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := postgres.NewPostgresStore(db, cfg.Equalizer.Bands)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Info().Msg("Connected to PostgreSQL")
	return store, func() { db.Close() }, nil
}

// newArchive opens preset bundle storage. It returns nil when disabled.
func newArchive(ctx context.Context, cfg *config.Config) (storage.Archive, error) {
	switch cfg.Archive.Backend {
	case "s3":
		return storage.NewS3Archive(ctx, storage.S3Config{
			Bucket:    cfg.Archive.Bucket,
			Endpoint:  cfg.Archive.Endpoint,
			Region:    cfg.Archive.Region,
			AccessKey: cfg.Archive.AccessKeyID,
			SecretKey: cfg.Archive.SecretAccessKey,
		})
	case "minio":
		return storage.NewMinioArchive(ctx, storage.MinioConfig{
			Endpoint:  cfg.Archive.Endpoint,
			Bucket:    cfg.Archive.Bucket,
			AccessKey: cfg.Archive.AccessKeyID,
			SecretKey: cfg.Archive.SecretAccessKey,
			Region:    cfg.Archive.Region,
		})
	default:
		log.Info().Msg("Preset archive disabled")
		return nil, nil
	}
}

// zerologLogger returns a Chi middleware that logs HTTP requests using zerolog
func zerologLogger() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				log.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote_ip", r.RemoteAddr).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Str("requestID", middleware.GetReqID(r.Context())).
					Msg("HTTP request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
