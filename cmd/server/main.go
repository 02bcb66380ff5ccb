package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"callagent/internal/auth"
	"callagent/internal/broadcast"
	"callagent/internal/config"
	"callagent/internal/domain/repositories"
	"callagent/internal/domain/services"
	"callagent/internal/handler"
	"callagent/internal/handler/sse"
	"callagent/internal/middleware"
	"callagent/internal/repository/badgerdb"
	"callagent/internal/repository/postgres"
	"callagent/internal/service/analysis"
	"callagent/internal/service/call"
	"callagent/internal/service/llm"
	"callagent/internal/triage"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Optional file logging alongside stdout
	var logger *slog.Logger
	if cfg.LogDir != "" {
		logFile, err := config.SetupLogFile(cfg.LogDir, cfg.LogMaxFiles)
		if err != nil {
			log.Fatalf("Failed to set up log file: %v", err)
		}
		defer logFile.Close()
		logger = config.NewLogger(cfg.Environment, logFile)
	} else {
		logger = config.NewLogger(cfg.Environment, nil)
	}
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"store", cfg.Store,
		"table_prefix", cfg.TablePrefix,
		"ai_enabled", cfg.AIEnabled(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	calls, directory, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Store, err)
	}
	defer closeStore()

	// Keyword tables are needed even with AI enabled: they are the fallback
	registry, err := triage.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to load keyword registry: %v", err)
	}
	logger.Info("keyword registry loaded", "locales", registry.Locales())

	pipelineCfg := analysis.Config{
		Registry:  registry,
		Directory: directory,
		Timeout:   cfg.AnalysisTimeout,
		Logger:    logger.With("component", "analysis"),
	}
	if cfg.AIEnabled() {
		client := llm.NewClient(llm.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		})
		pipelineCfg.Intent = client
		pipelineCfg.Emergency = client
		pipelineCfg.Reply = client
	} else {
		logger.Warn("OPENAI_API_KEY not set, analysis runs on keyword tables only")
	}
	analyzer, err := analysis.NewPipeline(pipelineCfg)
	if err != nil {
		log.Fatalf("Failed to create analysis pipeline: %v", err)
	}

	// Live events feed the dashboard stream and socket. Without them call
	// handling is unchanged and the dashboard falls back to polling.
	var hub *broadcast.Hub
	var broadcaster services.Broadcaster = broadcast.Noop{}
	if cfg.LiveEvents {
		hub = broadcast.NewHub(broadcast.DefaultBuffer, logger.With("component", "broadcast"))
		broadcaster = hub
	} else {
		logger.Info("live events disabled, stream and socket routes not registered")
	}

	callService := call.NewCallService(calls, analyzer, registry, broadcaster, call.Config{
		TurnURL:         cfg.PublicBaseURL + "/api/twilio/process-speech",
		Voice:           cfg.Voice,
		DefaultLocale:   cfg.DefaultLocale,
		BargeIn:         cfg.BargeIn,
		GatherTimeout:   cfg.GatherTimeout,
		MaxEmptyTurns:   cfg.MaxEmptyTurns,
		MinConfidence:   cfg.MinConfidence,
		EmergencyNumber: cfg.EmergencyPhoneNumber,
	}, logger.With("component", "call"))

	logger.Info("services initialized")

	twilioHandler := handler.NewTwilioHandler(callService, logger)
	callHandler := handler.NewCallHandler(callService, logger)

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", callHandler.HealthCheck)

	// Telephony webhooks, signed by the provider
	webhooks := middleware.VerifyTwilioSignature(middleware.SignatureConfig{
		AuthToken:     cfg.TwilioAuthToken,
		PublicBaseURL: cfg.PublicBaseURL,
		Bypass:        !cfg.VerifySignatures(),
	}, logger)
	mux.Handle("POST /api/twilio/voice", webhooks(http.HandlerFunc(twilioHandler.Voice)))
	mux.Handle("POST /api/twilio/process-speech", webhooks(http.HandlerFunc(twilioHandler.ProcessSpeech)))
	mux.Handle("POST /api/twilio/status", webhooks(http.HandlerFunc(twilioHandler.Status)))
	mux.Handle("POST /api/twilio/recording", webhooks(http.HandlerFunc(twilioHandler.Recording)))
	mux.Handle("POST /api/twilio/transcribe", webhooks(http.HandlerFunc(twilioHandler.Transcribe)))

	// Dashboard routes, behind operator auth when Supabase is configured
	dashboard := func(h http.Handler) http.Handler { return h }
	if cfg.SupabaseJWKSURL != "" {
		jwtVerifier, err := auth.NewJWTVerifier(ctx, cfg.SupabaseJWKSURL, logger)
		if err != nil {
			log.Fatalf("Failed to create JWT verifier: %v", err)
		}
		defer jwtVerifier.Close()
		dashboard = middleware.RequireOperator(jwtVerifier, logger)
	} else {
		logger.Warn("SUPABASE_URL not set, dashboard routes are unauthenticated")
	}
	mux.Handle("GET /api/calls", dashboard(http.HandlerFunc(callHandler.ListCalls)))
	mux.Handle("GET /api/calls/{callSid}", dashboard(http.HandlerFunc(callHandler.GetCall)))
	if hub != nil {
		streamHandler := handler.NewStreamHandler(hub, sse.DefaultConfig(), logger)
		socketHandler := handler.NewSocketHandler(hub, strings.Split(cfg.CORSOrigins, ","), logger)
		mux.Handle("GET /api/calls/stream", dashboard(http.HandlerFunc(streamHandler.StreamCalls)))
		mux.Handle("GET /api/socket", dashboard(http.HandlerFunc(socketHandler.Serve)))
	}

	// Build middleware chain
	// Order: CORS → Recovery → Routes (auth is per route group)
	var root http.Handler = mux
	root = middleware.Recovery(logger)(root)

	// CORS - Must be outermost to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID"},
		AllowCredentials: true,
	})
	root = corsHandler.Handler(root)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}()

	logger.Info("server listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// openStore opens the configured backend and returns the call store, the
// provider directory and a close func.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repositories.CallRepository, repositories.ProviderDirectory, func(), error) {
	switch cfg.Store {
	case config.StoreBadger:
		db, err := badgerdb.Open(badgerdb.Options{Dir: cfg.BadgerDir, Logger: logger})
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("badger store opened", "dir", cfg.BadgerDir)
		closeFn := func() {
			if err := db.Close(); err != nil {
				logger.Error("failed to close badger", "error", err)
			}
		}
		return badgerdb.NewCallStore(db), badgerdb.NewProviderDirectory(db), closeFn, nil

	default:
		pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("database connected",
			"max_conns", pool.Config().MaxConns,
			"min_conns", pool.Config().MinConns,
		)

		tables := postgres.NewTableNames(cfg.TablePrefix)
		if err := postgres.RunSchema(ctx, pool, tables); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}

		repoConfig := &postgres.RepositoryConfig{
			Pool:   pool,
			Tables: tables,
			Logger: logger,
		}
		return postgres.NewCallRepository(repoConfig), postgres.NewProviderDirectory(repoConfig), pool.Close, nil
	}
}
