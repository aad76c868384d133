// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iiresodh/pida-backend/internal/config"
	"github.com/iiresodh/pida-backend/internal/handler"
	"github.com/iiresodh/pida-backend/internal/llm"
	"github.com/iiresodh/pida-backend/internal/middleware"
	"github.com/iiresodh/pida-backend/internal/search"
	"github.com/iiresodh/pida-backend/internal/service"
	"github.com/iiresodh/pida-backend/internal/store"
	"github.com/iiresodh/pida-backend/pkg/logger"
	"github.com/iiresodh/pida-backend/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "pida-backend", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", "error", err)
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Conversation store: JetStream when a NATS URL is configured,
	// in-process otherwise.
	var conversationStore store.Store
	var readiness handler.ReadinessCheck
	if cfg.NATSURL != "" {
		natsClient, err := store.Connect(store.NATSConfig{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()

		natsStore, err := store.NewNATSStore(ctx, natsClient)
		if err != nil {
			log.Error("failed to initialize conversation store", "error", err)
			os.Exit(1)
		}
		conversationStore = natsStore
		readiness = func() (bool, string) {
			if !natsClient.IsConnected() {
				return false, "NATS not connected"
			}
			return true, ""
		}
		log.Info("using JetStream conversation store", "url", cfg.NATSURL)
	} else {
		conversationStore = store.NewMemoryStore()
		readiness = func() (bool, string) { return true, "" }
		log.Warn("NATS_URL not set, using in-memory conversation store")
	}

	// Context providers run concurrently per request; each one degrades to
	// placeholder text on failure instead of erroring.
	providers := []search.Provider{
		search.NewWebProvider(search.WebConfig{
			APIKey:       cfg.PSEAPIKey,
			EngineID:     cfg.PSEEngineID,
			NumResults:   cfg.PSEResults,
			FetchTimeout: cfg.FetchTimeout,
			Timeout:      cfg.SearchTimeout,
		}, log),
		search.NewRAGProvider(search.RAGConfig{
			URL:            cfg.RAGURL,
			Timeout:        cfg.RAGTimeout,
			ConnectTimeout: cfg.RAGConnectTimeout,
		}, log),
	}

	// The generator is built exactly once; a construction failure is
	// recorded and surfaced per request as a fixed fragment.
	provider := llm.Provider(cfg.DefaultLLM)
	apiKey := cfg.AnthropicAPIKey
	if provider == llm.ProviderOpenAI {
		apiKey = cfg.OpenAIAPIKey
	}
	generator := llm.NewGenerator(llm.GeneratorConfig{
		Provider:    provider,
		APIKey:      apiKey,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.MaxOutputTokens,
		Temperature: cfg.Temperature,
	}, log)

	chatSvc := service.NewChatService(conversationStore, providers, generator, log)
	conversationSvc := service.NewConversationService(conversationStore, log)

	healthHandler := handler.NewHealthHandler(readiness)
	chatHandler := handler.NewChatHandler(chatSvc, log)
	conversationHandler := handler.NewConversationHandler(conversationSvc, log)

	var identity middleware.IdentityResolver
	if cfg.AuthMode == "header" {
		identity = middleware.NewHeaderResolver(cfg.TrustedUserHeader)
		log.Warn("using trusted-header identity resolution", "header", cfg.TrustedUserHeader)
	} else {
		identity = middleware.NewJWTResolver(cfg.JWTSecret)
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", handler.GeoHeader},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/status", healthHandler.Status)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity(identity))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/chat/stream", chatHandler.Stream)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)
			r.Post("/", conversationHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/messages", conversationHandler.Messages)
				r.Put("/", conversationHandler.Rename)
				r.Delete("/", conversationHandler.Delete)
			})
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
