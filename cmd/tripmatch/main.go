package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tripmatch/internal/capability"
	capOpenAI "github.com/kailas-cloud/tripmatch/internal/capability/openai"
	"github.com/kailas-cloud/tripmatch/internal/config"
	"github.com/kailas-cloud/tripmatch/internal/db"
	dbRedis "github.com/kailas-cloud/tripmatch/internal/db/redis"
	"github.com/kailas-cloud/tripmatch/internal/domain"
	logpkg "github.com/kailas-cloud/tripmatch/internal/logger"
	"github.com/kailas-cloud/tripmatch/internal/metrics"
	catalogrepo "github.com/kailas-cloud/tripmatch/internal/repository/catalog"
	"github.com/kailas-cloud/tripmatch/internal/repository/embcache"
	memrepo "github.com/kailas-cloud/tripmatch/internal/repository/memory"
	chiTransport "github.com/kailas-cloud/tripmatch/internal/transport/chi"
	composeuc "github.com/kailas-cloud/tripmatch/internal/usecase/compose"
	conversationuc "github.com/kailas-cloud/tripmatch/internal/usecase/conversation"
	extractuc "github.com/kailas-cloud/tripmatch/internal/usecase/extract"
	healthuc "github.com/kailas-cloud/tripmatch/internal/usecase/health"
	packuc "github.com/kailas-cloud/tripmatch/internal/usecase/pack"
	rankuc "github.com/kailas-cloud/tripmatch/internal/usecase/rank"
	selectoruc "github.com/kailas-cloud/tripmatch/internal/usecase/selector"
	turnuc "github.com/kailas-cloud/tripmatch/internal/usecase/turn"
	"github.com/kailas-cloud/tripmatch/internal/version"
)

// defaultEmbeddingDim is used when no embed chain declares dimensions.
const defaultEmbeddingDim = 1536

// offerCatalog is the catalog surface the pipeline needs; both the
// Redis-backed store and the in-process fallback satisfy it.
type offerCatalog interface {
	Snapshot() *catalogrepo.Snapshot
	SearchKNN(ctx context.Context, vector []float32, k int, filter catalogrepo.SearchFilter) (domain.CandidateSet, error)
}

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting tripmatch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	// Register capability metrics explicitly (no init())
	metrics.RegisterCapabilityMetrics()

	ctx := context.Background()

	// Database store. No addrs means in-memory mode: local demos and
	// tests run without Redis, losing persistence and the vector index.
	var store db.Store
	if len(cfg.Database.Addrs) > 0 {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create database store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Database not ready", zap.Error(err))
		}
		logger.Info("Connected to database")
	} else {
		logger.Warn("No database configured, running on in-memory stores")
	}

	// One client per configured provider endpoint; chains pick the
	// client by provider name per attempt.
	mux := newProviderMux(cfg.Capabilities.Providers, logger)

	extractChain := capability.NewChatChain(capability.TaskExtract,
		providersFromAttempts(cfg.Capabilities.Chains.Extract), mux, nil, logger)
	rankChain := capability.NewChatChain(capability.TaskRank,
		providersFromAttempts(cfg.Capabilities.Chains.Rank), mux, nil, logger)
	composeChain := capability.NewChatChain(capability.TaskCompose,
		providersFromAttempts(cfg.Capabilities.Chains.Compose), mux, mux, logger)
	embedChain := capability.NewEmbedChain(
		providersFromAttempts(cfg.Capabilities.Chains.Embed), mux, logger)

	var embedder domain.Embedder = embedChain
	if store != nil {
		embedder = embcache.New(embedChain, store, cfg.Storage.KeyPrefix, metrics.EmbeddingCacheTotal, logger)
	}

	dim := embeddingDim(cfg.Capabilities.Chains.Embed)

	// Offer catalog: Redis-backed with an atomic snapshot, or pure
	// in-process when no database is configured.
	var (
		cat       offerCatalog
		refresher chiTransport.Refresher
	)
	if store != nil {
		catStore := catalogrepo.New(store, cfg.Storage.KeyPrefix, dim, logger)
		if err := catStore.EnsureIndex(ctx); err != nil {
			logger.Warn("Vector index creation failed, medium-tier search will degrade", zap.Error(err))
		}
		if err := catStore.Refresh(ctx); err != nil {
			logger.Warn("Initial catalog load failed, starting with an empty catalog", zap.Error(err))
		}
		cat = catStore
		refresher = catStore
	} else {
		cat = catalogrepo.NewMemory(nil, dim)
	}

	// Conversation memory
	var convRepo conversationuc.Repository
	if store != nil {
		ttl := time.Duration(cfg.Conversation.TTLHours) * time.Hour
		convRepo = memrepo.NewRedis(store, cfg.Storage.KeyPrefix, ttl)
	} else {
		convRepo = memrepo.NewInMemory()
	}
	conversations := conversationuc.New(convRepo, cfg.Conversation.MaxHistory)

	// Pipeline use cases
	extractor := extractuc.New(extractChain, catalogDestinations{cat}, logger)
	selector := selectoruc.New(cat, embedder, cfg.Selector, logger)
	packer := packuc.New(packuc.NewCounter(logger), cfg.Ranking.TokenBudget, logger)
	ranker := rankuc.New(rankChain, cfg.Ranking.MaxOffers, logger)
	composer := composeuc.New(composeChain, logger)
	turns := turnuc.New(conversations, extractor, selector, packer, ranker, composer, cat)

	// Health service. The store interface stays a true nil in memory
	// mode so the check is skipped rather than failed.
	var storePinger healthuc.StorePinger
	if store != nil {
		storePinger = store
	}
	healthSvc := healthuc.New(storePinger, mux.healthChecker(cfg.Capabilities.Chains.Compose))

	server := chiTransport.NewServer(turns, conversations, refresher, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// providerMux routes each chain attempt to the client of its named
// provider endpoint.
type providerMux struct {
	clients map[string]*capOpenAI.Client
}

func newProviderMux(providers map[string]config.ProviderConfig, logger *zap.Logger) *providerMux {
	clients := make(map[string]*capOpenAI.Client, len(providers))
	for name, pc := range providers {
		clients[name] = capOpenAI.NewClient(&capOpenAI.Config{
			Name:    name,
			APIKey:  pc.APIKey,
			BaseURL: pc.BaseURL,
			Logger:  logger,
		})
	}
	return &providerMux{clients: clients}
}

func (m *providerMux) Chat(ctx context.Context, p capability.Provider, req capability.ChatRequest) (string, error) {
	client, err := m.client(p)
	if err != nil {
		return "", err
	}
	return client.Chat(ctx, p, req)
}

func (m *providerMux) ChatStream(ctx context.Context, p capability.Provider, req capability.ChatRequest, emit func(string) error) error {
	client, err := m.client(p)
	if err != nil {
		return err
	}
	return client.ChatStream(ctx, p, req, emit)
}

func (m *providerMux) Embed(ctx context.Context, p capability.Provider, text string) (domain.EmbeddingResult, error) {
	client, err := m.client(p)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return client.Embed(ctx, p, text)
}

func (m *providerMux) client(p capability.Provider) (*capOpenAI.Client, error) {
	client, ok := m.clients[p.Name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q: %w", p.Name, domain.ErrCapabilityUnavailable)
	}
	return client, nil
}

// healthChecker returns the client of a chain's first attempt, or nil
// when the chain is empty.
func (m *providerMux) healthChecker(attempts []config.AttemptConfig) healthuc.CapabilityChecker {
	if len(attempts) == 0 {
		return nil
	}
	client, ok := m.clients[attempts[0].Provider]
	if !ok {
		return nil
	}
	return client
}

// providersFromAttempts maps config attempts to chain providers.
func providersFromAttempts(attempts []config.AttemptConfig) []capability.Provider {
	out := make([]capability.Provider, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, capability.Provider{
			Name:        a.Provider,
			Model:       a.Model,
			Temperature: a.Temperature,
			MaxTokens:   a.MaxTokens,
			Dimensions:  a.Dimensions,
			Timeout:     time.Duration(a.TimeoutSec) * time.Second,
		})
	}
	return out
}

// embeddingDim picks the catalog dimensionality from the embed chain.
func embeddingDim(attempts []config.AttemptConfig) int {
	for _, a := range attempts {
		if a.Dimensions > 0 {
			return a.Dimensions
		}
	}
	return defaultEmbeddingDim
}

// catalogDestinations exposes the snapshot's destination list to the
// keyword extraction fallback.
type catalogDestinations struct {
	cat offerCatalog
}

func (c catalogDestinations) Destinations() []string {
	return c.cat.Snapshot().Destinations()
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
