// Command tripmatch-seed loads an offers JSON file into the catalog
// store: it embeds each offer's text, writes the records and vectors to
// Redis, and ensures the vector index exists.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tripmatch/internal/capability"
	capOpenAI "github.com/kailas-cloud/tripmatch/internal/capability/openai"
	"github.com/kailas-cloud/tripmatch/internal/config"
	dbRedis "github.com/kailas-cloud/tripmatch/internal/db/redis"
	"github.com/kailas-cloud/tripmatch/internal/domain"
	logpkg "github.com/kailas-cloud/tripmatch/internal/logger"
	"github.com/kailas-cloud/tripmatch/internal/metrics"
	catalogrepo "github.com/kailas-cloud/tripmatch/internal/repository/catalog"
	"github.com/kailas-cloud/tripmatch/internal/repository/embcache"
)

func main() {
	var file string
	flag.StringVar(&file, "file", "offers.json", "path to the offers JSON file")
	flag.Parse()

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

	metrics.RegisterCapabilityMetrics()

	if len(cfg.Database.Addrs) == 0 {
		logger.Fatal("Seeding requires a configured database")
	}
	if len(cfg.Capabilities.Chains.Embed) == 0 {
		logger.Fatal("Seeding requires a configured embed chain")
	}

	if err := run(file, cfg, logger); err != nil {
		logger.Fatal("Seeding failed", zap.Error(err))
	}
}

func run(file string, cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	offers, err := readOffers(file)
	if err != nil {
		return err
	}
	logger.Info("Loaded offers file", zap.String("file", file), zap.Int("offers", len(offers)))

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}

	embedder := buildEmbedder(cfg, store, logger)

	dim := 0
	for i := range offers {
		if err := offers[i].Validate(0); err != nil {
			return fmt.Errorf("offer %d: %w", i, err)
		}

		res, err := embedder.Embed(ctx, offers[i].SearchText())
		if err != nil {
			return fmt.Errorf("embed offer %s: %w", offers[i].ID, err)
		}
		offers[i].Embedding = res.Embedding

		if dim == 0 {
			dim = len(res.Embedding)
		}
		logger.Debug("Embedded offer",
			zap.String("offer_id", offers[i].ID),
			zap.Int("tokens", res.TotalTokens),
		)
	}

	catalog := catalogrepo.New(store, cfg.Storage.KeyPrefix, dim, logger)
	if err := catalog.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}
	if err := catalog.PutOffers(ctx, offers); err != nil {
		return fmt.Errorf("put offers: %w", err)
	}

	logger.Info("Catalog seeded", zap.Int("offers", len(offers)), zap.Int("dimensions", dim))
	return nil
}

func readOffers(file string) ([]domain.Offer, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read offers file: %w", err)
	}

	var offers []domain.Offer
	if err := json.Unmarshal(data, &offers); err != nil {
		return nil, fmt.Errorf("parse offers file: %w", err)
	}
	if len(offers) == 0 {
		return nil, fmt.Errorf("offers file is empty")
	}
	return offers, nil
}

// buildEmbedder assembles the seeding embedder: provider chain behind
// the persistent cache so re-seeding unchanged offers is free.
func buildEmbedder(cfg config.Config, store *dbRedis.Store, logger *zap.Logger) domain.Embedder {
	clients := make(map[string]*capOpenAI.Client, len(cfg.Capabilities.Providers))
	for name, pc := range cfg.Capabilities.Providers {
		clients[name] = capOpenAI.NewClient(&capOpenAI.Config{
			Name:    name,
			APIKey:  pc.APIKey,
			BaseURL: pc.BaseURL,
			Logger:  logger,
		})
	}

	providers := make([]capability.Provider, 0, len(cfg.Capabilities.Chains.Embed))
	for _, a := range cfg.Capabilities.Chains.Embed {
		providers = append(providers, capability.Provider{
			Name:       a.Provider,
			Model:      a.Model,
			Dimensions: a.Dimensions,
			Timeout:    time.Duration(a.TimeoutSec) * time.Second,
		})
	}

	chain := capability.NewEmbedChain(providers, embedCallerFunc(func(ctx context.Context, p capability.Provider, text string) (domain.EmbeddingResult, error) {
		client, ok := clients[p.Name]
		if !ok {
			return domain.EmbeddingResult{}, fmt.Errorf("unknown provider %q: %w", p.Name, domain.ErrCapabilityUnavailable)
		}
		return client.Embed(ctx, p, text)
	}), logger)

	return embcache.New(chain, store, cfg.Storage.KeyPrefix, metrics.EmbeddingCacheTotal, logger)
}

type embedCallerFunc func(ctx context.Context, p capability.Provider, text string) (domain.EmbeddingResult, error)

func (f embedCallerFunc) Embed(ctx context.Context, p capability.Provider, text string) (domain.EmbeddingResult, error) {
	return f(ctx, p, text)
}
