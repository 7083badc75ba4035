package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/MikeSquared-Agency/insights/internal/anthropic"
	"github.com/MikeSquared-Agency/insights/internal/classifier"
	"github.com/MikeSquared-Agency/insights/internal/extractor"
	"github.com/MikeSquared-Agency/insights/internal/processor"
	"github.com/MikeSquared-Agency/insights/internal/scoring"
	"github.com/MikeSquared-Agency/insights/internal/slack"
	"github.com/MikeSquared-Agency/insights/internal/store"
	"github.com/MikeSquared-Agency/insights/internal/taxonomy"
)

// components holds everything a command may need. Fields are nil when the
// command did not ask for them.
type components struct {
	tax        *taxonomy.Taxonomy
	llm        *anthropic.Client
	classifier *classifier.Classifier
	db         *store.Store
	processor  *processor.Processor

	closers []func()
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// buildClassifier wires the taxonomy, Anthropic client, job store and
// classifier. REDIS_URL selects the Redis job store; otherwise jobs live in
// memory and do not survive a restart.
func buildClassifier(ctx context.Context) (*components, error) {
	c := &components{}

	tax, err := taxonomy.Load(cfg.TaxonomyFile)
	if err != nil {
		return nil, fmt.Errorf("load taxonomy: %w", err)
	}
	c.tax = tax

	if cfg.AnthropicAPIKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY is required")
	}
	c.llm = anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	logger.Info("anthropic client ready", "model", cfg.AnthropicModel)

	var jobs classifier.JobStore
	if cfg.RedisURL != "" {
		rdb, err := classifier.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		c.closers = append(c.closers, func() { _ = rdb.Close() })
		jobs = classifier.NewRedisStore(rdb, cfg.JobTTL)
		logger.Info("redis job store ready", "ttl", cfg.JobTTL)
	} else {
		jobs = classifier.NewMemoryStore(cfg.JobTTL)
		logger.Warn("REDIS_URL not set, classification jobs are kept in memory")
	}

	c.classifier = classifier.New(jobs, c.llm, tax, classifier.Config{
		BatchSize:     cfg.BatchSize,
		Concurrency:   cfg.Concurrency,
		MaxAttempts:   cfg.MaxAttempts,
		RetryDelay:    cfg.RetryDelay,
		BatchEstimate: cfg.BatchEstimate,
	}, logger)

	return c, nil
}

// buildPipeline extends buildClassifier with Postgres, the extractor, the
// scoring aggregator and the processor.
func buildPipeline(ctx context.Context) (*components, error) {
	c, err := buildClassifier(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		c.Close()
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	c.closers = append(c.closers, db.Close)
	if err := db.Migrate(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	c.db = db
	logger.Info("database connected")

	ext := extractor.New(c.llm, c.tax, logger)
	scorer := scoring.New(scoring.NewLLMStrategy(c.llm, c.tax), c.tax, logger)

	c.processor = processor.New(db, db, ext, c.classifier, scorer, processor.Config{
		PollInterval: cfg.PollInterval,
		JobTimeout:   cfg.JobTimeout,
	}, logger)

	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		c.processor.SetNotifier(slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, c.tax, logger))
		logger.Info("slack scorecards enabled", "channel", cfg.SlackChannel)
	}

	return c, nil
}
