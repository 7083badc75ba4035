package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/insights/internal/api"
	"github.com/MikeSquared-Agency/insights/internal/hermes"
)

var shutdownGrace time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the transcripts.stored subscriber",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&shutdownGrace, "shutdown-grace", 30*time.Second, "how long to wait for in-flight work on shutdown")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("insights starting", "port", cfg.Port)

	c, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	// NATS is optional; without it the service is HTTP-only.
	var bus *hermes.Client
	if cfg.NatsURL != "" {
		bus, err = hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer bus.Close()
		logger.Info("NATS connected", "url", cfg.NatsURL)

		c.classifier.SetPublisher(bus)
		c.processor.SetPublisher(bus)

		if err := bus.Subscribe(hermes.SubjectTranscriptStored, c.processor.HandleTranscriptStored); err != nil {
			return fmt.Errorf("subscribe to %s: %w", hermes.SubjectTranscriptStored, err)
		}
	} else {
		logger.Warn("NATS_URL not set, running without event bus")
	}

	resumed, err := c.classifier.ResumeIncomplete(ctx)
	if err != nil {
		logger.Error("failed to resume incomplete jobs", "error", err)
	} else if resumed > 0 {
		logger.Info("resumed incomplete classification jobs", "count", resumed)
	}

	srv := api.NewServer(cfg.Port, c.processor, c.classifier, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("insights ready", "port", cfg.Port)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if bus != nil {
		if err := bus.Drain(); err != nil {
			logger.Warn("NATS drain", "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		c.processor.Wait()
		c.classifier.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("shutdown grace elapsed with work in flight")
	}

	logger.Info("insights stopped")
	return nil
}
