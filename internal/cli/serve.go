package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Toltar/energy-monitoring-app/internal/server"
	"github.com/Toltar/energy-monitoring-app/pkg/alerting"
	"github.com/Toltar/energy-monitoring-app/pkg/ingest"
	"github.com/Toltar/energy-monitoring-app/pkg/stream"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the alerting consumer",
	Long: `Starts the usage HTTP API and, when kafka is enabled, a consumer
that reads the usage change feed and publishes threshold alert
notifications.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "Listen address (default from config)")
	serveCmd.Flags().Bool("no-consumer", false, "Serve the API without the alerting consumer")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	listen, _ := cmd.Flags().GetString("listen")
	if listen != "" {
		cfg.Server.Listen = listen
	}
	noConsumer, _ := cmd.Flags().GetBool("no-consumer")

	logger := newLogger(cfg)

	store, err := initStorage(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	single := ingest.NewSingleIngestor(store, logger)
	apiServer := server.NewServer(single, store, store, logger)

	readTimeout, _ := time.ParseDuration(cfg.Server.ReadTimeout)
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout, _ := time.ParseDuration(cfg.Server.WriteTimeout)
	if writeTimeout == 0 {
		writeTimeout = 60 * time.Second
	}

	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      apiServer.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumerErr := make(chan error, 1)
	if cfg.Kafka.Enabled && !noConsumer {
		dispatcher := initDispatcher(cfg, logger)
		defer dispatcher.Close()

		evaluator := alerting.NewEvaluator(store, dispatcher, logger)
		coordinator := stream.NewCoordinator(evaluator, logger)

		batchWait, _ := time.ParseDuration(cfg.Kafka.BatchWait)
		if batchWait == 0 {
			batchWait = 500 * time.Millisecond
		}

		reader := stream.NewFeedReader(cfg.Kafka.Brokers, cfg.Kafka.ChangesTopic, cfg.Kafka.GroupID)
		consumer := stream.NewFeedConsumer(reader, coordinator, cfg.Kafka.BatchSize, batchWait, logger)
		defer consumer.Close()

		go func() {
			logger.Info("alerting consumer started",
				"topic", cfg.Kafka.ChangesTopic,
				"group", cfg.Kafka.GroupID)
			consumerErr <- consumer.Run(ctx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", "listen", cfg.Server.Listen)
		fmt.Fprintf(os.Stderr, "Energy monitor listening on %s\n", cfg.Server.Listen)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case err := <-consumerErr:
		if err != nil {
			logger.Error("consumer stopped, shutting down", "error", err)
			runErr = fmt.Errorf("consumer error: %w", err)
		}
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return runErr
}
