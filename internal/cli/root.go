package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Toltar/energy-monitoring-app/internal/config"
	"github.com/Toltar/energy-monitoring-app/pkg/alerting"
	"github.com/Toltar/energy-monitoring-app/pkg/objectstore"
	"github.com/Toltar/energy-monitoring-app/pkg/storage"
	"github.com/Toltar/energy-monitoring-app/pkg/stream"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "energymon",
	Short: "Energy usage monitoring with threshold alerts",
	Long: `Energy monitor ingests personal energy usage readings, stores them,
and publishes alert notifications when a reading exceeds the user's
configured threshold. Readings arrive one at a time or as uploaded
CSV files.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.energymon/config.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// initStorage creates the SQLite store, with the kafka change feed attached
// when kafka is enabled.
func initStorage(cfg *config.Config, logger *slog.Logger) (*storage.SQLite, error) {
	store, err := storage.NewSQLite(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	if cfg.Kafka.Enabled {
		feed := stream.NewKafkaChangeFeed(stream.NewChangesWriter(cfg.Kafka.Brokers, cfg.Kafka.ChangesTopic))
		store.AttachChangeFeed(feed, logger)
	}
	return store, nil
}

// initObjects creates the filesystem object store for uploaded CSV files.
func initObjects(cfg *config.Config) (*objectstore.FS, error) {
	return objectstore.NewFS(cfg.Objects.Root)
}

// initDispatcher creates the alert notification dispatcher.
func initDispatcher(cfg *config.Config, logger *slog.Logger) *alerting.KafkaDispatcher {
	writer := alerting.NewAlertsWriter(cfg.Kafka.Brokers, cfg.Kafka.AlertsTopic)
	return alerting.NewKafkaDispatcher(writer, logger)
}
