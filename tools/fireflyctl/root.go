package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/NoaSkape/firefly-estimator-sub005/common/logger"
	"github.com/NoaSkape/firefly-estimator-sub005/config"
	"github.com/NoaSkape/firefly-estimator-sub005/database"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var (
	flagTimeout time.Duration
	flagJSON    bool
)

// env is the connection state shared by every subcommand.
type env struct {
	cfg    *config.Config
	client *mongo.Client
	db     *mongo.Database
	log    *zap.Logger
}

var rootCmd = &cobra.Command{
	Use:           "fireflyctl",
	Short:         "Firefly operator tools",
	Long:          "Seed the model catalog, maintain indexes and inspect sales forecasts.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 2*time.Minute, "Overall command timeout")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Print results as JSON")
}

// connect loads configuration from the environment and opens MongoDB. The
// returned cleanup disconnects and flushes the logger.
func connect(ctx context.Context) (*env, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.MongoURI == "" {
		return nil, nil, fmt.Errorf("MONGO_URI is required")
	}
	log, err := logger.Initialize(cfg.Env)
	if err != nil {
		return nil, nil, err
	}
	client, db, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := database.Close(client); err != nil {
			log.Warn("Database close error", zap.Error(err))
		}
		_ = log.Sync()
	}
	return &env{cfg: cfg, client: client, db: db, log: log}, cleanup, nil
}

// withEnv wraps a subcommand body with the timeout and connection handling.
func withEnv(run func(ctx context.Context, e *env, out io.Writer) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
		defer cancel()

		e, cleanup, err := connect(ctx)
		if err != nil {
			return err
		}
		defer cleanup()
		return run(ctx, e, cmd.OutOrStdout())
	}
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dollars(cents float64) string {
	return fmt.Sprintf("$%.2f", cents/100)
}
