package main

import (
	"context"
	"fmt"
	"io"

	"github.com/NoaSkape/firefly-estimator-sub005/repository"
	"github.com/spf13/cobra"
)

var indexesCmd = &cobra.Command{
	Use:   "ensure-indexes",
	Short: "Create the MongoDB indexes used by the API",
	RunE: withEnv(func(ctx context.Context, e *env, out io.Writer) error {
		if err := repository.EnsureIndexes(ctx, e.db); err != nil {
			return err
		}
		fmt.Fprintf(out, "Indexes ensured on %s\n", e.cfg.MongoDatabase)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(indexesCmd)
}
