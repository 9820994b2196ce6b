package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/NoaSkape/firefly-estimator-sub005/database"
	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"github.com/NoaSkape/firefly-estimator-sub005/repository"
	"github.com/NoaSkape/firefly-estimator-sub005/services"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var flagSeedFile string

var seedCmd = &cobra.Command{
	Use:   "seed-models",
	Short: "Insert or replace catalog models from a YAML file",
	Long: `Reads a YAML document with a top-level "models" list and upserts each
entry by slug. Existing ids, images and creation times are kept.`,
	RunE: withEnv(runSeed),
}

func init() {
	seedCmd.Flags().StringVarP(&flagSeedFile, "file", "f", "models.yaml", "YAML seed file")
	rootCmd.AddCommand(seedCmd)
}

type seedFile struct {
	Models []models.HomeModel `yaml:"models"`
}

// loadSeed decodes and validates a seed document. Every model is checked
// before anything is written.
func loadSeed(r io.Reader) ([]models.HomeModel, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc seedFile
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if len(doc.Models) == 0 {
		return nil, fmt.Errorf("seed file has no models")
	}

	seen := make(map[string]bool, len(doc.Models))
	for i := range doc.Models {
		m := &doc.Models[i]
		if seen[m.Slug] {
			return nil, fmt.Errorf("duplicate slug %q", m.Slug)
		}
		seen[m.Slug] = true
		if m.Images == nil {
			m.Images = []models.ModelImage{}
		}
		if appErr := services.ValidateModel(m); appErr != nil {
			return nil, fmt.Errorf("model %q: %s", m.Slug, appErr.Message)
		}
	}
	return doc.Models, nil
}

func runSeed(ctx context.Context, e *env, out io.Writer) error {
	f, err := os.Open(flagSeedFile)
	if err != nil {
		return err
	}
	defer f.Close()

	list, err := loadSeed(f)
	if err != nil {
		return err
	}

	repo := repository.NewMongoModelRepository(e.db)
	now := time.Now().UTC()
	for i := range list {
		m := &list[i]
		m.ID = uuid.NewString()
		m.CreatedAt = now
		m.UpdatedAt = now
		if err := repo.UpsertBySlug(ctx, m); err != nil {
			return fmt.Errorf("upsert %s: %w", m.Slug, err)
		}
		fmt.Fprintf(out, "  %-24s %s\n", m.Slug, dollars(float64(m.BasePrice)))
	}

	// Drop cached catalog pages so the API serves the new documents.
	if e.cfg.RedisURL != "" {
		client, err := database.NewRedisClient(ctx, e.cfg.RedisURL)
		if err != nil {
			e.log.Warn("Redis unavailable, catalog cache not invalidated", zap.Error(err))
		} else {
			defer client.Close()
			if err := repository.NewRedisCatalogCache(client, e.cfg.ModelCacheTTL, e.log).Invalidate(ctx); err != nil {
				e.log.Warn("Failed to invalidate catalog cache", zap.Error(err))
			}
		}
	}

	fmt.Fprintf(out, "Seeded %d models\n", len(list))
	return nil
}
