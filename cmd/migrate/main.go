package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"spacebook/internal/facilities/repository"
	"spacebook/internal/facilities/validator"
	mongoMigration "spacebook/internal/migrations/mongo"
	"spacebook/internal/migrations/seed"
	"spacebook/pkg/config"

	"github.com/spf13/pflag"
)

const JobName = "mongo-migration"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var seedPath string
	var skipSchema bool
	var timeout time.Duration

	flagSet := pflag.NewFlagSet(JobName, pflag.ContinueOnError)
	flagSet.StringVar(&seedPath, "seed", "", "YAML facility catalogue to apply after migrating")
	flagSet.BoolVar(&skipSchema, "skip-schema", false, "only apply the seed file")
	flagSet.DurationVar(&timeout, "timeout", 120*time.Second, "overall job timeout")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg := config.Load(JobName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()
	cfg.Log.Info("Starting Mongo migration job", "database", cfg.MongoDatabaseName)

	if !skipSchema {
		if err := mongoMigration.RunMigration(ctx, cfg.Client.Mongo, cfg.MongoDatabaseName, cfg.Log); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	if seedPath == "" {
		return nil
	}

	data, err := os.ReadFile(seedPath)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	catalogue, err := seed.Parse(data)
	if err != nil {
		return err
	}
	res, err := seed.Apply(ctx,
		repository.NewMongoFacilityRepository(cfg),
		validator.NewFacilityValidator(cfg.Log),
		catalogue,
		time.Now().UTC(),
		cfg.Log,
	)
	if err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}
	cfg.Log.Info("Seed applied", "created", res.Created, "updated", res.Updated)
	return nil
}
