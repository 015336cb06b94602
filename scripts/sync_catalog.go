package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"autoservice/internal/database"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		seedPath = flag.String("seed", "configs/seed.yaml", "path to seed.yaml")
		dbPath   = flag.String("db", "./data/autoservice.db", "path to sqlite db")
		dryRun   = flag.Bool("dry-run", false, "validate the catalog without writing it")
	)
	flag.Parse()

	data, err := os.ReadFile(*seedPath)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var catalog database.Catalog
	if err = yaml.Unmarshal(data, &catalog); err != nil {
		return fmt.Errorf("parse seed: %w", err)
	}
	if len(catalog.Technicians) == 0 || len(catalog.TimeSlots) == 0 {
		return fmt.Errorf("seed has no technicians or time slots")
	}
	if err = catalog.Validate(); err != nil {
		return fmt.Errorf("validate seed: %w", err)
	}
	if *dryRun {
		fmt.Println("catalog is valid")
		return nil
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err = db.SyncCatalog(ctx, &catalog); err != nil {
		return fmt.Errorf("sync catalog: %w", err)
	}

	fmt.Printf("done: technicians=%d slots=%d parts=%d inventory=%d orders=%d\n",
		len(catalog.Technicians), len(catalog.TimeSlots), len(catalog.Parts),
		len(catalog.Inventory), len(catalog.Orders))
	return nil
}
