// migrate applies the relational schema, verifies it, and optionally
// runs a consistency sweep across all four stores.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"

	"ltmc/internal/config"
	"ltmc/internal/logging"
	"ltmc/internal/relational"
	"ltmc/internal/services"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed, color.Bold)
)

func main() {
	verifyOnly := flag.Bool("verify-only", false, "Verify the schema without applying migrations")
	sweep := flag.Bool("sweep", false, "Run a consistency sweep after migrating")
	flag.Parse()

	if err := run(*verifyOnly, *sweep); err != nil {
		failColor.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func run(verifyOnly, sweep bool) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if err := logging.Configure(logging.ParseLogLevel(cfg.Logging.Level), cfg.Logging.File); err != nil {
		return err
	}
	ctx := context.Background()

	if verifyOnly {
		store, err := relational.Connect(ctx, cfg.Relational, logging.Default())
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.VerifySchema(ctx); err != nil {
			return err
		}
		okColor.Printf("schema ok (%s)\n", cfg.Relational.Driver)
		return nil
	}

	store, err := relational.Open(ctx, cfg.Relational, logging.Default())
	if err != nil {
		return err
	}
	okColor.Printf("migrations applied and schema verified (%s)\n", cfg.Relational.Driver)

	if !sweep {
		return store.Close()
	}
	if err := store.Close(); err != nil {
		return err
	}

	container, err := services.NewContainer(ctx, cfg, logging.Default())
	if err != nil {
		return err
	}
	defer container.Close(ctx)

	report, err := container.Coordinator.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("consistency sweep: %w", err)
	}

	okColor.Printf("sweep complete: %d orphaned chunks, %d repaired, %d garbage vectors removed\n",
		report.OrphanedChunks, report.RepairedChunks, report.GarbageVectors)
	if report.GraphAvailable {
		okColor.Printf("graph reconciled: %d links re-mirrored, %d stray edges dropped\n",
			report.RemirroredLinks, report.DroppedEdges)
	} else {
		warnColor.Println("graph unavailable, edge reconciliation skipped")
	}
	return nil
}
