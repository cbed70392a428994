package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/scancab/scancab/pkg/scancab"
	"github.com/scancab/scancab/pkg/scancab/config"
)

const usage = `Scancab Admin CLI

Maintenance tool for the scanning cabinet library. Runs against the same
database and blob store as the server.

USAGE:
  admin <command> [options]

COMMANDS:
  sweep-media     Delete media records orphaned by partial document deletes
  sweep-blobs     Delete stored blobs no media record references
  set-password    Set a user's upload password (for machine uploads)

ENVIRONMENT VARIABLES:
  SCANCAB_DATABASE_URL   postgres:// connection string, or "memory"
  SCANCAB_STORAGE_URL    memory:// | file:///path | s3://bucket?region=...
  SCANCAB_AUTO_MIGRATE   run embedded migrations before connecting

  Configuration can also be loaded from a .env file in the current directory.

EXAMPLES:
  admin sweep-media
  admin sweep-blobs --json
  admin set-password user:alice@example.com s3cret
`

// cliConfig holds the flags shared by all commands
type cliConfig struct {
	JSON bool `env:"SCANCAB_ADMIN_JSON" env-default:"false"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// .env values lose to real environment variables
	_ = godotenv.Load()

	var cli cliConfig
	if err := cleanenv.ReadEnv(&cli); err != nil {
		fatal("reading environment: %v", err)
	}
	for _, arg := range os.Args[2:] {
		if arg == "--json" {
			cli.JSON = true
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(config.WithEnv("SCANCAB"))
	if err != nil {
		fatal("loading configuration: %v", err)
	}

	ctx := context.Background()
	svc, sweeper, err := cfg.BuildService(ctx, logger)
	if err != nil {
		fatal("building service: %v", err)
	}

	switch os.Args[1] {
	case "sweep-media":
		result, err := sweeper.SweepOrphanMedia(ctx)
		if err != nil {
			fatal("sweep failed: %v", err)
		}
		printResult("orphan media", result, cli.JSON)
	case "sweep-blobs":
		result, err := sweeper.SweepOrphanBlobs(ctx)
		if err != nil {
			fatal("sweep failed: %v", err)
		}
		printResult("orphan blobs", result, cli.JSON)
	case "set-password":
		if len(os.Args) < 4 {
			fatal("usage: admin set-password <owner-key> <password>")
		}
		if err := svc.SetUploadPassword(ctx, os.Args[2], os.Args[3]); err != nil {
			fatal("setting password: %v", err)
		}
		fmt.Printf("upload password set for %s\n", os.Args[2])
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func printResult(name string, result *scancab.SweepResult, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return
	}
	fmt.Printf("%s sweep: scanned=%d deleted=%d failed=%d\n",
		name, result.Scanned, result.Deleted, result.Failed)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
