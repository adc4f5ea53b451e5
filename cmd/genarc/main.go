package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/fedarchive/genarc/internal/logger"
	"github.com/fedarchive/genarc/internal/migrations"
	"github.com/fedarchive/genarc/pkg/config"
	"github.com/fedarchive/genarc/pkg/events"
	"github.com/fedarchive/genarc/pkg/store"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `genarc - Federated genomic archive pipeline

Usage:
  genarc <command> [flags]

Commands:
  init       Initialize a sample configuration file
  ucs        Start the upload controller service
  fis        Start the file ingest service
  ifrs       Start the internal file registry service
  dcs        Start the download controller service
  migrate    Migrate the service database to a schema version
  republish  Re-emit every recorded outbox event
  version    Show version information

Flags:
  --config string    Path to config file (default: ./config.yaml)
  --force            Force overwrite existing config file (init command only)
  --target int       Target schema version (migrate command only)

Examples:
  # Initialize config file
  genarc init

  # Start the upload controller with a custom config
  genarc ucs --config /etc/genarc/config.yaml

  # Migrate the download controller database to the latest version
  genarc migrate --config /etc/genarc/dcs.yaml

  # Rebuild downstream state from the registry outbox
  genarc republish --config /etc/genarc/ifrs.yaml

  # Use environment variables to override config
  GENARC_LOGGING_LEVEL=DEBUG genarc ucs

Environment Variables:
  All configuration options can be overridden using environment variables.
  Format: GENARC_<SECTION>_<KEY> (use underscores for nested keys)

  Examples:
    GENARC_LOGGING_LEVEL=DEBUG
    GENARC_API_PORT=8081
    GENARC_DATABASE_URI=mongodb://mongo:27017
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "init":
		runInit()
	case "ucs", "fis", "ifrs", "dcs":
		runService(command)
	case "migrate":
		runMigrate()
	case "republish":
		runRepublish()
	case "help", "--help", "-h":
		fmt.Print(usage)
		os.Exit(0)
	case "version", "--version", "-v":
		fmt.Printf("genarc %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// runInit handles the init subcommand
func runInit() {
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	configFile := initFlags.String("config", "config.yaml", "Path to config file")
	force := initFlags.Bool("force", false, "Force overwrite existing config file")

	if err := initFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	if _, err := os.Stat(*configFile); err == nil && !*force {
		log.Fatalf("Config file %s already exists (use --force to overwrite)", *configFile)
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), *configFile); err != nil {
		log.Fatalf("Failed to write config file: %v", err)
	}
	fmt.Printf("Sample configuration written to %s\n", *configFile)
}

// runMigrate handles the migrate subcommand
func runMigrate() {
	all := migrations.All()

	migrateFlags := flag.NewFlagSet("migrate", flag.ExitOnError)
	configFile := migrateFlags.String("config", "", "Path to config file (default: ./config.yaml)")
	target := migrateFlags.Int("target", len(all), "Target schema version")

	if err := migrateFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	initLogger(cfg, "migrate")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to document store: %v", err)
	}
	defer func() {
		if err := client.Close(context.Background()); err != nil {
			logger.Error("failed to disconnect from document store", logger.Err(err))
		}
	}()

	migrator := store.NewMigrator(client, cfg.Collections.Lock, cfg.Collections.Version, migratorOwner(), all)
	if err := migrator.Run(ctx, *target); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	current, err := migrator.CurrentVersion(ctx)
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	fmt.Printf("Database %s is at schema version %d\n", cfg.Database.Database, current)
}

// runRepublish handles the republish subcommand
func runRepublish() {
	republishFlags := flag.NewFlagSet("republish", flag.ExitOnError)
	configFile := republishFlags.String("config", "", "Path to config file (default: ./config.yaml)")

	if err := republishFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	initLogger(cfg, "republish")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to document store: %v", err)
	}
	defer func() {
		if err := client.Close(context.Background()); err != nil {
			logger.Error("failed to disconnect from document store", logger.Err(err))
		}
	}()

	outbox := store.NewOutbox(client, cfg.Collections.Events)
	writer := events.NewKafkaWriter(cfg.Kafka.Brokers)
	defer writer.Close()

	flusher := events.NewFlusher(outbox, writer, cfg.Kafka.FlushInterval)
	if err := flusher.Republish(ctx); err != nil {
		log.Fatalf("Republish failed: %v", err)
	}
}

func initLogger(cfg *config.Config, service string) {
	err := logger.Init(logger.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Output:  cfg.Logging.Output,
		Service: service,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
}

// migratorOwner identifies this instance in the migration lock document.
func migratorOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = uuid.NewString()
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
