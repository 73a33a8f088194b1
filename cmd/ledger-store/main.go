package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/ledger-sense/internal/ledger"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("ledger-store")
	var (
		port        = fs.IntLong("port", 5001, "HTTP server port")
		backend     = fs.StringLong("store", "bolt", "Storage backend: 'bolt' or 'postgres'")
		dbPath      = fs.StringLong("db", "ledger.db", "Database file path (bolt)")
		databaseURL = fs.StringLong("database-url", "", "Postgres connection string (or set DATABASE_URL env var)")
		jwtSecret   = fs.StringLong("jwt-secret", "", "Secret the auth service signs tokens with")
		_           = fs.StringLong("config", "", "Config file (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("LEDGER_STORE"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if *jwtSecret == "" {
		slog.Error("JWT secret is required. Set --jwt-secret flag or LEDGER_STORE_JWT_SECRET environment variable")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store ledger.Store
		err   error
	)
	switch *backend {
	case "bolt":
		slog.Info("Initializing database...", "path", *dbPath)
		store, err = ledger.NewBoltStore(*dbPath)
	case "postgres":
		dsn := *databaseURL
		if dsn == "" {
			dsn = os.Getenv("DATABASE_URL")
		}
		if dsn == "" {
			slog.Error("Database URL is required for postgres. Set --database-url flag or DATABASE_URL environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing database...", "backend", "postgres")
		store, err = ledger.NewPostgresStore(ctx, dsn)
	default:
		slog.Error("Invalid store type", "type", *backend, "valid", "bolt or postgres")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	server := ledger.NewServer(store, *jwtSecret)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(ctx, addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "store", *backend)

	<-ctx.Done()
	slog.Info("Shutting down...")
}
