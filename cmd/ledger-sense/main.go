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
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/ledger-sense/internal/auth"
	"github.com/zombor/ledger-sense/internal/commit"
	"github.com/zombor/ledger-sense/internal/imaging"
	"github.com/zombor/ledger-sense/internal/ocr"
	"github.com/zombor/ledger-sense/internal/session"
	"github.com/zombor/ledger-sense/internal/upload"
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

	fs := ff.NewFlagSet("ledger-sense")
	var (
		port         = fs.IntLong("port", 8080, "HTTP server port")
		ocrURL       = fs.StringLong("ocr-url", "http://localhost:5003/ocr", "OCR service endpoint")
		ocrTimeout   = fs.DurationLong("ocr-timeout", 2*time.Minute, "Per-upload OCR timeout (0 disables)")
		authURL      = fs.StringLong("auth-url", "http://localhost:5001", "Auth service base URL")
		storeURL     = fs.StringLong("store-url", "http://localhost:5001", "Storage API base URL")
		allowedTypes = fs.StringLong("allowed-types", strings.Join(upload.DefaultAllowedTypes, ","), "Comma-separated MIME types accepted for upload")
		maxMB        = fs.IntLong("max-mb", upload.DefaultMaxBytes/(1024*1024), "Maximum upload size in MB")
		noConvert    = fs.BoolLong("no-convert", "Upload files as selected instead of converting HEIC, PDF and other images to PNG")
		mappingPath  = fs.StringLong("mapping", "", "YAML file with extra column aliases")
		sessionTTL   = fs.DurationLong("session-ttl", time.Hour, "Idle time before a session is discarded")
		authUser     = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass     = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		_            = fs.StringLong("config", "", "Config file (optional)")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("LEDGER_SENSE"),
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

	mapping, err := commit.LoadMapping(*mappingPath)
	if err != nil {
		slog.Error("Failed to load column mapping", "error", err)
		os.Exit(1)
	}

	policy := upload.Policy{
		AllowedTypes: splitList(*allowedTypes),
		MaxBytes:     int64(*maxMB) * 1024 * 1024,
	}
	if len(policy.AllowedTypes) == 0 {
		slog.Error("At least one allowed type is required")
		os.Exit(1)
	}

	deps := session.Deps{
		Policy:    policy,
		Uploader:  ocr.NewClient(*ocrURL, *ocrTimeout),
		Committer: commit.NewClient(*storeURL, mapping),
		Users:     auth.NewClient(*authURL),
	}
	if !*noConvert {
		deps.Normalize = imaging.Normalize
	}
	manager := session.NewManager(deps)

	basicAuth := session.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := session.NewServer(manager, basicAuth)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go cleanupLoop(ctx, manager, *sessionTTL)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(ctx, addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started",
		"address", fmt.Sprintf("http://localhost%s", addr),
		"ocr", *ocrURL,
		"store", *storeURL,
		"allowed_types", policy.AllowedTypes,
		"max_mb", *maxMB,
	)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	<-ctx.Done()
	slog.Info("Shutting down...")
}

// cleanupLoop drops idle sessions until ctx is done
func cleanupLoop(ctx context.Context, manager *session.Manager, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(ttl / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := manager.CleanupIdle(ttl); n > 0 {
				slog.Info("Expired idle sessions", "count", n)
			}
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
