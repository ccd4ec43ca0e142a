package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"finetune-console/internal/config"
	"finetune-console/internal/console"
	"finetune-console/internal/session"
	"finetune-console/internal/transport"

	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const userAgent = "finetune-console/1.0"

func readPassword() (string, error) {
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	return string(password), err
}

func main() {
	envFile := pflag.String("env", "", "path to load env from")
	profile := pflag.String("profile", "", "path to a YAML profile (default <state dir>/console.yaml)")
	baseURL := pflag.String("api", "", "backend base URL, overrides the profile and environment")
	pflag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		log.Fatal(err)
	}

	cfg, err := config.LoadConsoleConfig(*profile)
	if err != nil {
		log.Fatal(err)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}

	if err := os.MkdirAll(cfg.StateDir, 0700); err != nil {
		log.Fatalf("error creating state directory: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(cfg.StateDir, "console.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("invalid log level %q: %v", cfg.LogLevel, err)
	}
	log.SetOutput(f)
	slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})))

	db, err := session.OpenDatabase(filepath.Join(cfg.StateDir, "console.db"))
	if err != nil {
		log.Fatalf("error opening session database: %v", err)
	}

	app, err := console.NewApp(transport.Config{BaseURL: cfg.BaseURL, Timeout: cfg.Timeout, UserAgent: userAgent}, session.NewDBPersister(db))
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting console", "api", cfg.BaseURL, "state_dir", cfg.StateDir)
	app.Store.Resolve(ctx, app.Auth)

	interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	opts := console.Options{
		In:      os.Stdin,
		Out:     os.Stdout,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Spinner: interactive,
	}
	if interactive {
		opts.ReadSecret = readPassword
	}

	if err := console.New(app, opts).Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("console stopped", "error", err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
