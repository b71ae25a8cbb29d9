package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"toonbot/migrations"
)

type command struct {
	help string
	run  func(ctx context.Context, db *sql.DB) error
}

var commands = map[string]command{
	"up":      {"Migrate to the latest version", func(ctx context.Context, db *sql.DB) error { return goose.UpContext(ctx, db, ".") }},
	"up-one":  {"Migrate one version up", func(ctx context.Context, db *sql.DB) error { return goose.UpByOneContext(ctx, db, ".") }},
	"down":    {"Roll back one version", func(ctx context.Context, db *sql.DB) error { return goose.DownContext(ctx, db, ".") }},
	"status":  {"Show migration status", func(ctx context.Context, db *sql.DB) error { return goose.StatusContext(ctx, db, ".") }},
	"version": {"Show current version", func(ctx context.Context, db *sql.DB) error { return goose.VersionContext(ctx, db, ".") }},
	"reset":   {"Roll back all migrations", func(ctx context.Context, db *sql.DB) error { return goose.ResetContext(ctx, db, ".") }},
}

func main() {
	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "./data/toonbot.db"), "path to sqlite database")
	flag.Usage = usage
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		log.Fatal().Str("command", args[0]).Msg("unknown command")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *dbPath).Msg("open database")
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(migrations.Logger(log, zerolog.InfoLevel))
	if err := goose.SetDialect(migrations.Dialect); err != nil {
		log.Fatal().Err(err).Msg("set dialect")
	}

	if err := cmd.run(ctx, db); err != nil {
		log.Error().Err(err).Str("command", args[0]).Msg("migration failed")
		_ = db.Close()
		os.Exit(1)
	}
}

func usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	out := flag.CommandLine.Output()
	fmt.Fprintln(out, "Usage: migrate [-db path] <command>")
	fmt.Fprintln(out, "Applies the toonbot schema (ticker channels, news trackers, snapshots).")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Commands:")
	for _, name := range names {
		fmt.Fprintf(out, "  %-10s  %s\n", name, commands[name].help)
	}
	fmt.Fprintln(out, "")
	flag.PrintDefaults()
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
