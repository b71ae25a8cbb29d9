// Package migrations holds the toonbot schema: ticker channels and their
// leagues and settings, news trackers with filters, and persisted snapshots.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed *.sql
var FS embed.FS

// Dialect is the goose dialect of the bot database.
const Dialect = "sqlite3"

// Up applies every pending migration, reporting goose progress to log at
// debug level.
func Up(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	goose.SetBaseFS(FS)
	goose.SetLogger(Logger(log, zerolog.DebugLevel))
	if err := goose.SetDialect(Dialect); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Logger adapts log to the goose logger interface. Progress lines are
// written at level.
func Logger(log zerolog.Logger, level zerolog.Level) goose.Logger {
	return gooseLogger{log: log, level: level}
}

type gooseLogger struct {
	log   zerolog.Logger
	level zerolog.Level
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.WithLevel(l.level).Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.log.Fatal().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
