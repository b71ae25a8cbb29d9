// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"fmt"

	"toonbot/internal/model"
)

// Tx is the set of mutations available inside a transaction.
type Tx interface {
	AddTickerChannel(ctx context.Context, guildID, channelID string) error
	AddLeagues(ctx context.Context, channelID string, leagues ...string) error
	RemoveLeague(ctx context.Context, channelID, league string) (bool, error)
	ClearLeagues(ctx context.Context, channelID string) error
	SetExtended(ctx context.Context, channelID string, extended bool) error
	SetEventEnabled(ctx context.Context, channelID string, kind model.EventKind, enabled bool) error

	AddNewsTracker(ctx context.Context, t *model.NewsTracker) error
	RemoveNewsTracker(ctx context.Context, channelID, feedURL string) (bool, error)
	AddNewsFilter(ctx context.Context, f *model.Filter) error

	DeleteChannel(ctx context.Context, channelID string) error
	DeleteGuild(ctx context.Context, guildID string) error
}

// Storage is the interface for all persistence operations.
type Storage interface {
	// WithTx runs fn inside a transaction. The transaction is rolled back
	// when fn returns an error.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	ListTickerChannels(ctx context.Context) ([]model.TickerChannel, error)
	ListNewsTrackers(ctx context.Context) ([]model.NewsTracker, error)

	LoadSnapshots(ctx context.Context, poller string) ([]model.Snapshot, error)
	SaveSnapshot(ctx context.Context, poller string, s model.Snapshot) error
	DeleteSnapshots(ctx context.Context, poller string, entityIDs []string) error

	Close() error
}

// PersistenceError reports a failed database operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
