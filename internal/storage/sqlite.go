package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"toonbot/internal/model"
	"toonbot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite has a single writer, and every connection to ":memory:" is a
	// separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Up(context.Background(), db, zerolog.Nop()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a transaction and commits it when fn succeeds.
func (s *SQLite) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Op: "begin tx", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "commit", Err: err}
	}
	return nil
}

// ListTickerChannels returns every ticker channel with its leagues and settings.
func (s *SQLite) ListTickerChannels(ctx context.Context) ([]model.TickerChannel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id, guild_id, extended, created_at FROM ticker_channels ORDER BY guild_id, channel_id`,
	)
	if err != nil {
		return nil, &PersistenceError{Op: "query ticker channels", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var channels []model.TickerChannel
	index := make(map[string]int)
	for rows.Next() {
		var c model.TickerChannel
		var extended int
		var created string
		if err := rows.Scan(&c.ChannelID, &c.GuildID, &extended, &created); err != nil {
			return nil, &PersistenceError{Op: "scan ticker channel", Err: err}
		}
		c.Extended = extended == 1
		c.CreatedAt, _ = time.Parse(timeLayout, created)
		c.Disabled = make(map[model.EventKind]bool)
		index[c.ChannelID] = len(channels)
		channels = append(channels, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "iterate ticker channels", Err: err}
	}

	leagues, err := s.db.QueryContext(ctx, `SELECT channel_id, league FROM ticker_leagues ORDER BY channel_id, league`)
	if err != nil {
		return nil, &PersistenceError{Op: "query ticker leagues", Err: err}
	}
	defer func() { _ = leagues.Close() }()
	for leagues.Next() {
		var channelID, league string
		if err := leagues.Scan(&channelID, &league); err != nil {
			return nil, &PersistenceError{Op: "scan ticker league", Err: err}
		}
		if i, ok := index[channelID]; ok {
			channels[i].Leagues = append(channels[i].Leagues, league)
		}
	}
	if err := leagues.Err(); err != nil {
		return nil, &PersistenceError{Op: "iterate ticker leagues", Err: err}
	}

	settings, err := s.db.QueryContext(ctx, `SELECT channel_id, kind, enabled FROM ticker_settings`)
	if err != nil {
		return nil, &PersistenceError{Op: "query ticker settings", Err: err}
	}
	defer func() { _ = settings.Close() }()
	for settings.Next() {
		var channelID, kind string
		var enabled int
		if err := settings.Scan(&channelID, &kind, &enabled); err != nil {
			return nil, &PersistenceError{Op: "scan ticker setting", Err: err}
		}
		if i, ok := index[channelID]; ok && enabled == 0 {
			channels[i].Disabled[model.EventKind(kind)] = true
		}
	}
	if err := settings.Err(); err != nil {
		return nil, &PersistenceError{Op: "iterate ticker settings", Err: err}
	}

	return channels, nil
}

// ListNewsTrackers returns every news tracker with its filters.
func (s *SQLite) ListNewsTrackers(ctx context.Context) ([]model.NewsTracker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, guild_id, channel_id, feed_url, extended, created_at FROM news_trackers ORDER BY id`,
	)
	if err != nil {
		return nil, &PersistenceError{Op: "query news trackers", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var trackers []model.NewsTracker
	index := make(map[int64]int)
	for rows.Next() {
		var t model.NewsTracker
		var extended int
		var created string
		if err := rows.Scan(&t.ID, &t.GuildID, &t.ChannelID, &t.FeedURL, &extended, &created); err != nil {
			return nil, &PersistenceError{Op: "scan news tracker", Err: err}
		}
		t.Extended = extended == 1
		t.CreatedAt, _ = time.Parse(timeLayout, created)
		index[t.ID] = len(trackers)
		trackers = append(trackers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "iterate news trackers", Err: err}
	}

	filters, err := s.db.QueryContext(ctx,
		`SELECT id, tracker_id, kind, scope, value, created_at FROM news_filters ORDER BY id`,
	)
	if err != nil {
		return nil, &PersistenceError{Op: "query news filters", Err: err}
	}
	defer func() { _ = filters.Close() }()
	for filters.Next() {
		f, err := scanFilter(filters)
		if err != nil {
			return nil, err
		}
		if i, ok := index[f.TrackerID]; ok {
			trackers[i].Filters = append(trackers[i].Filters, f)
		}
	}
	if err := filters.Err(); err != nil {
		return nil, &PersistenceError{Op: "iterate news filters", Err: err}
	}

	return trackers, nil
}

// LoadSnapshots returns the persisted snapshots of one poller.
func (s *SQLite) LoadSnapshots(ctx context.Context, poller string) ([]model.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM snapshots WHERE poller = ? ORDER BY entity_id`, poller,
	)
	if err != nil {
		return nil, &PersistenceError{Op: "query snapshots", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var snaps []model.Snapshot
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, &PersistenceError{Op: "scan snapshot", Err: err}
		}
		var snap model.Snapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			return nil, &PersistenceError{Op: "decode snapshot", Err: err}
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "iterate snapshots", Err: err}
	}
	return snaps, nil
}

// SaveSnapshot stores the latest snapshot of an entity, replacing the previous one.
func (s *SQLite) SaveSnapshot(ctx context.Context, poller string, snap model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return &PersistenceError{Op: "encode snapshot", Err: err}
	}
	now := time.Now().UTC().Format(timeLayout)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (poller, entity_id, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (poller, entity_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		poller, snap.EntityID, string(data), now,
	)
	if err != nil {
		return &PersistenceError{Op: "save snapshot", Err: err}
	}
	return nil
}

// DeleteSnapshots removes the snapshots of entities no longer tracked.
func (s *SQLite) DeleteSnapshots(ctx context.Context, poller string, entityIDs []string) error {
	if len(entityIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Op: "begin tx", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range entityIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE poller = ? AND entity_id = ?`, poller, id); err != nil {
			return &PersistenceError{Op: "delete snapshot", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "commit", Err: err}
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

// AddTickerChannel registers a channel for match events. Existing channels are left untouched.
func (t *sqliteTx) AddTickerChannel(ctx context.Context, guildID, channelID string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := t.tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO ticker_channels (channel_id, guild_id, extended, created_at) VALUES (?, ?, 0, ?)`,
		channelID, guildID, now,
	)
	if err != nil {
		return &PersistenceError{Op: "insert ticker channel", Err: err}
	}
	return nil
}

// AddLeagues subscribes a channel to leagues. Duplicates are ignored.
func (t *sqliteTx) AddLeagues(ctx context.Context, channelID string, leagues ...string) error {
	for _, league := range leagues {
		if _, err := t.tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO ticker_leagues (channel_id, league) VALUES (?, ?)`, channelID, league,
		); err != nil {
			return &PersistenceError{Op: "insert ticker league", Err: err}
		}
	}
	return nil
}

// RemoveLeague unsubscribes a channel from one league and reports whether it was subscribed.
func (t *sqliteTx) RemoveLeague(ctx context.Context, channelID, league string) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM ticker_leagues WHERE channel_id = ? AND league = ?`, channelID, league,
	)
	if err != nil {
		return false, &PersistenceError{Op: "delete ticker league", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &PersistenceError{Op: "rows affected", Err: err}
	}
	return n > 0, nil
}

// ClearLeagues removes every league of a channel, leaving it untracked.
func (t *sqliteTx) ClearLeagues(ctx context.Context, channelID string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM ticker_leagues WHERE channel_id = ?`, channelID); err != nil {
		return &PersistenceError{Op: "clear ticker leagues", Err: err}
	}
	return nil
}

// SetExtended switches a channel between short and extended notifications.
func (t *sqliteTx) SetExtended(ctx context.Context, channelID string, extended bool) error {
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE ticker_channels SET extended = ? WHERE channel_id = ?`, boolToInt(extended), channelID,
	); err != nil {
		return &PersistenceError{Op: "update ticker channel", Err: err}
	}
	return nil
}

// SetEventEnabled toggles one event kind for a channel.
func (t *sqliteTx) SetEventEnabled(ctx context.Context, channelID string, kind model.EventKind, enabled bool) error {
	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO ticker_settings (channel_id, kind, enabled) VALUES (?, ?, ?)
		 ON CONFLICT (channel_id, kind) DO UPDATE SET enabled = excluded.enabled`,
		channelID, string(kind), boolToInt(enabled),
	); err != nil {
		return &PersistenceError{Op: "upsert ticker setting", Err: err}
	}
	return nil
}

// AddNewsTracker inserts a news tracker and populates its ID and CreatedAt.
func (t *sqliteTx) AddNewsTracker(ctx context.Context, tr *model.NewsTracker) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO news_trackers (guild_id, channel_id, feed_url, extended, created_at) VALUES (?, ?, ?, ?, ?)`,
		tr.GuildID, tr.ChannelID, tr.FeedURL, boolToInt(tr.Extended), now,
	)
	if err != nil {
		return &PersistenceError{Op: "insert news tracker", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return &PersistenceError{Op: "last insert id", Err: err}
	}
	tr.ID = id
	tr.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// RemoveNewsTracker deletes a tracker and its filters and reports whether it existed.
func (t *sqliteTx) RemoveNewsTracker(ctx context.Context, channelID, feedURL string) (bool, error) {
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM news_filters WHERE tracker_id IN
		   (SELECT id FROM news_trackers WHERE channel_id = ? AND feed_url = ?)`,
		channelID, feedURL,
	); err != nil {
		return false, &PersistenceError{Op: "delete news filters", Err: err}
	}
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM news_trackers WHERE channel_id = ? AND feed_url = ?`, channelID, feedURL,
	)
	if err != nil {
		return false, &PersistenceError{Op: "delete news tracker", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &PersistenceError{Op: "rows affected", Err: err}
	}
	return n > 0, nil
}

// AddNewsFilter inserts a keyword filter and populates its ID and CreatedAt.
func (t *sqliteTx) AddNewsFilter(ctx context.Context, f *model.Filter) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO news_filters (tracker_id, kind, scope, value, created_at) VALUES (?, ?, ?, ?, ?)`,
		f.TrackerID, string(f.Kind), string(f.Scope), f.Value, now,
	)
	if err != nil {
		return &PersistenceError{Op: "insert news filter", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return &PersistenceError{Op: "last insert id", Err: err}
	}
	f.ID = id
	f.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// DeleteChannel removes every row that refers to a channel.
func (t *sqliteTx) DeleteChannel(ctx context.Context, channelID string) error {
	stmts := []struct{ op, query string }{
		{"delete ticker leagues", `DELETE FROM ticker_leagues WHERE channel_id = ?`},
		{"delete ticker settings", `DELETE FROM ticker_settings WHERE channel_id = ?`},
		{"delete ticker channel", `DELETE FROM ticker_channels WHERE channel_id = ?`},
		{"delete news filters", `DELETE FROM news_filters WHERE tracker_id IN (SELECT id FROM news_trackers WHERE channel_id = ?)`},
		{"delete news trackers", `DELETE FROM news_trackers WHERE channel_id = ?`},
	}
	for _, st := range stmts {
		if _, err := t.tx.ExecContext(ctx, st.query, channelID); err != nil {
			return &PersistenceError{Op: st.op, Err: err}
		}
	}
	return nil
}

// DeleteGuild removes every channel of a guild.
func (t *sqliteTx) DeleteGuild(ctx context.Context, guildID string) error {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT channel_id FROM ticker_channels WHERE guild_id = ?
		 UNION SELECT channel_id FROM news_trackers WHERE guild_id = ?`,
		guildID, guildID,
	)
	if err != nil {
		return &PersistenceError{Op: "query guild channels", Err: err}
	}
	var channels []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return &PersistenceError{Op: "scan guild channel", Err: err}
		}
		channels = append(channels, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return &PersistenceError{Op: "iterate guild channels", Err: err}
	}
	_ = rows.Close()

	for _, id := range channels {
		if err := t.DeleteChannel(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanFilter(row scannable) (model.Filter, error) {
	var f model.Filter
	var kindStr, scopeStr, createdStr string
	err := row.Scan(&f.ID, &f.TrackerID, &kindStr, &scopeStr, &f.Value, &createdStr)
	if err != nil {
		return f, &PersistenceError{Op: "scan news filter", Err: err}
	}
	f.Kind = model.FilterKind(kindStr)
	f.Scope = model.FilterScope(scopeStr)
	f.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	return f, nil
}
