// Package registry keeps an in-memory view of which channels want which
// events. Reads never touch the database; every mutation goes through Mutate
// and refreshes the view afterwards.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"toonbot/internal/filter"
	"toonbot/internal/model"
	"toonbot/internal/storage"
)

// Store is the persistence the registry reads and mutates.
type Store interface {
	WithTx(ctx context.Context, fn func(tx storage.Tx) error) error
	ListTickerChannels(ctx context.Context) ([]model.TickerChannel, error)
	ListNewsTrackers(ctx context.Context) ([]model.NewsTracker, error)
}

// Target is one channel an event should be delivered to.
type Target struct {
	GuildID   string
	ChannelID string
	Extended  bool
	// Filters is set for news targets only. A nil set allows everything.
	Filters *filter.Set
}

// ConfigurationError reports a command that cannot be applied to the current
// configuration, such as removing a league the channel does not follow.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return e.Reason
}

// Rejectf builds a ConfigurationError.
func Rejectf(format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// Registry caches subscriptions loaded from the store.
type Registry struct {
	store Store
	log   zerolog.Logger

	mu         sync.RWMutex
	channels   map[string]model.TickerChannel
	byCategory map[string][]string
	trackers   map[string][]model.NewsTracker
	byFeed     map[string][]Target
	// stale maps channels the dispatcher could not reach to their guild.
	stale map[string]string
}

// New creates an empty registry. Call Refresh before use.
func New(store Store, log zerolog.Logger) *Registry {
	return &Registry{
		store:      store,
		log:        log,
		channels:   make(map[string]model.TickerChannel),
		byCategory: make(map[string][]string),
		trackers:   make(map[string][]model.NewsTracker),
		byFeed:     make(map[string][]Target),
		stale:      make(map[string]string),
	}
}

// Refresh rebuilds the cached view from the store.
func (r *Registry) Refresh(ctx context.Context) error {
	channels, err := r.store.ListTickerChannels(ctx)
	if err != nil {
		return fmt.Errorf("list ticker channels: %w", err)
	}
	trackers, err := r.store.ListNewsTrackers(ctx)
	if err != nil {
		return fmt.Errorf("list news trackers: %w", err)
	}

	byChannel := make(map[string]model.TickerChannel, len(channels))
	byCategory := make(map[string][]string)
	for _, c := range channels {
		byChannel[c.ChannelID] = c
		for _, league := range c.Leagues {
			byCategory[league] = append(byCategory[league], c.ChannelID)
		}
	}

	byTrackerChannel := make(map[string][]model.NewsTracker)
	byFeed := make(map[string][]Target)
	for _, t := range trackers {
		set, err := filter.Compile(t.Filters)
		if err != nil {
			r.log.Warn().Err(err).Int64("tracker_id", t.ID).Msg("ignoring filters of news tracker")
			set = nil
		}
		byTrackerChannel[t.ChannelID] = append(byTrackerChannel[t.ChannelID], t)
		byFeed[t.FeedURL] = append(byFeed[t.FeedURL], Target{
			GuildID:   t.GuildID,
			ChannelID: t.ChannelID,
			Extended:  t.Extended,
			Filters:   set,
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = byChannel
	r.byCategory = byCategory
	r.trackers = byTrackerChannel
	r.byFeed = byFeed
	for ch := range r.stale {
		_, ticker := byChannel[ch]
		_, news := byTrackerChannel[ch]
		if !ticker && !news {
			delete(r.stale, ch)
		}
	}
	return nil
}

// TrackedChannels returns the channels subscribed to category that have kind
// enabled. For new_article events category is the feed URL.
func (r *Registry) TrackedChannels(category string, kind model.EventKind) []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if kind == model.KindNewArticle {
		var out []Target
		for _, t := range r.byFeed[category] {
			if _, gone := r.stale[t.ChannelID]; !gone {
				out = append(out, t)
			}
		}
		return out
	}

	var out []Target
	for _, id := range r.byCategory[category] {
		c := r.channels[id]
		if _, gone := r.stale[id]; gone || !c.Wants(kind) {
			continue
		}
		out = append(out, Target{GuildID: c.GuildID, ChannelID: c.ChannelID, Extended: c.Extended})
	}
	return out
}

// Categories returns the leagues followed by at least one channel, sorted.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.byCategory)
}

// Feeds returns the feed URLs tracked by at least one channel, sorted.
func (r *Registry) Feeds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.byFeed)
}

// Channel returns the ticker configuration of a channel.
func (r *Registry) Channel(channelID string) (model.TickerChannel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.channels[channelID]
	if !ok {
		return model.TickerChannel{}, Rejectf("This channel has no ticker. Add a league first.")
	}
	return c, nil
}

// Trackers returns the news trackers of a channel.
func (r *Registry) Trackers(channelID string) []model.NewsTracker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.NewsTracker(nil), r.trackers[channelID]...)
}

// Tracker returns the tracker of feedURL in a channel.
func (r *Registry) Tracker(channelID, feedURL string) (model.NewsTracker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.trackers[channelID] {
		if t.FeedURL == feedURL {
			return t, nil
		}
	}
	return model.NewsTracker{}, Rejectf("This channel does not track %s.", feedURL)
}

// MarkStale records a channel that can no longer be reached. It stops
// receiving events at once and is deleted on the next mutation of its guild.
func (r *Registry) MarkStale(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	guildID := ""
	if c, ok := r.channels[channelID]; ok {
		guildID = c.GuildID
	} else if ts := r.trackers[channelID]; len(ts) > 0 {
		guildID = ts[0].GuildID
	} else {
		return
	}
	if _, ok := r.stale[channelID]; !ok {
		r.log.Info().Str("channel_id", channelID).Str("guild_id", guildID).Msg("channel marked stale")
	}
	r.stale[channelID] = guildID
}

// Mutate runs fn in a transaction, prunes stale channels of guildID in the
// same transaction and refreshes the view whatever the outcome. channelID is
// the channel the mutation acts on, if any: it is reachable again, so it is
// no longer stale and is never pruned.
func (r *Registry) Mutate(ctx context.Context, guildID, channelID string, fn func(tx storage.Tx) error) error {
	r.mu.Lock()
	if _, ok := r.stale[channelID]; ok && channelID != "" {
		delete(r.stale, channelID)
		r.log.Info().Str("channel_id", channelID).Msg("stale channel is active again")
	}
	var prune []string
	for ch, g := range r.stale {
		if g == guildID {
			prune = append(prune, ch)
		}
	}
	r.mu.Unlock()
	sort.Strings(prune)

	err := r.store.WithTx(ctx, func(tx storage.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		for _, ch := range prune {
			if err := tx.DeleteChannel(ctx, ch); err != nil {
				return fmt.Errorf("prune channel %s: %w", ch, err)
			}
		}
		return nil
	})
	if err == nil && len(prune) > 0 {
		r.log.Info().Str("guild_id", guildID).Strs("channels", prune).Msg("pruned stale channels")
	}

	if refreshErr := r.Refresh(ctx); refreshErr != nil {
		r.log.Error().Err(refreshErr).Msg("refresh registry after mutation")
		if err == nil {
			err = refreshErr
		}
	}
	return err
}

// RemoveChannel deletes every subscription of a channel.
func (r *Registry) RemoveChannel(ctx context.Context, guildID, channelID string) error {
	return r.Mutate(ctx, guildID, channelID, func(tx storage.Tx) error {
		return tx.DeleteChannel(ctx, channelID)
	})
}

// RemoveGuild deletes every subscription of a guild.
func (r *Registry) RemoveGuild(ctx context.Context, guildID string) error {
	return r.Mutate(ctx, guildID, "", func(tx storage.Tx) error {
		return tx.DeleteGuild(ctx, guildID)
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
