package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"

	"toonbot/internal/filter"
	"toonbot/internal/model"
	"toonbot/internal/storage"
)

const (
	premierLeague = "ENGLAND: Premier League"
	laLiga        = "SPAIN: LaLiga"
)

func newTestRegistry(t *testing.T) (*Registry, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	r := New(store, zerolog.Nop())
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return r, store
}

func addLeagues(t *testing.T, r *Registry, guildID, channelID string, leagues ...string) {
	t.Helper()
	ctx := context.Background()
	err := r.Mutate(ctx, guildID, channelID, func(tx storage.Tx) error {
		if err := tx.AddTickerChannel(ctx, guildID, channelID); err != nil {
			return err
		}
		return tx.AddLeagues(ctx, channelID, leagues...)
	})
	if err != nil {
		t.Fatalf("add leagues: %v", err)
	}
}

func channelIDs(targets []Target) []string {
	var ids []string
	for _, t := range targets {
		ids = append(ids, t.ChannelID)
	}
	return ids
}

func TestTrackedChannelsByLeague(t *testing.T) {
	r, _ := newTestRegistry(t)
	addLeagues(t, r, "g1", "c1", premierLeague)
	addLeagues(t, r, "g1", "c2", laLiga)

	if diff := cmp.Diff([]string{"c1"}, channelIDs(r.TrackedChannels(premierLeague, model.KindGoal))); diff != "" {
		t.Errorf("premier league targets (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"c2"}, channelIDs(r.TrackedChannels(laLiga, model.KindGoal))); diff != "" {
		t.Errorf("laliga targets (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{premierLeague, laLiga}, r.Categories()); diff != "" {
		t.Errorf("categories (-want +got):\n%s", diff)
	}
}

func TestClearLeaguesExcludesChannel(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	addLeagues(t, r, "g1", "c1", premierLeague)

	err := r.Mutate(ctx, "g1", "c1", func(tx storage.Tx) error { return tx.ClearLeagues(ctx, "c1") })
	if err != nil {
		t.Fatalf("clear: %v", err)
	}

	if got := r.TrackedChannels(premierLeague, model.KindGoal); len(got) != 0 {
		t.Errorf("expected no targets after clearing leagues, got %v", channelIDs(got))
	}
	if len(r.Categories()) != 0 {
		t.Errorf("expected no categories, got %v", r.Categories())
	}
	if _, err := r.Channel("c1"); err != nil {
		t.Errorf("channel should stay registered with an empty league set: %v", err)
	}
}

func TestDisabledKindExcluded(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	addLeagues(t, r, "g1", "c1", premierLeague)
	addLeagues(t, r, "g1", "c2", premierLeague)

	err := r.Mutate(ctx, "g1", "c2", func(tx storage.Tx) error {
		return tx.SetEventEnabled(ctx, "c2", model.KindRedCard, false)
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}

	if diff := cmp.Diff([]string{"c1"}, channelIDs(r.TrackedChannels(premierLeague, model.KindRedCard))); diff != "" {
		t.Errorf("red card targets (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"c1", "c2"}, channelIDs(r.TrackedChannels(premierLeague, model.KindGoal))); diff != "" {
		t.Errorf("goal targets (-want +got):\n%s", diff)
	}
}

func TestMutateRefreshesOnFailure(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	boom := errors.New("boom")
	err := r.Mutate(ctx, "g1", "c1", func(tx storage.Tx) error {
		if err := tx.AddTickerChannel(ctx, "g1", "c1"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var cfgErr *ConfigurationError
	if _, err := r.Channel("c1"); !errors.As(err, &cfgErr) {
		t.Errorf("expected rolled back channel to be unknown, got %v", err)
	}
}

func TestStaleChannelPrunedOnNextMutation(t *testing.T) {
	ctx := context.Background()
	r, store := newTestRegistry(t)
	addLeagues(t, r, "g1", "c1", premierLeague)
	addLeagues(t, r, "g1", "c2", premierLeague)
	addLeagues(t, r, "g2", "c3", premierLeague)

	r.MarkStale("c1")
	if diff := cmp.Diff([]string{"c2", "c3"}, channelIDs(r.TrackedChannels(premierLeague, model.KindGoal))); diff != "" {
		t.Errorf("targets after stale mark (-want +got):\n%s", diff)
	}

	// A mutation in another guild leaves c1 in storage.
	addLeagues(t, r, "g2", "c3", laLiga)
	channels, _ := store.ListTickerChannels(ctx)
	if len(channels) != 3 {
		t.Fatalf("expected 3 stored channels, got %d", len(channels))
	}

	addLeagues(t, r, "g1", "c2", laLiga)
	channels, _ = store.ListTickerChannels(ctx)
	var stored []string
	for _, c := range channels {
		stored = append(stored, c.ChannelID)
	}
	if diff := cmp.Diff([]string{"c2", "c3"}, stored); diff != "" {
		t.Errorf("stored channels after prune (-want +got):\n%s", diff)
	}
}

func TestMutationRevivesStaleChannel(t *testing.T) {
	r, _ := newTestRegistry(t)
	addLeagues(t, r, "g1", "c1", premierLeague)
	addLeagues(t, r, "g1", "c2", premierLeague)

	r.MarkStale("c1")
	r.MarkStale("c2")
	addLeagues(t, r, "g1", "c1", laLiga)

	ch, err := r.Channel("c1")
	if err != nil {
		t.Fatalf("channel acted on must survive the prune: %v", err)
	}
	if diff := cmp.Diff([]string{premierLeague, laLiga}, ch.Leagues); diff != "" {
		t.Errorf("leagues (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"c1"}, channelIDs(r.TrackedChannels(laLiga, model.KindGoal))); diff != "" {
		t.Errorf("LaLiga targets (-want +got):\n%s", diff)
	}
	if _, err := r.Channel("c2"); err == nil {
		t.Error("other stale channel of the guild should be pruned")
	}

	// c1 is no longer stale, so a later mutation keeps it.
	addLeagues(t, r, "g1", "c3", premierLeague)
	if _, err := r.Channel("c1"); err != nil {
		t.Errorf("revived channel pruned later: %v", err)
	}
}

func TestRemoveGuild(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	addLeagues(t, r, "g1", "c1", premierLeague)
	addLeagues(t, r, "g2", "c2", premierLeague)

	if err := r.RemoveGuild(ctx, "g1"); err != nil {
		t.Fatalf("remove guild: %v", err)
	}
	if diff := cmp.Diff([]string{"c2"}, channelIDs(r.TrackedChannels(premierLeague, model.KindGoal))); diff != "" {
		t.Errorf("targets after guild removal (-want +got):\n%s", diff)
	}

	if err := r.RemoveChannel(ctx, "g2", "c2"); err != nil {
		t.Fatalf("remove channel: %v", err)
	}
	if got := r.TrackedChannels(premierLeague, model.KindGoal); len(got) != 0 {
		t.Errorf("expected no targets, got %v", channelIDs(got))
	}
}

func TestNewsTargets(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	const feed = "https://news.example.com/rss"

	err := r.Mutate(ctx, "g1", "c1", func(tx storage.Tx) error {
		tr := &model.NewsTracker{GuildID: "g1", ChannelID: "c1", FeedURL: feed, Extended: true}
		if err := tx.AddNewsTracker(ctx, tr); err != nil {
			return err
		}
		return tx.AddNewsFilter(ctx, &model.Filter{
			TrackerID: tr.ID, Kind: model.FilterInclude, Scope: model.ScopeAll, Value: "arsenal",
		})
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}

	if diff := cmp.Diff([]string{feed}, r.Feeds()); diff != "" {
		t.Errorf("feeds (-want +got):\n%s", diff)
	}

	got := r.TrackedChannels(feed, model.KindNewArticle)
	want := []Target{{GuildID: "g1", ChannelID: "c1", Extended: true}}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Target{}, "Filters")); diff != "" {
		t.Errorf("news targets (-want +got):\n%s", diff)
	}
	if got[0].Filters.Allows(filter.Article{Title: "Chelsea news"}) {
		t.Error("expected filter to reject unrelated article")
	}

	if _, err := r.Tracker("c1", feed); err != nil {
		t.Errorf("Tracker: %v", err)
	}
	var cfgErr *ConfigurationError
	if _, err := r.Tracker("c1", "https://other"); !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigurationError, got %v", err)
	}
}
