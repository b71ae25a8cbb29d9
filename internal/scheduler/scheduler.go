// Package scheduler polls an upstream source at a fixed interval, diffs
// every entity against its cached snapshot and dispatches the resulting events.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"toonbot/internal/cache"
	"toonbot/internal/diff"
	"toonbot/internal/dispatch"
	"toonbot/internal/model"
)

// Adapter is the upstream a scheduler polls.
type Adapter interface {
	Entities(ctx context.Context) ([]string, error)
	FetchSnapshot(ctx context.Context, entityID string) (model.Snapshot, error)
}

// Dispatcher delivers events.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev model.Event, snap model.Snapshot) dispatch.Result
}

// Registry is refreshed once before the loop starts.
type Registry interface {
	Refresh(ctx context.Context) error
}

// SnapshotStore persists the cache across restarts.
type SnapshotStore interface {
	LoadSnapshots(ctx context.Context, poller string) ([]model.Snapshot, error)
	SaveSnapshot(ctx context.Context, poller string, s model.Snapshot) error
	DeleteSnapshots(ctx context.Context, poller string, entityIDs []string) error
}

// Metrics receives poll counters.
type Metrics interface {
	TickCompleted(poller string, took time.Duration)
	UpstreamError(poller string)
	Tracked(poller string, n int)
}

// Alerter notifies the bot owner.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// AfterDispatch runs after each event has been dispatched.
type AfterDispatch func(ctx context.Context, ev model.Event)

type nopMetrics struct{}

func (nopMetrics) TickCompleted(string, time.Duration) {}
func (nopMetrics) UpstreamError(string)                {}
func (nopMetrics) Tracked(string, int)                 {}

// Scheduler runs one poll loop.
type Scheduler struct {
	name       string
	adapter    Adapter
	store      SnapshotStore
	registry   Registry
	dispatcher Dispatcher
	cache      *cache.Cache
	differ     *diff.Engine
	log        zerolog.Logger
	tick       time.Duration

	after      AfterDispatch
	metrics    Metrics
	alerter    Alerter
	alertAfter int

	// failing counts consecutive ticks in which every fetch failed.
	failing int
	alerted bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithAfterDispatch sets a hook run after every dispatched event.
func WithAfterDispatch(fn AfterDispatch) Option {
	return func(s *Scheduler) { s.after = fn }
}

// WithMetrics reports poll counters to m.
func WithMetrics(m Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithAlerter alerts the owner once after ticks consecutive failed ticks.
func WithAlerter(a Alerter, ticks int) Option {
	return func(s *Scheduler) {
		s.alerter = a
		s.alertAfter = ticks
	}
}

// New creates a Scheduler named name. The name keys persisted snapshots and
// metrics, so it must be stable across restarts.
func New(name string, adapter Adapter, store SnapshotStore, reg Registry, d Dispatcher, log zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		name:       name,
		adapter:    adapter,
		store:      store,
		registry:   reg,
		dispatcher: d,
		cache:      cache.New(),
		differ:     diff.New(log),
		log:        log.With().Str("poller", name).Logger(),
		tick:       1 * time.Minute,
		metrics:    nopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetTickInterval overrides the default 1-minute poll interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Cache returns the snapshot cache of the scheduler.
func (s *Scheduler) Cache() *cache.Cache {
	return s.cache
}

// Run warms the cache up, then polls until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.BeforeLoop(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// BeforeLoop refreshes the registry, loads persisted snapshots and fills the
// cache with one pass that dispatches nothing. A persisted snapshot that pass
// could not refresh is dropped, so the first tick treats its entity as new
// instead of diffing against state from before the restart.
func (s *Scheduler) BeforeLoop(ctx context.Context) error {
	if err := s.registry.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh registry: %w", err)
	}

	snaps, err := s.store.LoadSnapshots(ctx, s.name)
	if err != nil {
		return fmt.Errorf("load snapshots: %w", err)
	}
	s.cache.Load(snaps)
	s.log.Info().Int("snapshots", len(snaps)).Msg("cache loaded")

	refreshed := s.pass(ctx, true)
	if dropped := s.cache.Retain(refreshed); len(dropped) > 0 {
		if err := s.store.DeleteSnapshots(ctx, s.name, dropped); err != nil {
			s.log.Error().Err(err).Msg("delete unrefreshed snapshots")
		}
		s.log.Info().Strs("entities", dropped).Msg("dropped snapshots the warm-up could not refresh")
	}
	return nil
}

// Tick polls every entity once and dispatches what changed.
func (s *Scheduler) Tick(ctx context.Context) {
	s.pass(ctx, false)
}

// pass polls every entity once and returns the IDs it fetched successfully.
func (s *Scheduler) pass(ctx context.Context, silent bool) []string {
	start := time.Now()
	log := s.log.With().Str("tick", uuid.NewString()).Logger()

	ids, err := s.adapter.Entities(ctx)
	if err != nil {
		log.Error().Err(err).Msg("list entities")
		s.metrics.UpstreamError(s.name)
		s.recordFailure(ctx, err)
		return nil
	}
	s.metrics.Tracked(s.name, len(ids))

	failed := 0
	var lastErr error
	var refreshed []string
	for _, id := range ids {
		if ctx.Err() != nil {
			return refreshed
		}
		if err := s.process(ctx, log, id, silent); err != nil {
			failed++
			lastErr = err
			continue
		}
		refreshed = append(refreshed, id)
	}

	if dropped := s.cache.Retain(ids); len(dropped) > 0 {
		if err := s.store.DeleteSnapshots(ctx, s.name, dropped); err != nil {
			log.Error().Err(err).Msg("delete snapshots")
		}
		log.Debug().Strs("entities", dropped).Msg("stopped tracking")
	}

	if len(ids) > 0 && failed == len(ids) {
		s.recordFailure(ctx, lastErr)
	} else {
		s.failing = 0
		s.alerted = false
	}

	s.metrics.TickCompleted(s.name, time.Since(start))
	log.Debug().Int("entities", len(ids)).Int("failed", failed).Bool("silent", silent).Msg("tick done")
	return refreshed
}

func (s *Scheduler) process(ctx context.Context, log zerolog.Logger, id string, silent bool) error {
	snap, err := s.adapter.FetchSnapshot(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("entity", id).Msg("fetch snapshot")
		s.metrics.UpstreamError(s.name)
		return err
	}

	var events []model.Event
	if old, ok := s.cache.Get(id); ok && !silent {
		events = s.differ.Diff(&old, snap)
	}

	s.cache.Put(snap)
	if err := s.store.SaveSnapshot(ctx, s.name, snap); err != nil {
		log.Error().Err(err).Str("entity", id).Msg("save snapshot")
	}

	for _, ev := range events {
		res := s.dispatcher.Dispatch(ctx, ev, snap)
		log.Info().
			Str("entity", id).
			Str("kind", string(ev.Kind)).
			Bool("revision", ev.Revision).
			Int("sent", res.Sent).
			Int("failed", res.Failed).
			Msg("event")
		if s.after != nil {
			s.after(ctx, ev)
		}
	}
	return nil
}

func (s *Scheduler) recordFailure(ctx context.Context, err error) {
	s.failing++
	if s.alerter == nil || s.alerted || s.failing < s.alertAfter {
		return
	}
	s.alerted = true
	text := fmt.Sprintf("%s poller failed %d ticks in a row: %v", s.name, s.failing, err)
	if err := s.alerter.Alert(ctx, text); err != nil {
		s.log.Error().Err(err).Msg("send owner alert")
	}
}
