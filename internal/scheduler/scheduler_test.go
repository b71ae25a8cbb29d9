package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"toonbot/internal/dispatch"
	"toonbot/internal/model"
	"toonbot/internal/storage"
)

type fakeAdapter struct {
	mu        sync.Mutex
	ids       []string
	listErr   error
	snapshots map[string]model.Snapshot
	failing   map[string]bool
}

func (f *fakeAdapter) Entities(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.ids...), nil
}

func (f *fakeAdapter) FetchSnapshot(_ context.Context, id string) (model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[id] {
		return model.Snapshot{}, errors.New("upstream 503")
	}
	return f.snapshots[id], nil
}

func (f *fakeAdapter) set(s model.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[s.EntityID] = s
}

type mockDispatcher struct {
	mu     sync.Mutex
	events []model.Event
}

func (m *mockDispatcher) Dispatch(_ context.Context, ev model.Event, _ model.Snapshot) dispatch.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return dispatch.Result{Sent: 1}
}

func (m *mockDispatcher) kinds() []model.EventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.EventKind
	for _, ev := range m.events {
		out = append(out, ev.Kind)
	}
	return out
}

type mockRegistry struct{ refreshed int }

func (m *mockRegistry) Refresh(context.Context) error {
	m.refreshed++
	return nil
}

type mockAlerter struct {
	mu     sync.Mutex
	alerts []string
}

func (m *mockAlerter) Alert(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, text)
	return nil
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func match(id string, status model.Status, events ...model.SubEvent) model.Snapshot {
	return model.Snapshot{
		EntityID: id,
		Category: "ENGLAND: Premier League",
		Home:     "Arsenal",
		Away:     "Chelsea",
		Status:   status,
		Events:   events,
	}
}

func goal(id, player string) model.SubEvent {
	return model.SubEvent{ID: id, Kind: model.KindGoal, Team: model.SideHome, Player: player, Minute: "10"}
}

func TestWarmUpIsSilent(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{
		ids:       []string{"m1"},
		snapshots: map[string]model.Snapshot{"m1": match("m1", model.StatusLive, goal("e1", "Saka"))},
	}
	d := &mockDispatcher{}
	reg := &mockRegistry{}
	s := New("ticker", adapter, newTestStore(t), reg, d, zerolog.Nop())

	if err := s.BeforeLoop(ctx); err != nil {
		t.Fatalf("BeforeLoop: %v", err)
	}
	if len(d.kinds()) != 0 {
		t.Errorf("expected no events during warm-up, got %v", d.kinds())
	}
	if diff := cmp.Diff(1, reg.refreshed); diff != "" {
		t.Errorf("refresh count (-want +got):\n%s", diff)
	}
	if _, ok := s.Cache().Get("m1"); !ok {
		t.Error("expected warm-up to populate the cache")
	}
}

func TestTickDispatchesChanges(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{
		ids:       []string{"m1"},
		snapshots: map[string]model.Snapshot{"m1": match("m1", model.StatusScheduled)},
	}
	d := &mockDispatcher{}
	var after []model.EventKind
	s := New("ticker", adapter, newTestStore(t), &mockRegistry{}, d, zerolog.Nop(),
		WithAfterDispatch(func(_ context.Context, ev model.Event) { after = append(after, ev.Kind) }),
	)
	if err := s.BeforeLoop(ctx); err != nil {
		t.Fatalf("BeforeLoop: %v", err)
	}

	adapter.set(match("m1", model.StatusLive, goal("e1", "Saka")))
	s.Tick(ctx)

	want := []model.EventKind{model.KindKickOff, model.KindGoal}
	if diff := cmp.Diff(want, d.kinds()); diff != "" {
		t.Errorf("dispatched kinds (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, after); diff != "" {
		t.Errorf("after-dispatch kinds (-want +got):\n%s", diff)
	}

	// Nothing changed: nothing is dispatched again.
	s.Tick(ctx)
	if diff := cmp.Diff(want, d.kinds()); diff != "" {
		t.Errorf("dispatched kinds after idle tick (-want +got):\n%s", diff)
	}
}

func TestTickIsolatesFailingEntity(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{
		ids: []string{"m1", "m2"},
		snapshots: map[string]model.Snapshot{
			"m1": match("m1", model.StatusLive),
			"m2": match("m2", model.StatusLive),
		},
	}
	d := &mockDispatcher{}
	s := New("ticker", adapter, newTestStore(t), &mockRegistry{}, d, zerolog.Nop())
	if err := s.BeforeLoop(ctx); err != nil {
		t.Fatalf("BeforeLoop: %v", err)
	}

	adapter.mu.Lock()
	adapter.failing = map[string]bool{"m1": true}
	adapter.mu.Unlock()
	adapter.set(match("m2", model.StatusLive, goal("e9", "Jesus")))
	s.Tick(ctx)

	if diff := cmp.Diff([]model.EventKind{model.KindGoal}, d.kinds()); diff != "" {
		t.Errorf("dispatched kinds (-want +got):\n%s", diff)
	}
	if _, ok := s.Cache().Get("m1"); !ok {
		t.Error("failed entity should keep its previous snapshot")
	}
}

func TestTickForgetsVanishedEntities(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	adapter := &fakeAdapter{
		ids: []string{"m1", "m2"},
		snapshots: map[string]model.Snapshot{
			"m1": match("m1", model.StatusFinished),
			"m2": match("m2", model.StatusLive),
		},
	}
	s := New("ticker", adapter, store, &mockRegistry{}, &mockDispatcher{}, zerolog.Nop())
	if err := s.BeforeLoop(ctx); err != nil {
		t.Fatalf("BeforeLoop: %v", err)
	}

	adapter.mu.Lock()
	adapter.ids = []string{"m2"}
	adapter.mu.Unlock()
	s.Tick(ctx)

	if diff := cmp.Diff(1, s.Cache().Len()); diff != "" {
		t.Errorf("cache size (-want +got):\n%s", diff)
	}
	persisted, err := store.LoadSnapshots(ctx, "ticker")
	if err != nil {
		t.Fatalf("load snapshots: %v", err)
	}
	var ids []string
	for _, p := range persisted {
		ids = append(ids, p.EntityID)
	}
	if diff := cmp.Diff([]string{"m2"}, ids); diff != "" {
		t.Errorf("persisted entities (-want +got):\n%s", diff)
	}
}

func persistedIDs(t *testing.T, store *storage.SQLite) []string {
	t.Helper()
	persisted, err := store.LoadSnapshots(context.Background(), "ticker")
	if err != nil {
		t.Fatalf("load snapshots: %v", err)
	}
	var ids []string
	for _, p := range persisted {
		ids = append(ids, p.EntityID)
	}
	return ids
}

func TestPersistedSnapshotsAfterRestart(t *testing.T) {
	tests := []struct {
		name          string
		warmUpFails   bool
		wantCached    int
		wantPersisted []string
		wantFirstTick []model.EventKind
	}{
		{
			name:          "refreshed snapshot is replaced silently",
			wantCached:    1,
			wantPersisted: []string{"m1"},
			wantFirstTick: []model.EventKind{model.KindHalfTime},
		},
		{
			name:          "unrefreshed snapshot is dropped",
			warmUpFails:   true,
			wantPersisted: nil,
			wantFirstTick: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newTestStore(t)
			if err := store.SaveSnapshot(ctx, "ticker", match("m1", model.StatusLive)); err != nil {
				t.Fatalf("save snapshot: %v", err)
			}

			adapter := &fakeAdapter{
				ids:       []string{"m1"},
				snapshots: map[string]model.Snapshot{"m1": match("m1", model.StatusLive)},
				failing:   map[string]bool{"m1": tt.warmUpFails},
			}
			d := &mockDispatcher{}
			s := New("ticker", adapter, store, &mockRegistry{}, d, zerolog.Nop())
			if err := s.BeforeLoop(ctx); err != nil {
				t.Fatalf("BeforeLoop: %v", err)
			}
			if diff := cmp.Diff(tt.wantCached, s.Cache().Len()); diff != "" {
				t.Errorf("cache size after warm-up (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantPersisted, persistedIDs(t, store)); diff != "" {
				t.Errorf("persisted entities after warm-up (-want +got):\n%s", diff)
			}

			adapter.mu.Lock()
			adapter.failing = nil
			adapter.mu.Unlock()
			adapter.set(match("m1", model.StatusHalfTime))
			s.Tick(ctx)

			if diff := cmp.Diff(tt.wantFirstTick, d.kinds()); diff != "" {
				t.Errorf("dispatched kinds on first tick (-want +got):\n%s", diff)
			}

			// From here on the entity is diffed normally.
			adapter.set(match("m1", model.StatusLive))
			s.Tick(ctx)
			kinds := d.kinds()
			if len(kinds) == 0 || kinds[len(kinds)-1] != model.KindSecondHalf {
				t.Errorf("expected second_half after the second tick, got %v", kinds)
			}
		})
	}
}

func TestAlertAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	adapter := &fakeAdapter{listErr: errors.New("scoreboard down"), snapshots: map[string]model.Snapshot{}}
	alerter := &mockAlerter{}
	s := New("ticker", adapter, newTestStore(t), &mockRegistry{}, &mockDispatcher{}, zerolog.Nop(),
		WithAlerter(alerter, 3),
	)

	for range 5 {
		s.Tick(ctx)
	}
	if diff := cmp.Diff([]string{"ticker poller failed 3 ticks in a row: scoreboard down"}, alerter.alerts); diff != "" {
		t.Errorf("alerts (-want +got):\n%s", diff)
	}

	adapter.mu.Lock()
	adapter.listErr = nil
	adapter.mu.Unlock()
	s.Tick(ctx)

	adapter.mu.Lock()
	adapter.listErr = errors.New("down again")
	adapter.mu.Unlock()
	for range 3 {
		s.Tick(ctx)
	}
	if diff := cmp.Diff(2, len(alerter.alerts)); diff != "" {
		t.Errorf("alert count after recovery (-want +got):\n%s", diff)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	adapter := &fakeAdapter{ids: []string{"m1"}, snapshots: map[string]model.Snapshot{"m1": match("m1", model.StatusLive)}}
	s := New("ticker", adapter, newTestStore(t), &mockRegistry{}, &mockDispatcher{}, zerolog.Nop())
	s.SetTickInterval(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
