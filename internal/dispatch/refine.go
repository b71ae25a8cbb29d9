package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/rs/zerolog"

	"toonbot/internal/diff"
	"toonbot/internal/model"
)

var (
	errStillIncomplete = errors.New("sub-event still incomplete")
	errSubEventGone    = errors.New("sub-event removed upstream")
)

// FetchFunc re-reads the current snapshot of one entity.
type FetchFunc func(ctx context.Context) (model.Snapshot, error)

// RefineConfig bounds the refinement loop of one event.
type RefineConfig struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultRefineConfig waits up to a few minutes for a missing scorer.
var DefaultRefineConfig = RefineConfig{
	Attempts: 5,
	Delay:    15 * time.Second,
	MaxDelay: 2 * time.Minute,
}

// Refiner re-fetches entities whose events were published incomplete and
// edits the published messages once the missing fields appear. At most one
// refinement runs per sub-event.
type Refiner struct {
	d   *Dispatcher
	cfg RefineConfig
	log zerolog.Logger
	wg  sync.WaitGroup

	mu     sync.Mutex
	active map[recordKey]struct{}
}

// NewRefiner creates a Refiner editing the messages recorded by d.
func NewRefiner(d *Dispatcher, cfg RefineConfig, log zerolog.Logger) *Refiner {
	if cfg.Attempts == 0 {
		cfg.Attempts = 1
	}
	return &Refiner{d: d, cfg: cfg, log: log, active: make(map[recordKey]struct{})}
}

// Refine starts a background refinement of ev when it is incomplete.
// Otherwise it only drops the dispatch records of ev. While a refinement of
// the same sub-event runs, that refinement owns the records and later
// revisions change nothing.
func (r *Refiner) Refine(ctx context.Context, ev model.Event, fetch FetchFunc) {
	key := keyOf(ev)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[key]; ok {
		return
	}
	if !ev.Incomplete() {
		r.d.Forget(ev)
		return
	}
	r.active[key] = struct{}{}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.refine(ctx, ev, fetch)

		r.mu.Lock()
		delete(r.active, key)
		r.d.Forget(ev)
		r.mu.Unlock()
	}()
}

// Wait blocks until every running refinement has finished.
func (r *Refiner) Wait() {
	r.wg.Wait()
}

func (r *Refiner) refine(ctx context.Context, ev model.Event, fetch FetchFunc) {
	log := r.log.With().Str("entity", ev.EntityID).Str("sub_event", ev.SubEventID).Logger()

	var snap model.Snapshot
	var sub model.SubEvent
	err := retry.Do(
		func() error {
			s, err := fetch(ctx)
			if err != nil {
				return err
			}
			found, ok := s.SubEvent(ev.SubEventID)
			if !ok {
				return retry.Unrecoverable(errSubEventGone)
			}
			if found.Player == "" {
				return errStillIncomplete
			}
			snap, sub = s, found
			return nil
		},
		retry.Attempts(r.cfg.Attempts),
		retry.Delay(r.cfg.Delay),
		retry.MaxDelay(r.cfg.MaxDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Uint("attempt", n).Err(err).Msg("refinement retry")
		}),
	)
	if err != nil {
		log.Info().Err(err).Msg("refinement gave up, keeping published message")
		return
	}

	res := r.d.Dispatch(ctx, diff.EventFor(snap, sub, true), snap)
	log.Info().Int("edited", res.Edited).Int("failed", res.Failed).Msg("event refined")
}
