// Package dispatch fans events out to subscribed channels.
package dispatch

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"toonbot/internal/filter"
	"toonbot/internal/metrics"
	"toonbot/internal/model"
	"toonbot/internal/registry"
)

// Targets resolves the channels of an event and learns about unreachable ones.
type Targets interface {
	TrackedChannels(category string, kind model.EventKind) []registry.Target
	MarkStale(channelID string)
}

// Metrics receives delivery counters.
type Metrics interface {
	EventEmitted(kind string)
	Delivery(result string)
}

type nopMetrics struct{}

func (nopMetrics) EventEmitted(string) {}
func (nopMetrics) Delivery(string)     {}

// Result counts the outcome of one Dispatch call.
type Result struct {
	Sent   int
	Edited int
	Failed int
}

// Dispatcher delivers events to every channel tracking them, at most once per
// channel. A failing channel never stops delivery to the others.
type Dispatcher struct {
	targets Targets
	sender  Sender
	limiter *rate.Limiter
	metrics Metrics
	log     zerolog.Logger
	records *records
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRateLimit paces outgoing messages.
func WithRateLimit(l *rate.Limiter) Option {
	return func(d *Dispatcher) { d.limiter = l }
}

// WithMetrics reports deliveries to m.
func WithMetrics(m Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New creates a Dispatcher. Without WithRateLimit messages are not paced.
func New(targets Targets, sender Sender, log zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		targets: targets,
		sender:  sender,
		limiter: rate.NewLimiter(rate.Inf, 1),
		metrics: nopMetrics{},
		log:     log,
		records: newRecords(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers ev to its channels. Revisions edit the messages recorded
// for the original event and are dropped where no message was recorded.
func (d *Dispatcher) Dispatch(ctx context.Context, ev model.Event, snap model.Snapshot) Result {
	var res Result
	log := d.log.With().Str("entity", ev.EntityID).Str("kind", string(ev.Kind)).Logger()

	sent := d.records.get(ev)
	if ev.Revision && len(sent) == 0 {
		log.Debug().Str("sub_event", ev.SubEventID).Msg("revision without recorded messages, skipped")
		return res
	}
	if !ev.Revision {
		d.metrics.EventEmitted(string(ev.Kind))
	}

	targets := d.targets.TrackedChannels(ev.Category, ev.Kind)
	if article, ok := filter.ArticleFrom(ev); ok {
		targets = allowed(targets, article)
	}

	var short, extended *Message
	render := func(ext bool) Message {
		if ext {
			if extended == nil {
				m := Format(ev, snap, true)
				extended = &m
			}
			return *extended
		}
		if short == nil {
			m := Format(ev, snap, false)
			short = &m
		}
		return *short
	}

	seen := make(map[string]bool, len(targets))
	for _, t := range targets {
		if seen[t.ChannelID] {
			continue
		}
		seen[t.ChannelID] = true

		messageID, recorded := sent[t.ChannelID]
		if ev.Revision && !recorded {
			continue
		}
		if err := d.limiter.Wait(ctx); err != nil {
			log.Warn().Err(err).Msg("dispatch interrupted")
			return res
		}

		msg := render(t.Extended)
		if recorded {
			if err := d.sender.Edit(ctx, t.ChannelID, messageID, msg); err != nil {
				d.failed(log, t, err)
				res.Failed++
				continue
			}
			d.metrics.Delivery(metrics.ResultEdited)
			res.Edited++
			continue
		}

		id, err := d.sender.Send(ctx, t.ChannelID, msg)
		if err != nil {
			d.failed(log, t, err)
			res.Failed++
			continue
		}
		d.metrics.Delivery(metrics.ResultSent)
		res.Sent++
		if ev.Incomplete() {
			d.records.put(ev, t.ChannelID, id)
		}
	}

	log.Debug().Int("sent", res.Sent).Int("edited", res.Edited).Int("failed", res.Failed).Msg("event dispatched")
	return res
}

// Forget drops the recorded messages of ev.
func (d *Dispatcher) Forget(ev model.Event) {
	d.records.forget(ev)
}

func (d *Dispatcher) failed(log zerolog.Logger, t registry.Target, err error) {
	d.metrics.Delivery(metrics.ResultFailed)

	var de *DeliveryError
	if errors.As(err, &de) && de.Gone {
		log.Warn().Err(err).Str("channel_id", t.ChannelID).Msg("channel unreachable, marking stale")
		d.targets.MarkStale(t.ChannelID)
		return
	}
	log.Error().Err(err).Str("channel_id", t.ChannelID).Msg("delivery failed")
}

func allowed(targets []registry.Target, a filter.Article) []registry.Target {
	out := targets[:0:0]
	for _, t := range targets {
		if t.Filters.Allows(a) {
			out = append(out, t)
		}
	}
	return out
}
