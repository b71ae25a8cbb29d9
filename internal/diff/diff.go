// Package diff derives incremental events from two consecutive snapshots.
package diff

import (
	"github.com/rs/zerolog"

	"toonbot/internal/model"
)

type transition struct {
	from, to model.Status
}

// transitions maps status changes to the event they announce.
var transitions = map[transition]model.EventKind{
	{model.StatusScheduled, model.StatusLive}:      model.KindKickOff,
	{model.StatusLive, model.StatusHalfTime}:       model.KindHalfTime,
	{model.StatusHalfTime, model.StatusLive}:       model.KindSecondHalf,
	{model.StatusLive, model.StatusExtraTime}:      model.KindExtraTime,
	{model.StatusLive, model.StatusPenalties}:      model.KindPenalties,
	{model.StatusExtraTime, model.StatusPenalties}: model.KindPenalties,
	{model.StatusLive, model.StatusFinished}:       model.KindFullTime,
	{model.StatusExtraTime, model.StatusFinished}:  model.KindFullTime,
	{model.StatusPenalties, model.StatusFinished}:  model.KindFullTime,
	{model.StatusScheduled, model.StatusFinished}:  model.KindFullTime,
	{model.StatusScheduled, model.StatusPostponed}: model.KindPostponed,
	{model.StatusScheduled, model.StatusCancelled}: model.KindCancelled,
	{model.StatusLive, model.StatusAbandoned}:      model.KindAbandoned,
	{model.StatusHalfTime, model.StatusAbandoned}:  model.KindAbandoned,
}

// Engine compares snapshots. It is stateless apart from its logger.
type Engine struct {
	log zerolog.Logger
}

// New creates an Engine.
func New(log zerolog.Logger) *Engine {
	return &Engine{log: log}
}

// Diff returns the events that turn old into cur, in source order.
// A nil old means the entity was never seen and yields no events.
func (e *Engine) Diff(old *model.Snapshot, cur model.Snapshot) []model.Event {
	if old == nil {
		return nil
	}

	var events []model.Event

	if old.Status != cur.Status {
		if kind, ok := transitions[transition{old.Status, cur.Status}]; ok {
			events = append(events, model.Event{
				Kind:     kind,
				EntityID: cur.EntityID,
				Category: cur.Category,
				Payload:  model.StatusPayload{From: old.Status, To: cur.Status},
			})
		} else {
			e.log.Warn().
				Str("entity", cur.EntityID).
				Str("from", string(old.Status)).
				Str("to", string(cur.Status)).
				Msg("unrecognised status transition")
		}
	}

	previous := make(map[string]model.SubEvent, len(old.Events))
	for _, sub := range old.Events {
		previous[sub.ID] = sub
	}

	for _, sub := range cur.Events {
		before, seen := previous[sub.ID]
		switch {
		case !seen:
			events = append(events, EventFor(cur, sub, false))
		case refined(before, sub):
			events = append(events, EventFor(cur, sub, true))
		}
	}

	return events
}

func refined(before, after model.SubEvent) bool {
	return before.Team != after.Team ||
		before.Player != after.Player ||
		before.Minute != after.Minute ||
		before.Note != after.Note
}

// EventFor builds the event announcing sub as it appears in snap.
func EventFor(snap model.Snapshot, sub model.SubEvent, revision bool) model.Event {
	ev := model.Event{
		Kind:       sub.Kind,
		EntityID:   snap.EntityID,
		Category:   snap.Category,
		SubEventID: sub.ID,
		Revision:   revision,
	}
	if sub.Kind == model.KindNewArticle {
		ev.Payload = model.ArticlePayload{Title: sub.Title, Link: sub.Link, Summary: sub.Summary}
	} else {
		ev.Payload = model.IncidentPayload{Team: sub.Team, Player: sub.Player, Minute: sub.Minute, Note: sub.Note}
	}
	return ev
}
