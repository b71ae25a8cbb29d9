package dispatch

import (
	"fmt"
	"strings"

	"toonbot/internal/model"
)

// maxFieldValue is the longest field value chat platforms accept.
const maxFieldValue = 1024

var statusTitles = map[model.EventKind]string{
	model.KindKickOff:    "Kick off",
	model.KindHalfTime:   "Half time",
	model.KindSecondHalf: "Second half under way",
	model.KindExtraTime:  "Extra time",
	model.KindPenalties:  "Penalties",
	model.KindFullTime:   "Full time",
	model.KindPostponed:  "Postponed",
	model.KindCancelled:  "Cancelled",
	model.KindAbandoned:  "Abandoned",
}

// Format renders an event. The extended form adds the incident history of
// the match, or the summary of an article.
func Format(ev model.Event, snap model.Snapshot, extended bool) Message {
	switch p := ev.Payload.(type) {
	case model.ArticlePayload:
		return formatArticle(p, snap, extended)
	case model.IncidentPayload:
		msg := Message{
			Title:       incidentTitle(ev.Kind, p, snap),
			Description: incidentLine(ev.Kind, p, snap),
			URL:         snap.URL,
			Footer:      snap.Category,
		}
		if extended {
			msg.Fields = history(snap)
		}
		return msg
	case model.StatusPayload:
		msg := Message{
			Title:  fmt.Sprintf("%s: %s", statusTitles[ev.Kind], scoreline(snap)),
			URL:    snap.URL,
			Footer: snap.Category,
		}
		if extended {
			msg.Fields = history(snap)
		}
		return msg
	}
	return Message{Title: string(ev.Kind), Footer: snap.Category}
}

func formatArticle(p model.ArticlePayload, snap model.Snapshot, extended bool) Message {
	msg := Message{Title: p.Title, URL: p.Link, Footer: snap.Title}
	if msg.Footer == "" {
		msg.Footer = snap.EntityID
	}
	if extended {
		msg.Description = p.Summary
	}
	return msg
}

func incidentTitle(kind model.EventKind, p model.IncidentPayload, snap model.Snapshot) string {
	switch kind {
	case model.KindGoal:
		return "Goal! " + scoreline(snap)
	case model.KindRedCard:
		return "Red card: " + teamName(p.Team, snap)
	}
	return string(kind)
}

func incidentLine(kind model.EventKind, p model.IncidentPayload, snap model.Snapshot) string {
	player := p.Player
	if player == "" {
		player = "Player to be confirmed"
	}
	var b strings.Builder
	if p.Minute != "" {
		fmt.Fprintf(&b, "%s' ", p.Minute)
	}
	fmt.Fprintf(&b, "%s (%s)", player, teamName(p.Team, snap))
	if p.Note != "" {
		fmt.Fprintf(&b, ", %s", p.Note)
	}
	if kind == model.KindRedCard {
		return "🟥 " + b.String()
	}
	return "⚽ " + b.String()
}

func history(snap model.Snapshot) []Field {
	var lines []string
	for _, sub := range snap.Events {
		p := model.IncidentPayload{Team: sub.Team, Player: sub.Player, Minute: sub.Minute, Note: sub.Note}
		lines = append(lines, incidentLine(sub.Kind, p, snap))
	}
	if len(lines) == 0 {
		return nil
	}
	return []Field{{Name: "Incidents", Value: truncate(strings.Join(lines, "\n"), maxFieldValue)}}
}

func scoreline(snap model.Snapshot) string {
	return fmt.Sprintf("%s %d-%d %s", snap.Home, snap.Score.Home, snap.Score.Away, snap.Away)
}

func teamName(side model.Side, snap model.Snapshot) string {
	switch side {
	case model.SideHome:
		return snap.Home
	case model.SideAway:
		return snap.Away
	}
	return "unknown team"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
