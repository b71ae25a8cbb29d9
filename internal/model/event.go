package model

// EventKind enumerates the notifications the ticker can emit.
type EventKind string

// Event kinds.
const (
	KindKickOff    EventKind = "kick_off"
	KindGoal       EventKind = "goal"
	KindRedCard    EventKind = "red_card"
	KindHalfTime   EventKind = "half_time"
	KindSecondHalf EventKind = "second_half"
	KindExtraTime  EventKind = "extra_time"
	KindPenalties  EventKind = "penalties"
	KindFullTime   EventKind = "full_time"
	KindPostponed  EventKind = "postponed"
	KindCancelled  EventKind = "cancelled"
	KindAbandoned  EventKind = "abandoned"
	KindNewArticle EventKind = "new_article"
)

// MatchKinds lists the kinds a ticker channel can toggle.
var MatchKinds = []EventKind{
	KindKickOff, KindGoal, KindRedCard, KindHalfTime, KindSecondHalf,
	KindExtraTime, KindPenalties, KindFullTime, KindPostponed, KindCancelled, KindAbandoned,
}

// ValidMatchKind reports whether k is a toggleable match event kind.
func ValidMatchKind(k EventKind) bool {
	for _, m := range MatchKinds {
		if m == k {
			return true
		}
	}
	return false
}

// Event is one incremental change produced by the diff engine.
type Event struct {
	Kind       EventKind
	EntityID   string
	Category   string
	SubEventID string
	// Revision is set when an already announced sub-event changed upstream.
	Revision bool
	Payload  Payload
}

// Payload carries the kind-specific fields of an event.
type Payload interface {
	payload()
}

// IncidentPayload describes an in-match incident such as a goal or a card.
type IncidentPayload struct {
	Team   Side
	Player string
	Minute string
	Note   string
}

// StatusPayload describes a change of match status.
type StatusPayload struct {
	From Status
	To   Status
}

// ArticlePayload describes a newly discovered article.
type ArticlePayload struct {
	Title   string
	Link    string
	Summary string
}

func (IncidentPayload) payload() {}
func (StatusPayload) payload()   {}
func (ArticlePayload) payload()  {}

// Incomplete reports whether the event still lacks fields upstream is expected
// to fill in later.
func (e Event) Incomplete() bool {
	p, ok := e.Payload.(IncidentPayload)
	if !ok {
		return false
	}
	return p.Player == ""
}
