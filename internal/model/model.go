// Package model defines the domain types used across the application.
package model

import "time"

// Status is the lifecycle state of a match as reported upstream.
type Status string

// Known match statuses. Feeds carry no status.
const (
	StatusNone      Status = ""
	StatusScheduled Status = "scheduled"
	StatusLive      Status = "live"
	StatusHalfTime  Status = "half_time"
	StatusExtraTime Status = "extra_time"
	StatusPenalties Status = "penalties"
	StatusFinished  Status = "finished"
	StatusPostponed Status = "postponed"
	StatusCancelled Status = "cancelled"
	StatusAbandoned Status = "abandoned"
)

// Side identifies which team a sub-event belongs to.
type Side string

// Team sides.
const (
	SideNone Side = ""
	SideHome Side = "home"
	SideAway Side = "away"
)

// Score is the current scoreline of a match.
type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// SubEvent is one identifiable item inside a snapshot: a goal, a card or an article.
type SubEvent struct {
	ID      string    `json:"id"`
	Kind    EventKind `json:"kind"`
	Team    Side      `json:"team,omitempty"`
	Player  string    `json:"player,omitempty"`
	Minute  string    `json:"minute,omitempty"`
	Note    string    `json:"note,omitempty"`
	Title   string    `json:"title,omitempty"`
	Link    string    `json:"link,omitempty"`
	Summary string    `json:"summary,omitempty"`
}

// Snapshot is the observable state of a tracked entity at one poll tick.
type Snapshot struct {
	EntityID   string     `json:"entity_id"`
	Category   string     `json:"category"`
	Title      string     `json:"title,omitempty"`
	URL        string     `json:"url,omitempty"`
	Home       string     `json:"home,omitempty"`
	Away       string     `json:"away,omitempty"`
	Score      Score      `json:"score"`
	Status     Status     `json:"status,omitempty"`
	Events     []SubEvent `json:"events"`
	CapturedAt time.Time  `json:"captured_at"`
}

// SubEvent returns the sub-event with the given ID.
func (s Snapshot) SubEvent(id string) (SubEvent, bool) {
	for _, e := range s.Events {
		if e.ID == id {
			return e, true
		}
	}
	return SubEvent{}, false
}

// TickerChannel is a channel registered for match events.
type TickerChannel struct {
	GuildID   string
	ChannelID string
	Extended  bool
	Leagues   []string
	// Disabled holds event kinds switched off for this channel. Kinds not
	// present are enabled.
	Disabled  map[EventKind]bool
	CreatedAt time.Time
}

// Wants reports whether the channel has the given event kind enabled.
func (c TickerChannel) Wants(kind EventKind) bool {
	return !c.Disabled[kind]
}

// NewsTracker subscribes a channel to new articles of one feed.
type NewsTracker struct {
	ID        int64
	GuildID   string
	ChannelID string
	FeedURL   string
	Extended  bool
	Filters   []Filter
	CreatedAt time.Time
}

// FilterKind defines the type of filter rule.
type FilterKind string

// Supported filter kinds.
const (
	FilterInclude   FilterKind = "include"
	FilterExclude   FilterKind = "exclude"
	FilterIncludeRe FilterKind = "include_re"
	FilterExcludeRe FilterKind = "exclude_re"
)

// FilterScope defines which part of an article a filter matches against.
type FilterScope string

// Supported filter scopes.
const (
	ScopeTitle   FilterScope = "title"
	ScopeContent FilterScope = "content"
	ScopeAll     FilterScope = "all"
)

// Filter is a single keyword rule attached to a news tracker.
type Filter struct {
	ID        int64
	TrackerID int64
	Kind      FilterKind
	Scope     FilterScope
	Value     string
	CreatedAt time.Time
}
