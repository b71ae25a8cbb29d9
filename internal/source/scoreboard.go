package source

import (
	"bytes"
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"toonbot/internal/model"
)

var knownStatuses = map[string]model.Status{
	string(model.StatusScheduled): model.StatusScheduled,
	string(model.StatusLive):      model.StatusLive,
	string(model.StatusHalfTime):  model.StatusHalfTime,
	string(model.StatusExtraTime): model.StatusExtraTime,
	string(model.StatusPenalties): model.StatusPenalties,
	string(model.StatusFinished):  model.StatusFinished,
	string(model.StatusPostponed): model.StatusPostponed,
	string(model.StatusCancelled): model.StatusCancelled,
	string(model.StatusAbandoned): model.StatusAbandoned,
}

// Scoreboard reads live matches from a scoreboard site. The listing page
// carries one div.match per fixture; each match has its own page under
// /match/<id> with the full incident list.
type Scoreboard struct {
	client     HTTPClient
	baseURL    string
	limiter    *Limiter
	categories func() []string
	log        zerolog.Logger
	now        func() time.Time
}

// NewScoreboard creates a scoreboard adapter. categories returns the leagues
// currently tracked by at least one channel.
func NewScoreboard(client HTTPClient, baseURL string, limiter *Limiter, categories func() []string, log zerolog.Logger) *Scoreboard {
	return &Scoreboard{
		client:     client,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		limiter:    limiter,
		categories: categories,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Entities returns the ids of listed matches that belong to a tracked league,
// in page order.
func (s *Scoreboard) Entities(ctx context.Context) ([]string, error) {
	tracked := make(map[string]bool)
	for _, c := range s.categories() {
		tracked[c] = true
	}
	if len(tracked) == 0 {
		return nil, nil
	}

	body, err := s.fetch(ctx, s.baseURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &UpstreamError{Source: "scoreboard", URL: s.baseURL, Err: malformed("%v", err)}
	}

	var ids []string
	doc.Find("div.match").Each(func(_ int, m *goquery.Selection) {
		id := strings.TrimSpace(m.AttrOr("data-id", ""))
		league := strings.TrimSpace(m.AttrOr("data-league", ""))
		if id == "" {
			s.log.Warn().Str("url", s.baseURL).Msg("match without id on scoreboard")
			return
		}
		if tracked[league] {
			ids = append(ids, id)
		}
	})
	return ids, nil
}

// FetchSnapshot downloads and parses the page of one match.
func (s *Scoreboard) FetchSnapshot(ctx context.Context, id string) (model.Snapshot, error) {
	pageURL := s.MatchURL(id)
	body, err := s.fetch(ctx, pageURL)
	if err != nil {
		return model.Snapshot{}, err
	}

	snap, err := parseMatch(body, pageURL)
	if err != nil {
		return model.Snapshot{}, &UpstreamError{Source: "scoreboard", URL: pageURL, Err: err}
	}
	if snap.EntityID != id {
		return model.Snapshot{}, &UpstreamError{
			Source: "scoreboard", URL: pageURL, Err: malformed("page is for match %q", snap.EntityID),
		}
	}
	snap.CapturedAt = s.now()
	return snap, nil
}

// MatchURL returns the page address of a match.
func (s *Scoreboard) MatchURL(id string) string {
	return s.baseURL + "/match/" + url.PathEscape(id)
}

func (s *Scoreboard) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, &UpstreamError{Source: "scoreboard", URL: pageURL, Err: err}
	}
	defer s.limiter.Release()

	start := time.Now()
	body, err := get(ctx, s.client, "scoreboard", pageURL)
	s.log.Debug().Str("url", pageURL).Dur("took", time.Since(start)).Err(err).Msg("scoreboard request")
	return body, err
}

// parseMatch is the only place that knows the match page markup.
func parseMatch(body []byte, pageURL string) (model.Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return model.Snapshot{}, malformed("%v", err)
	}

	m := doc.Find("div.match").First()
	if m.Length() == 0 {
		return model.Snapshot{}, malformed("no match element")
	}

	id := strings.TrimSpace(m.AttrOr("data-id", ""))
	league := strings.TrimSpace(m.AttrOr("data-league", ""))
	if id == "" || league == "" {
		return model.Snapshot{}, malformed("match without id or league")
	}

	status, ok := knownStatuses[strings.TrimSpace(m.AttrOr("data-status", ""))]
	if !ok {
		return model.Snapshot{}, malformed("unknown status %q", m.AttrOr("data-status", ""))
	}

	home := strings.TrimSpace(m.Find(".home").First().Text())
	away := strings.TrimSpace(m.Find(".away").First().Text())
	scoreHome, err := parseScore(m.Find(".score-home").First().Text())
	if err != nil {
		return model.Snapshot{}, err
	}
	scoreAway, err := parseScore(m.Find(".score-away").First().Text())
	if err != nil {
		return model.Snapshot{}, err
	}

	snap := model.Snapshot{
		EntityID: id,
		Category: league,
		Title:    home + " v " + away,
		URL:      pageURL,
		Home:     home,
		Away:     away,
		Score:    model.Score{Home: scoreHome, Away: scoreAway},
		Status:   status,
		Events:   []model.SubEvent{},
	}

	seen := make(map[string]bool)
	var parseErr error
	m.Find("li.incident").EachWithBreak(func(_ int, li *goquery.Selection) bool {
		ev, ok, err := parseIncident(li)
		if err != nil {
			parseErr = err
			return false
		}
		if !ok || seen[ev.ID] {
			return true
		}
		seen[ev.ID] = true
		snap.Events = append(snap.Events, ev)
		return true
	})
	if parseErr != nil {
		return model.Snapshot{}, parseErr
	}
	return snap, nil
}

// parseIncident returns ok=false for incident kinds the ticker does not announce.
func parseIncident(li *goquery.Selection) (model.SubEvent, bool, error) {
	id := strings.TrimSpace(li.AttrOr("data-id", ""))
	if id == "" {
		return model.SubEvent{}, false, malformed("incident without id")
	}

	kind := model.EventKind(strings.TrimSpace(li.AttrOr("data-kind", "")))
	if kind != model.KindGoal && kind != model.KindRedCard {
		return model.SubEvent{}, false, nil
	}

	var team model.Side
	switch strings.TrimSpace(li.AttrOr("data-team", "")) {
	case string(model.SideHome):
		team = model.SideHome
	case string(model.SideAway):
		team = model.SideAway
	default:
		return model.SubEvent{}, false, malformed("incident %s without team", id)
	}

	return model.SubEvent{
		ID:     id,
		Kind:   kind,
		Team:   team,
		Player: strings.TrimSpace(li.Find(".player").First().Text()),
		Minute: strings.TrimSpace(li.AttrOr("data-minute", "")),
		Note:   strings.TrimSpace(li.Find(".note").First().Text()),
	}, true, nil
}

func parseScore(text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" || text == "-" {
		return 0, nil
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < 0 {
		return 0, malformed("score %q", text)
	}
	return n, nil
}
