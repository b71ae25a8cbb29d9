package source

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"toonbot/internal/model"
)

const maxSummary = 300

// Feeds reads RSS and Atom feeds. Each feed URL is one entity and each item
// a new_article sub-event.
type Feeds struct {
	client HTTPClient
	feeds  func() []string
	log    zerolog.Logger
	now    func() time.Time
}

// NewFeeds creates a feed adapter. feeds returns the URLs currently tracked.
func NewFeeds(client HTTPClient, feeds func() []string, log zerolog.Logger) *Feeds {
	return &Feeds{
		client: client,
		feeds:  feeds,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Entities returns the tracked feed URLs.
func (f *Feeds) Entities(_ context.Context) ([]string, error) {
	return f.feeds(), nil
}

// FetchSnapshot downloads and parses one feed.
func (f *Feeds) FetchSnapshot(ctx context.Context, feedURL string) (model.Snapshot, error) {
	body, err := get(ctx, f.client, "feed", feedURL)
	if err != nil {
		return model.Snapshot{}, err
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return model.Snapshot{}, &UpstreamError{Source: "feed", URL: feedURL, Err: malformed("%v", err)}
	}

	snap := model.Snapshot{
		EntityID:   feedURL,
		Category:   feedURL,
		Title:      strings.TrimSpace(feed.Title),
		URL:        feed.Link,
		Events:     make([]model.SubEvent, 0, len(feed.Items)),
		CapturedAt: f.now(),
	}
	seen := make(map[string]bool, len(feed.Items))
	for _, item := range feed.Items {
		id := ItemGUID(item)
		if seen[id] {
			continue
		}
		seen[id] = true
		snap.Events = append(snap.Events, model.SubEvent{
			ID:      id,
			Kind:    model.KindNewArticle,
			Title:   strings.TrimSpace(item.Title),
			Link:    item.Link,
			Summary: summarize(item.Description),
		})
	}
	f.log.Debug().Str("feed", feedURL).Int("items", len(snap.Events)).Msg("feed parsed")
	return snap, nil
}

// ItemGUID returns the identity of a feed item.
// If the item has no GUID, a SHA-256 hash of title+link is used.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

// summarize strips markup from a description and truncates it.
func summarize(desc string) string {
	text := desc
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(desc)); err == nil {
		text = doc.Text()
	}
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= maxSummary {
		return text
	}
	r := []rune(text)
	return string(r[:maxSummary]) + "..."
}
