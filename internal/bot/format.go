package bot

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"toonbot/internal/dispatch"
	"toonbot/internal/model"
)

// toEmbed renders a dispatched message as a Discord embed.
func toEmbed(msg dispatch.Message) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       truncate(msg.Title, maxEmbedTitle),
		Description: truncate(msg.Description, maxEmbedDesc),
		URL:         msg.URL,
		Color:       embedColor,
	}
	for _, f := range msg.Fields {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:  truncate(f.Name, maxEmbedTitle),
			Value: truncate(f.Value, maxFieldValue),
		})
	}
	if msg.Footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: msg.Footer}
	}
	return e
}

func tickerEmbeds(ch model.TickerChannel) []*discordgo.MessageEmbed {
	var disabled []string
	for _, k := range model.MatchKinds {
		if !ch.Wants(k) {
			disabled = append(disabled, string(k))
		}
	}
	settings := []*discordgo.MessageEmbedField{
		{Name: "Extended mode", Value: onOff(ch.Extended), Inline: true},
		{Name: "Muted events", Value: orNone(strings.Join(disabled, ", ")), Inline: true},
	}

	if len(ch.Leagues) == 0 {
		return []*discordgo.MessageEmbed{{
			Title:       "Ticker",
			Description: "No leagues followed. Use /ticker add_league to follow one.",
			Color:       embedColor,
			Fields:      settings,
		}}
	}

	embeds := listEmbeds("Ticker leagues", ch.Leagues)
	embeds[0].Fields = settings
	return embeds
}

func trackerEmbeds(trackers []model.NewsTracker) []*discordgo.MessageEmbed {
	lines := make([]string, 0, len(trackers))
	for _, t := range trackers {
		line := t.FeedURL
		if t.Extended {
			line += " (extended)"
		}
		if n := len(t.Filters); n > 0 {
			line += "\n" + formatFilters(t.Filters)
		}
		lines = append(lines, line)
	}
	return listEmbeds("News feeds", lines)
}

// listEmbeds pages lines over as many embeds as one message can carry.
func listEmbeds(title string, lines []string) []*discordgo.MessageEmbed {
	pages := paginate(lines, linesPerListEmbed)
	if len(pages) > maxEmbeds {
		pages = pages[:maxEmbeds]
	}
	embeds := make([]*discordgo.MessageEmbed, 0, len(pages))
	for n, page := range pages {
		e := &discordgo.MessageEmbed{
			Title:       title,
			Description: truncate("• "+strings.Join(page, "\n• "), maxEmbedDesc),
			Color:       embedColor,
		}
		if len(pages) > 1 {
			e.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Page %d/%d", n+1, len(pages))}
		}
		embeds = append(embeds, e)
	}
	return embeds
}

func formatFilters(filters []model.Filter) string {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		parts = append(parts, fmt.Sprintf("  %s %q (%s)", filterLabel(f.Kind), f.Value, scopeLabel(f.Scope)))
	}
	return strings.Join(parts, "\n")
}

func filterLabel(k model.FilterKind) string {
	switch k {
	case model.FilterInclude:
		return "include"
	case model.FilterExclude:
		return "exclude"
	case model.FilterIncludeRe:
		return "include regex"
	case model.FilterExcludeRe:
		return "exclude regex"
	default:
		return string(k)
	}
}

func scopeLabel(s model.FilterScope) string {
	switch s {
	case model.ScopeTitle:
		return "title only"
	case model.ScopeContent:
		return "content only"
	default:
		return "title+content"
	}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
