package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"toonbot/internal/model"
	"toonbot/internal/registry"
	"toonbot/internal/storage"
)

const genericFailure = "Something went wrong while handling that command. Please try again later."

// reply is what a command answers with.
type reply struct {
	Text   string
	Embeds []*discordgo.MessageEmbed
}

type handlerFunc func(ctx context.Context, req request) (reply, error)

func (b *Bot) handlers() map[string]map[string]handlerFunc {
	return map[string]map[string]handlerFunc{
		cmdTicker: {
			"add_league":    b.handleAddLeague,
			"remove_league": b.handleRemoveLeague,
			"clear":         b.handleClearLeagues,
			"list":          b.handleTickerList,
			"extended":      b.handleTickerExtended,
			"event":         b.handleTickerEvent,
		},
		cmdNews: {
			"add":    b.handleNewsAdd,
			"remove": b.handleNewsRemove,
			"list":   b.handleNewsList,
			"filter": b.handleNewsFilter,
		},
	}
}

func (b *Bot) handleInteraction(ctx context.Context, i *discordgo.Interaction) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Str("interaction_id", i.ID).Msg("command handler panicked")
			b.respond(i, reply{Text: genericFailure})
		}
	}()

	req := parseRequest(i)
	if req.GuildID == "" {
		b.respond(i, reply{Text: "Commands only work inside a server."})
		return
	}

	b.log.Info().
		Str("command", req.Command).
		Str("sub", req.Sub).
		Str("guild_id", req.GuildID).
		Str("channel_id", req.ChannelID).
		Msg("command received")

	handler, ok := b.commands[req.Command][req.Sub]
	if !ok {
		b.respond(i, reply{Text: fmt.Sprintf("Unknown command /%s %s.", req.Command, req.Sub)})
		return
	}

	resp, err := handler(ctx, req)
	if err != nil {
		var cfgErr *registry.ConfigurationError
		if errors.As(err, &cfgErr) {
			resp = reply{Text: cfgErr.Reason}
		} else {
			b.log.Error().Err(err).Str("command", req.Command).Str("sub", req.Sub).Msg("command failed")
			resp = reply{Text: genericFailure}
		}
	}
	b.respond(i, resp)
}

func (b *Bot) respond(i *discordgo.Interaction, r reply) {
	err := b.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: r.Text,
			Embeds:  r.Embeds,
		},
	})
	if err != nil {
		b.log.Error().Err(err).Str("interaction_id", i.ID).Msg("respond to interaction")
	}
}

func (b *Bot) handleAddLeague(ctx context.Context, req request) (reply, error) {
	league, err := parseLeague(req.str("league"))
	if err != nil {
		return reply{}, err
	}
	err = b.registry.Mutate(ctx, req.GuildID, req.ChannelID, func(tx storage.Tx) error {
		if err := tx.AddTickerChannel(ctx, req.GuildID, req.ChannelID); err != nil {
			return err
		}
		return tx.AddLeagues(ctx, req.ChannelID, league)
	})
	if err != nil {
		return reply{}, err
	}
	return reply{Text: fmt.Sprintf("Now following **%s** in this channel.", league)}, nil
}

func (b *Bot) handleRemoveLeague(ctx context.Context, req request) (reply, error) {
	league, err := parseLeague(req.str("league"))
	if err != nil {
		return reply{}, err
	}
	if _, err := b.registry.Channel(req.ChannelID); err != nil {
		return reply{}, err
	}
	err = b.registry.Mutate(ctx, req.GuildID, req.ChannelID, func(tx storage.Tx) error {
		removed, err := tx.RemoveLeague(ctx, req.ChannelID, league)
		if err != nil {
			return err
		}
		if !removed {
			return registry.Rejectf("This channel does not follow %s.", league)
		}
		return nil
	})
	if err != nil {
		return reply{}, err
	}
	return reply{Text: fmt.Sprintf("Stopped following **%s**.", league)}, nil
}

func (b *Bot) handleClearLeagues(ctx context.Context, req request) (reply, error) {
	if _, err := b.registry.Channel(req.ChannelID); err != nil {
		return reply{}, err
	}
	err := b.registry.Mutate(ctx, req.GuildID, req.ChannelID, func(tx storage.Tx) error {
		return tx.ClearLeagues(ctx, req.ChannelID)
	})
	if err != nil {
		return reply{}, err
	}
	return reply{Text: "Cleared every league from this channel's ticker."}, nil
}

func (b *Bot) handleTickerList(_ context.Context, req request) (reply, error) {
	ch, err := b.registry.Channel(req.ChannelID)
	if err != nil {
		return reply{}, err
	}
	return reply{Embeds: tickerEmbeds(ch)}, nil
}

func (b *Bot) handleTickerExtended(ctx context.Context, req request) (reply, error) {
	enabled, ok := req.flag("enabled")
	if !ok {
		return reply{}, registry.Rejectf("Say whether extended mode should be on or off.")
	}
	if _, err := b.registry.Channel(req.ChannelID); err != nil {
		return reply{}, err
	}
	err := b.registry.Mutate(ctx, req.GuildID, req.ChannelID, func(tx storage.Tx) error {
		return tx.SetExtended(ctx, req.ChannelID, enabled)
	})
	if err != nil {
		return reply{}, err
	}
	return reply{Text: fmt.Sprintf("Extended mode is now %s.", onOff(enabled))}, nil
}

func (b *Bot) handleTickerEvent(ctx context.Context, req request) (reply, error) {
	kind, err := parseKind(req.str("kind"))
	if err != nil {
		return reply{}, err
	}
	enabled, ok := req.flag("enabled")
	if !ok {
		return reply{}, registry.Rejectf("Say whether %s events should be on or off.", kind)
	}
	if _, err := b.registry.Channel(req.ChannelID); err != nil {
		return reply{}, err
	}
	err = b.registry.Mutate(ctx, req.GuildID, req.ChannelID, func(tx storage.Tx) error {
		return tx.SetEventEnabled(ctx, req.ChannelID, kind, enabled)
	})
	if err != nil {
		return reply{}, err
	}
	return reply{Text: fmt.Sprintf("%s events are now %s.", kindLabel(kind), onOff(enabled))}, nil
}

func (b *Bot) handleNewsAdd(ctx context.Context, req request) (reply, error) {
	feedURL, err := parseFeedURL(req.str("url"))
	if err != nil {
		return reply{}, err
	}
	if _, err := b.registry.Tracker(req.ChannelID, feedURL); err == nil {
		return reply{}, registry.Rejectf("%s is already tracked in this channel.", feedURL)
	}

	snap, err := b.checker.FetchSnapshot(ctx, feedURL)
	if err != nil {
		b.log.Warn().Err(err).Str("feed", feedURL).Msg("check feed")
		return reply{}, registry.Rejectf("Could not read a feed at %s.", feedURL)
	}

	extended, _ := req.flag("extended")
	tr := &model.NewsTracker{
		GuildID:   req.GuildID,
		ChannelID: req.ChannelID,
		FeedURL:   feedURL,
		Extended:  extended,
	}
	err = b.registry.Mutate(ctx, req.GuildID, req.ChannelID, func(tx storage.Tx) error {
		return tx.AddNewsTracker(ctx, tr)
	})
	if err != nil {
		return reply{}, err
	}

	name := snap.Title
	if name == "" {
		name = feedURL
	}
	return reply{Text: fmt.Sprintf("Now tracking **%s** (%d articles in the feed right now, only new ones will be posted).", name, len(snap.Events))}, nil
}

func (b *Bot) handleNewsRemove(ctx context.Context, req request) (reply, error) {
	feedURL, err := parseFeedURL(req.str("url"))
	if err != nil {
		return reply{}, err
	}
	err = b.registry.Mutate(ctx, req.GuildID, req.ChannelID, func(tx storage.Tx) error {
		removed, err := tx.RemoveNewsTracker(ctx, req.ChannelID, feedURL)
		if err != nil {
			return err
		}
		if !removed {
			return registry.Rejectf("%s is not tracked in this channel.", feedURL)
		}
		return nil
	})
	if err != nil {
		return reply{}, err
	}
	return reply{Text: fmt.Sprintf("Stopped tracking %s.", feedURL)}, nil
}

func (b *Bot) handleNewsList(_ context.Context, req request) (reply, error) {
	trackers := b.registry.Trackers(req.ChannelID)
	if len(trackers) == 0 {
		return reply{Text: "No feeds are tracked in this channel. Use /news add to add one."}, nil
	}
	return reply{Embeds: trackerEmbeds(trackers)}, nil
}

func (b *Bot) handleNewsFilter(ctx context.Context, req request) (reply, error) {
	feedURL, err := parseFeedURL(req.str("url"))
	if err != nil {
		return reply{}, err
	}
	f, err := parseFilter(req.str("kind"), req.str("value"), req.str("scope"))
	if err != nil {
		return reply{}, err
	}
	tr, err := b.registry.Tracker(req.ChannelID, feedURL)
	if err != nil {
		return reply{}, err
	}
	f.TrackerID = tr.ID
	err = b.registry.Mutate(ctx, req.GuildID, req.ChannelID, func(tx storage.Tx) error {
		return tx.AddNewsFilter(ctx, &f)
	})
	if err != nil {
		return reply{}, err
	}
	return reply{Text: fmt.Sprintf("Added %s filter %q (%s) to %s.", filterLabel(f.Kind), f.Value, scopeLabel(f.Scope), feedURL)}, nil
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func kindLabel(k model.EventKind) string {
	s := strings.ReplaceAll(string(k), "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
