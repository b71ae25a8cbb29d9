package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"toonbot/internal/model"
	"toonbot/internal/storage"
)

const handlerTimeout = 15 * time.Second

// embedColor is the accent used on every embed the bot posts.
const embedColor = 0x008080

type discordAPI interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// Registry is the subscription state the commands read and mutate.
type Registry interface {
	Mutate(ctx context.Context, guildID, channelID string, fn func(tx storage.Tx) error) error
	Channel(channelID string) (model.TickerChannel, error)
	Trackers(channelID string) []model.NewsTracker
	Tracker(channelID, feedURL string) (model.NewsTracker, error)
	RemoveChannel(ctx context.Context, guildID, channelID string) error
	RemoveGuild(ctx context.Context, guildID string) error
}

// FeedChecker fetches a feed once to check that it can be parsed.
type FeedChecker interface {
	FetchSnapshot(ctx context.Context, feedURL string) (model.Snapshot, error)
}

// Bot is the Discord bot: it answers slash commands, prunes subscriptions
// when channels or guilds disappear and delivers dispatched messages.
type Bot struct {
	session  *discordgo.Session
	api      discordAPI
	registry Registry
	checker  FeedChecker
	guildID  string
	log      zerolog.Logger

	commands map[string]map[string]handlerFunc
}

// New creates a Bot for the given token. Commands are registered in guildID
// when it is set and globally otherwise.
func New(token, guildID string, reg Registry, checker FeedChecker, log zerolog.Logger) (*Bot, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds

	b := newBot(s, reg, checker, guildID, log)
	b.session = s
	s.AddHandler(b.onReady)
	s.AddHandler(b.onInteraction)
	s.AddHandler(b.onChannelDelete)
	s.AddHandler(b.onGuildDelete)
	return b, nil
}

func newBot(api discordAPI, reg Registry, checker FeedChecker, guildID string, log zerolog.Logger) *Bot {
	b := &Bot{
		api:      api,
		registry: reg,
		checker:  checker,
		guildID:  guildID,
		log:      log,
	}
	b.commands = b.handlers()
	return b
}

// Run opens the gateway connection and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	b.log.Info().Msg("discord session open")
	<-ctx.Done()
	return b.session.Close()
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("bot ready")
	if err := b.registerCommands(r.User.ID); err != nil {
		b.log.Error().Err(err).Msg("register commands")
	}
}

func (b *Bot) registerCommands(appID string) error {
	cmds, err := b.api.ApplicationCommandBulkOverwrite(appID, b.guildID, commands())
	if err != nil {
		return fmt.Errorf("overwrite commands: %w", err)
	}
	b.log.Info().Int("commands", len(cmds)).Str("guild_id", b.guildID).Msg("commands registered")
	return nil
}

func (b *Bot) onInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	b.handleInteraction(ctx, i.Interaction)
}

func (b *Bot) onChannelDelete(_ *discordgo.Session, c *discordgo.ChannelDelete) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	b.channelDeleted(ctx, c.Channel)
}

func (b *Bot) channelDeleted(ctx context.Context, c *discordgo.Channel) {
	if c == nil || c.GuildID == "" {
		return
	}
	if err := b.registry.RemoveChannel(ctx, c.GuildID, c.ID); err != nil {
		b.log.Error().Err(err).Str("channel_id", c.ID).Msg("remove deleted channel")
		return
	}
	b.log.Info().Str("guild_id", c.GuildID).Str("channel_id", c.ID).Msg("channel deleted, subscriptions removed")
}

func (b *Bot) onGuildDelete(_ *discordgo.Session, g *discordgo.GuildDelete) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	b.guildDeleted(ctx, g.Guild)
}

func (b *Bot) guildDeleted(ctx context.Context, g *discordgo.Guild) {
	// An unavailable guild is an outage, not a removal.
	if g == nil || g.Unavailable {
		return
	}
	if err := b.registry.RemoveGuild(ctx, g.ID); err != nil {
		b.log.Error().Err(err).Str("guild_id", g.ID).Msg("remove guild")
		return
	}
	b.log.Info().Str("guild_id", g.ID).Msg("left guild, subscriptions removed")
}
