package bot

import (
	"github.com/bwmarrin/discordgo"

	"toonbot/internal/model"
)

const (
	cmdTicker = "ticker"
	cmdNews   = "news"
)

func commands() []*discordgo.ApplicationCommand {
	manage := int64(discordgo.PermissionManageChannels)

	kindChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(model.MatchKinds))
	for _, k := range model.MatchKinds {
		kindChoices = append(kindChoices, &discordgo.ApplicationCommandOptionChoice{Name: string(k), Value: string(k)})
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:                     cmdTicker,
			Description:              "Live match ticker for this channel",
			DefaultMemberPermissions: &manage,
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("add_league", "Follow a league in this channel",
					stringOption("league", "League name as shown on the scoreboard, e.g. ENGLAND: Premier League", true)),
				subcommand("remove_league", "Stop following a league",
					stringOption("league", "League name", true)),
				subcommand("clear", "Stop following every league"),
				subcommand("list", "Show the ticker settings of this channel"),
				subcommand("extended", "Post incident history with every update",
					boolOption("enabled", "Extended mode on or off", true)),
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "event",
					Description: "Turn one kind of event on or off",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "kind",
							Description: "Event kind",
							Required:    true,
							Choices:     kindChoices,
						},
						boolOption("enabled", "Post this kind of event", true),
					},
				},
			},
		},
		{
			Name:                     cmdNews,
			Description:              "News feeds posted to this channel",
			DefaultMemberPermissions: &manage,
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("add", "Track a RSS or Atom feed",
					stringOption("url", "Feed URL", true),
					boolOption("extended", "Include article summaries", false)),
				subcommand("remove", "Stop tracking a feed",
					stringOption("url", "Feed URL", true)),
				subcommand("list", "Show the feeds tracked in this channel"),
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "filter",
					Description: "Add a keyword or regex filter to a feed",
					Options: []*discordgo.ApplicationCommandOption{
						stringOption("url", "Feed URL", true),
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "kind",
							Description: "Filter kind",
							Required:    true,
							Choices: []*discordgo.ApplicationCommandOptionChoice{
								{Name: "include", Value: string(model.FilterInclude)},
								{Name: "exclude", Value: string(model.FilterExclude)},
								{Name: "include regex", Value: string(model.FilterIncludeRe)},
								{Name: "exclude regex", Value: string(model.FilterExcludeRe)},
							},
						},
						stringOption("value", "Keyword or regular expression", true),
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "scope",
							Description: "Where to look (default: title and summary)",
							Choices: []*discordgo.ApplicationCommandOptionChoice{
								{Name: "title", Value: string(model.ScopeTitle)},
								{Name: "content", Value: string(model.ScopeContent)},
								{Name: "all", Value: string(model.ScopeAll)},
							},
						},
					},
				},
			},
		},
	}
}

func subcommand(name, desc string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        name,
		Description: desc,
		Options:     opts,
	}
}

func stringOption(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        name,
		Description: desc,
		Required:    required,
	}
}

func boolOption(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionBoolean,
		Name:        name,
		Description: desc,
		Required:    required,
	}
}
