package bot

import (
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"

	"toonbot/internal/filter"
	"toonbot/internal/model"
	"toonbot/internal/registry"
)

// request is a parsed slash command invocation.
type request struct {
	GuildID   string
	ChannelID string
	Command   string
	Sub       string
	opts      map[string]*discordgo.ApplicationCommandInteractionDataOption
}

func parseRequest(i *discordgo.Interaction) request {
	data := i.ApplicationCommandData()
	req := request{
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Command:   data.Name,
		opts:      map[string]*discordgo.ApplicationCommandInteractionDataOption{},
	}
	opts := data.Options
	if len(opts) > 0 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		req.Sub = opts[0].Name
		opts = opts[0].Options
	}
	for _, o := range opts {
		req.opts[o.Name] = o
	}
	return req
}

func (r request) str(name string) string {
	o, ok := r.opts[name]
	if !ok || o.Type != discordgo.ApplicationCommandOptionString {
		return ""
	}
	return strings.TrimSpace(o.StringValue())
}

// flag returns the boolean option and whether it was given.
func (r request) flag(name string) (bool, bool) {
	o, ok := r.opts[name]
	if !ok || o.Type != discordgo.ApplicationCommandOptionBoolean {
		return false, false
	}
	return o.BoolValue(), true
}

func parseLeague(s string) (string, error) {
	if s == "" {
		return "", registry.Rejectf("League name is required.")
	}
	return s, nil
}

func parseFeedURL(s string) (string, error) {
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", registry.Rejectf("%q is not a valid http(s) URL.", s)
	}
	return u.String(), nil
}

func parseKind(s string) (model.EventKind, error) {
	k := model.EventKind(s)
	if !model.ValidMatchKind(k) {
		return "", registry.Rejectf("Unknown event kind %q.", s)
	}
	return k, nil
}

// parseFilter validates the arguments of /news filter.
func parseFilter(kind, value, scope string) (model.Filter, error) {
	f := model.Filter{Kind: model.FilterKind(kind), Value: value, Scope: model.ScopeAll}
	switch f.Kind {
	case model.FilterInclude, model.FilterExclude:
	case model.FilterIncludeRe, model.FilterExcludeRe:
		if err := filter.ValidateRegex(value); err != nil {
			return model.Filter{}, registry.Rejectf("Invalid regular expression: %v", err)
		}
	default:
		return model.Filter{}, registry.Rejectf("Unknown filter kind %q.", kind)
	}
	if value == "" {
		return model.Filter{}, registry.Rejectf("Filter value is required.")
	}

	switch model.FilterScope(scope) {
	case "":
	case model.ScopeTitle, model.ScopeContent, model.ScopeAll:
		f.Scope = model.FilterScope(scope)
	default:
		return model.Filter{}, registry.Rejectf("Invalid scope %q, use: title, content, all.", scope)
	}
	return f, nil
}
