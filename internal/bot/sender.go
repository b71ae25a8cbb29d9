package bot

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"

	"toonbot/internal/dispatch"
)

// Send posts msg as an embed and returns the message id.
func (b *Bot) Send(ctx context.Context, channelID string, msg dispatch.Message) (string, error) {
	m, err := b.api.ChannelMessageSendEmbed(channelID, toEmbed(msg), discordgo.WithContext(ctx))
	if err != nil {
		return "", deliveryError(channelID, err)
	}
	return m.ID, nil
}

// Edit replaces the embed of a message sent earlier.
func (b *Bot) Edit(ctx context.Context, channelID, messageID string, msg dispatch.Message) error {
	if _, err := b.api.ChannelMessageEditEmbed(channelID, messageID, toEmbed(msg), discordgo.WithContext(ctx)); err != nil {
		return deliveryError(channelID, err)
	}
	return nil
}

func deliveryError(channelID string, err error) error {
	derr := &dispatch.DeliveryError{ChannelID: channelID, Err: err}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeMissingAccess, discordgo.ErrCodeMissingPermissions:
			derr.Gone = true
		}
	}
	return derr
}
