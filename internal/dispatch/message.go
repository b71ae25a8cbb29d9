package dispatch

import (
	"context"
	"fmt"
)

// Message is a platform-neutral notification.
type Message struct {
	Title       string
	Description string
	URL         string
	Fields      []Field
	Footer      string
}

// Field is a named block of an extended message.
type Field struct {
	Name  string
	Value string
}

// Sender delivers messages to chat channels.
type Sender interface {
	// Send posts msg and returns the id of the created message.
	Send(ctx context.Context, channelID string, msg Message) (string, error)
	// Edit replaces the content of a previously sent message.
	Edit(ctx context.Context, channelID, messageID string, msg Message) error
}

// DeliveryError reports a failed delivery to one channel. Gone is set when
// the channel no longer exists or the bot lost access to it.
type DeliveryError struct {
	ChannelID string
	Gone      bool
	Err       error
}

func (e *DeliveryError) Error() string {
	if e.Gone {
		return fmt.Sprintf("deliver to %s: channel gone: %v", e.ChannelID, e.Err)
	}
	return fmt.Sprintf("deliver to %s: %v", e.ChannelID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
