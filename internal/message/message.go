package message

import (
	"fmt"

	"github.com/slack-go/slack"

	"github.com/ghabxph/dnd-relay/internal/character"
	"github.com/ghabxph/dnd-relay/internal/command"
)

// ImageAltText labels the character portrait for screen readers.
const ImageAltText = "Character Image"

// Outbound is a formatted message waiting to be delivered.
type Outbound struct {
	Channel      string
	ResponseType string
	Text         string
	// ImageURL is empty when the character has no portrait.
	ImageURL string
}

// Header renders the bold first line naming the speaker. Flag-style
// commands put a space before the ellipsis so a bare emotion reads
// "Drizzt ...grins"; delimited modes are already padded (" [combat]").
func Header(style command.Style, displayName, mode, user string) string {
	if style == command.StyleFlags {
		return fmt.Sprintf("*%s ...%s (from %s)*", displayName, mode, user)
	}
	return fmt.Sprintf("*%s...%s (from %s)*", displayName, mode, user)
}

// Body is the message, followed by the roll result when there is one.
func Body(msg, rollResult string) string {
	if rollResult == "" {
		return msg
	}
	return msg + "\n\n" + rollResult
}

// Compose builds the in-channel message for p as said by user. rollResult is
// the rendered dice roll, or empty.
func Compose(p *command.Parsed, chars *character.Table, user, channel, rollResult string) *Outbound {
	out := &Outbound{
		Channel:      channel,
		ResponseType: slack.ResponseTypeInChannel,
		Text:         Header(p.Style, chars.Name(p.Character), p.Mode, user) + "\n" + Body(p.Message, rollResult),
	}
	if url, ok := chars.Image(p.Character); ok {
		out.ImageURL = url
	}
	return out
}

// Help builds the usage reply, shown only to the requesting user.
func Help(channel string) *Outbound {
	return &Outbound{
		Channel:      channel,
		ResponseType: slack.ResponseTypeEphemeral,
		Text:         command.Usage,
	}
}

// Accessory returns the portrait accessory, or nil when there is no image.
// Slack rejects a section whose image accessory has no URL.
func (o *Outbound) Accessory() *slack.Accessory {
	if o.ImageURL == "" {
		return nil
	}
	return slack.NewAccessory(slack.NewImageBlockElement(o.ImageURL, ImageAltText))
}

// Webhook renders the message as a response_url payload:
// divider, section with optional accessory, divider.
func (o *Outbound) Webhook() *slack.WebhookMessage {
	section := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, o.Text, false, false),
		nil,
		o.Accessory(),
	)

	return &slack.WebhookMessage{
		Channel:      o.Channel,
		ResponseType: o.ResponseType,
		// Plain text keeps notifications readable.
		Text: o.Text,
		Blocks: &slack.Blocks{
			BlockSet: []slack.Block{
				slack.NewDividerBlock(),
				section,
				slack.NewDividerBlock(),
			},
		},
	}
}
