package sink

import (
	"context"
	"errors"
	"time"
)

// Channel is a notification channel as reported by the sink.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EmbedFooter is the footer line of a rich embed.
type EmbedFooter struct {
	Text string `json:"text"`
}

// EmbedAuthor is the author line of a rich embed.
type EmbedAuthor struct {
	Name string `json:"name"`
}

// Embed is a structured rich-embed payload.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Author      *EmbedAuthor `json:"author,omitempty"`
}

// MessagePayload is the content of a notification message: plain text, a rich
// embed, or both. A nil Content on update clears any existing text.
type MessagePayload struct {
	Content *string `json:"content"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Text returns a plain-text payload.
func Text(s string) MessagePayload {
	return MessagePayload{Content: &s}
}

// Rich returns an embed-only payload.
func Rich(e Embed) MessagePayload {
	return MessagePayload{Embeds: []Embed{e}}
}

// Sink is the notification backend the reconciler converges against.
type Sink interface {
	ListChannelsInCategory(ctx context.Context, categoryID string) ([]Channel, error)
	CreateChannel(ctx context.Context, guildID, categoryID, name string) (string, error)
	DeleteChannel(ctx context.Context, channelID string) error
	CreateMessage(ctx context.Context, channelID string, payload MessagePayload) (string, error)
	UpdateMessage(ctx context.Context, channelID, messageID string, payload MessagePayload) error
}

// Sink failure classes. Callers classify with errors.Is; anything else is a
// transient sink failure retried on the next cycle.
var (
	// ErrRateLimited means the sink asked us to back off; within the loop
	// cadence this simply means wait for the next cycle.
	ErrRateLimited = errors.New("sink rate limited")

	// ErrNotFound means the target channel or message vanished externally;
	// the local handle is stale and should be dropped.
	ErrNotFound = errors.New("sink resource not found")

	// ErrUnauthorized means the credential was rejected. Retrying will not
	// help without operator intervention.
	ErrUnauthorized = errors.New("sink unauthorized")
)
