package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"resty.dev/v3"
)

const defaultBaseURL = "https://discord.com/api/v10"

// Discord guild channel types; only text channels are mirrored.
const channelTypeGuildText = 0

// DiscordSink implements Sink against the Discord REST API using a single
// bot credential.
type DiscordSink struct {
	client *resty.Client
}

// NewDiscordSink creates a Discord sink authenticated with the given bot token.
func NewDiscordSink(token string) *DiscordSink {
	client := resty.New().
		SetBaseURL(defaultBaseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Authorization", "Bot "+token).
		SetHeader("Content-Type", "application/json")

	return &DiscordSink{client: client}
}

// NewDiscordSinkWithBaseURL creates a sink against a non-default API base URL.
// Used by tests to point at a local server.
func NewDiscordSinkWithBaseURL(token, baseURL string) *DiscordSink {
	s := NewDiscordSink(token)
	s.client.SetBaseURL(baseURL)
	return s
}

type discordChannel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     int    `json:"type"`
	ParentID string `json:"parent_id"`
	GuildID  string `json:"guild_id"`
}

type discordMessage struct {
	ID string `json:"id"`
}

type createChannelRequest struct {
	Name     string `json:"name"`
	Type     int    `json:"type"`
	ParentID string `json:"parent_id"`
}

// ListChannelsInCategory lists the text channels under the given category.
// The Discord API has no per-category listing, so this lists the guild's
// channels and filters by parent. The guild is inferred from the category's
// channel object.
func (s *DiscordSink) ListChannelsInCategory(ctx context.Context, categoryID string) ([]Channel, error) {
	var category discordChannel
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&category).
		Get("/channels/" + categoryID)
	if err := classify(resp, err); err != nil {
		return nil, fmt.Errorf("fetching category %s: %w", categoryID, err)
	}

	var channels []discordChannel
	resp, err = s.client.R().
		SetContext(ctx).
		SetResult(&channels).
		Get("/guilds/" + category.GuildID + "/channels")
	if err := classify(resp, err); err != nil {
		return nil, fmt.Errorf("listing guild channels: %w", err)
	}

	var out []Channel
	for _, ch := range channels {
		if ch.ParentID == categoryID && ch.Type == channelTypeGuildText {
			out = append(out, Channel{ID: ch.ID, Name: ch.Name})
		}
	}
	return out, nil
}

// CreateChannel creates a text channel named after a workload under the target
// category and returns its id.
func (s *DiscordSink) CreateChannel(ctx context.Context, guildID, categoryID, name string) (string, error) {
	var created discordChannel
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(createChannelRequest{
			Name:     ChannelName(name),
			Type:     channelTypeGuildText,
			ParentID: categoryID,
		}).
		SetResult(&created).
		Post("/guilds/" + guildID + "/channels")
	if err := classify(resp, err); err != nil {
		return "", fmt.Errorf("creating channel %q: %w", name, err)
	}
	return created.ID, nil
}

// DeleteChannel deletes the channel with the given id.
func (s *DiscordSink) DeleteChannel(ctx context.Context, channelID string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		Delete("/channels/" + channelID)
	if err := classify(resp, err); err != nil {
		return fmt.Errorf("deleting channel %s: %w", channelID, err)
	}
	return nil
}

// CreateMessage posts a new message in the channel and returns its id.
func (s *DiscordSink) CreateMessage(ctx context.Context, channelID string, payload MessagePayload) (string, error) {
	var created discordMessage
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&created).
		Post("/channels/" + channelID + "/messages")
	if err := classify(resp, err); err != nil {
		return "", fmt.Errorf("creating message in channel %s: %w", channelID, err)
	}
	return created.ID, nil
}

// UpdateMessage replaces the content of an existing message in place.
func (s *DiscordSink) UpdateMessage(ctx context.Context, channelID, messageID string, payload MessagePayload) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(payload).
		Patch("/channels/" + channelID + "/messages/" + messageID)
	if err := classify(resp, err); err != nil {
		return fmt.Errorf("updating message %s in channel %s: %w", messageID, channelID, err)
	}
	return nil
}

// classify maps a transport error or non-success HTTP status to the sink
// failure taxonomy.
func classify(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsSuccess() {
		return nil
	}
	switch resp.StatusCode() {
	case 429:
		return fmt.Errorf("%w: %s", ErrRateLimited, resp.String())
	case 404:
		return fmt.Errorf("%w: %s", ErrNotFound, resp.String())
	case 401, 403:
		return fmt.Errorf("%w: %s", ErrUnauthorized, resp.String())
	default:
		return fmt.Errorf("sink returned status %d: %s", resp.StatusCode(), resp.String())
	}
}

// ChannelName maps a workload name to a valid channel name: lower-case, with
// runs of characters outside [a-z0-9-_] collapsed to a single dash. Both
// channel creation and name matching go through this mapping so lookups stay
// consistent with what the sink stored.
func ChannelName(name string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
			lastDash = r == '-'
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
