package domain

import (
	"encoding/json"
	"time"
)

// Channel type tags stored in the channels table. Anything that is not
// text-capable is recorded with the platform's raw tag and ignored by the
// sweep engines.
const (
	ChannelTypeText     = "text"
	ChannelTypeNews     = "news"
	ChannelTypeCategory = "category"
)

// Author is a platform user as observed on a message or event. IDs are kept
// as opaque strings to avoid precision loss on snowflakes.
type Author struct {
	ID            string
	Username      string
	Discriminator *string
	GlobalName    *string
	Bot           bool
	CreatedAt     time.Time
}

// Guild is a top-level community containing channels.
type Guild struct {
	ID        string
	Name      string
	IconURL   *string
	CreatedAt time.Time
}

// Channel is a conversation stream inside a guild. ParentID is the owning
// category, empty when the channel is uncategorized.
type Channel struct {
	ID        string
	GuildID   string
	Name      string
	Type      string
	ParentID  string
	CreatedAt time.Time
}

// TextCapable reports whether the channel holds a message history worth
// sweeping.
func (c Channel) TextCapable() bool {
	return c.Type == ChannelTypeText || c.Type == ChannelTypeNews
}

// Message is the canonical normalized record for one platform message,
// shared by the live ingestor and the backfill engine.
type Message struct {
	ID              string
	ChannelID       string
	GuildID         string
	Author          Author
	Content         string
	CreatedAt       time.Time
	EditedAt        *time.Time
	Pinned          bool
	TTS             bool
	MentionEveryone bool
	Mentions        []string
	Attachments     []Attachment
}

// Attachment is a file attached to a message.
type Attachment struct {
	ID          string
	MessageID   string
	URL         string
	Filename    string
	ContentType *string
	SizeBytes   int64
}

// rawPayload is the serialized shape persisted alongside every message row.
type rawPayload struct {
	ID              string          `json:"id"`
	Content         string          `json:"content"`
	Author          rawAuthor       `json:"author"`
	ChannelID       string          `json:"channel_id"`
	GuildID         string          `json:"guild_id"`
	CreatedAt       string          `json:"created_at"`
	EditedAt        *string         `json:"edited_at"`
	Pinned          bool            `json:"pinned"`
	TTS             bool            `json:"tts"`
	MentionEveryone bool            `json:"mention_everyone"`
	Mentions        []string        `json:"mentions"`
	Attachments     []rawAttachment `json:"attachments"`
}

type rawAuthor struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Discriminator *string `json:"discriminator"`
	Bot           bool    `json:"bot"`
}

type rawAttachment struct {
	ID          string  `json:"id"`
	Filename    string  `json:"filename"`
	URL         string  `json:"url"`
	Size        int64   `json:"size"`
	ContentType *string `json:"content_type"`
}

// Raw renders the message as the opaque payload blob stored in the
// raw_json column.
func (m Message) Raw() json.RawMessage {
	p := rawPayload{
		ID:      m.ID,
		Content: m.Content,
		Author: rawAuthor{
			ID:            m.Author.ID,
			Name:          m.Author.Username,
			Discriminator: m.Author.Discriminator,
			Bot:           m.Author.Bot,
		},
		ChannelID:       m.ChannelID,
		GuildID:         m.GuildID,
		CreatedAt:       m.CreatedAt.UTC().Format(time.RFC3339Nano),
		Pinned:          m.Pinned,
		TTS:             m.TTS,
		MentionEveryone: m.MentionEveryone,
		Mentions:        m.Mentions,
	}
	if p.Mentions == nil {
		p.Mentions = []string{}
	}
	if m.EditedAt != nil {
		s := m.EditedAt.UTC().Format(time.RFC3339Nano)
		p.EditedAt = &s
	}
	p.Attachments = make([]rawAttachment, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		p.Attachments = append(p.Attachments, rawAttachment{
			ID:          a.ID,
			Filename:    a.Filename,
			URL:         a.URL,
			Size:        a.SizeBytes,
			ContentType: a.ContentType,
		})
	}
	data, err := json.Marshal(p)
	if err != nil {
		// rawPayload holds only marshalable fields
		return json.RawMessage("{}")
	}
	return data
}
