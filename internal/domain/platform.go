package domain

import "context"

// HistoryOptions selects traversal order and page size for a channel walk.
type HistoryOptions struct {
	// OldestFirst walks ascending from the beginning of the channel.
	// The default walks descending from the newest message.
	OldestFirst bool
	// PageSize bounds one underlying fetch; 0 uses the platform maximum.
	PageSize int
}

// HistoryIterator yields one message at a time from a channel's history.
// Pagination happens lazily underneath; a channel is never loaded into
// memory as a whole. Next returns ErrEndOfHistory once drained.
type HistoryIterator interface {
	Next(ctx context.Context) (Message, error)
}

// Directory lists guilds and channels known to the connected session.
type Directory interface {
	Guilds(ctx context.Context) ([]Guild, error)
	Guild(ctx context.Context, id string) (*Guild, error)
	Channels(ctx context.Context, guildID string) ([]Channel, error)
	Channel(ctx context.Context, id string) (*Channel, error)
}

// Historian reads message history.
type Historian interface {
	History(channelID string, opts HistoryOptions) HistoryIterator
	// LatestMessage fetches the single most recent message, or nil when the
	// channel has none.
	LatestMessage(ctx context.Context, channelID string) (*Message, error)
}

// Mover reassigns a channel to a category on the platform side.
type Mover interface {
	MoveToCategory(ctx context.Context, channelID, categoryID string) error
}

// MeetingSummary is the single outbound payload accepted at the boundary.
type MeetingSummary struct {
	ChannelID    string   `json:"channel_id"`
	Title        string   `json:"title"`
	Summary      string   `json:"summary"`
	Link         string   `json:"link,omitempty"`
	Participants []string `json:"participants,omitempty"`
}

// Poster delivers a meeting summary into a channel.
type Poster interface {
	PostSummary(ctx context.Context, s MeetingSummary) error
}
