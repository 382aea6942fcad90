// Package platform adapts the Discord client to the narrow record shapes and
// interfaces the core depends on. Nothing outside this package touches
// discordgo types.
package platform

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"

	"scribe/internal/domain"
)

const (
	// historyPageSize is the platform maximum for one history fetch.
	historyPageSize = 100
	// guildPageSize is the platform maximum for one guild-list fetch.
	guildPageSize = 100

	embedDescriptionLimit = 4000
)

// Discord wraps a discordgo session behind the domain interfaces.
type Discord struct {
	session *discordgo.Session
	log     *slog.Logger
}

// New builds a session with the intents the archiver needs. The gateway
// connection is not opened until Connect.
func New(token string, log *slog.Logger) (*Discord, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent
	return &Discord{session: session, log: log}, nil
}

// Connect opens the gateway connection. Sweep-only commands that use the
// REST surface exclusively can skip this.
func (d *Discord) Connect() error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	if d.session.State != nil && d.session.State.User != nil {
		d.log.Info("discord connected",
			"user", d.session.State.User.Username,
			"id", d.session.State.User.ID,
		)
	}
	return nil
}

// Close shuts the gateway connection down.
func (d *Discord) Close() error {
	return d.session.Close()
}

// SelfID returns the bot's own user id, fetching it over REST when the
// gateway session is not open.
func (d *Discord) SelfID() (string, error) {
	if d.session.State != nil && d.session.State.User != nil {
		return d.session.State.User.ID, nil
	}
	u, err := d.session.User("@me")
	if err != nil {
		return "", classify(err)
	}
	return u.ID, nil
}

// OnMessage registers fn for every live message event. Filtering (own
// messages, DMs) is the ingestor's job, not the adapter's.
func (d *Discord) OnMessage(fn func(m domain.Message)) {
	d.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil {
			return
		}
		fn(normalizeMessage(m.Message))
	})
}

// Guilds lists every guild the bot is a member of, paging past the
// platform's per-request cap.
func (d *Discord) Guilds(ctx context.Context) ([]domain.Guild, error) {
	var guilds []domain.Guild
	after := ""
	for {
		raw, err := d.session.UserGuilds(guildPageSize, "", after, false, discordgo.WithContext(ctx))
		if err != nil {
			return nil, classify(err)
		}
		for _, g := range raw {
			guilds = append(guilds, normalizeUserGuild(g))
		}
		if len(raw) < guildPageSize {
			return guilds, nil
		}
		after = raw[len(raw)-1].ID
	}
}

// Guild fetches a single guild by id, nil when it does not exist.
func (d *Discord) Guild(ctx context.Context, id string) (*domain.Guild, error) {
	raw, err := d.session.Guild(id, discordgo.WithContext(ctx))
	if err != nil {
		var rest *discordgo.RESTError
		if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, classify(err)
	}
	g := normalizeGuild(raw)
	return &g, nil
}

// Channels lists a guild's channels, categories included.
func (d *Discord) Channels(ctx context.Context, guildID string) ([]domain.Channel, error) {
	raw, err := d.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err)
	}
	channels := make([]domain.Channel, 0, len(raw))
	for _, c := range raw {
		channels = append(channels, normalizeChannel(c))
	}
	return channels, nil
}

// Channel fetches a single channel by id, nil when it does not exist.
func (d *Discord) Channel(ctx context.Context, id string) (*domain.Channel, error) {
	raw, err := d.session.Channel(id, discordgo.WithContext(ctx))
	if err != nil {
		var rest *discordgo.RESTError
		if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, classify(err)
	}
	c := normalizeChannel(raw)
	return &c, nil
}

// History returns a lazy iterator over the channel's messages. Pages are
// fetched on demand, one platform call per historyPageSize records.
func (d *Discord) History(channelID string, opts domain.HistoryOptions) domain.HistoryIterator {
	return &historyIterator{d: d, channelID: channelID, opts: opts}
}

// LatestMessage fetches the single most recent message, nil for an empty
// channel.
func (d *Discord) LatestMessage(ctx context.Context, channelID string) (*domain.Message, error) {
	raw, err := d.session.ChannelMessages(channelID, 1, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	m := normalizeMessage(raw[0])
	return &m, nil
}

// MoveToCategory reassigns the channel's parent category.
func (d *Discord) MoveToCategory(ctx context.Context, channelID, categoryID string) error {
	_, err := d.session.ChannelEditComplex(channelID, &discordgo.ChannelEdit{
		ParentID: categoryID,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return classify(err)
	}
	return nil
}

// SendText posts a plain message, used for replay progress replies.
func (d *Discord) SendText(ctx context.Context, channelID, content string) error {
	_, err := d.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return classify(err)
	}
	return nil
}

// IsAdministrator reports whether the user holds the administrator
// permission in the channel.
func (d *Discord) IsAdministrator(channelID, userID string) (bool, error) {
	perms, err := d.session.UserChannelPermissions(userID, channelID)
	if err != nil {
		return false, classify(err)
	}
	return perms&discordgo.PermissionAdministrator != 0, nil
}

// PostSummary renders the meeting summary as an embed and delivers it.
func (d *Discord) PostSummary(ctx context.Context, s domain.MeetingSummary) error {
	desc := s.Summary
	if desc == "" {
		desc = "No summary available"
	}
	if len(desc) > embedDescriptionLimit {
		desc = desc[:embedDescriptionLimit]
	}

	embed := &discordgo.MessageEmbed{
		Title:       "📝 " + s.Title,
		Description: desc,
		Color:       0x3498db,
	}
	if s.Link != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Recording", Value: s.Link,
		})
	}
	if len(s.Participants) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Participants", Value: joinLimited(s.Participants, 1024),
		})
	}

	_, err := d.session.ChannelMessageSendEmbed(s.ChannelID, embed, discordgo.WithContext(ctx))
	if err != nil {
		return classify(err)
	}
	return nil
}

func joinLimited(items []string, limit int) string {
	out := ""
	for i, it := range items {
		next := it
		if i > 0 {
			next = ", " + it
		}
		if len(out)+len(next) > limit {
			return out + "…"
		}
		out += next
	}
	return out
}

// classify maps client errors into the shared taxonomy: 403s become access
// denials, everything else (rate limits, 5xx, network) transport failures.
func classify(err error) error {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusForbidden {
		return errors.Wrapf(domain.ErrRemoteAccessDenied, "%v", err)
	}
	return errors.Wrapf(domain.ErrRemoteTransport, "%v", err)
}
