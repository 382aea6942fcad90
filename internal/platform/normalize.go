package platform

import (
	"time"

	"github.com/bwmarrin/discordgo"

	"scribe/internal/domain"
)

// normalizeMessage flattens a platform message into the canonical record,
// author and attachments included.
func normalizeMessage(m *discordgo.Message) domain.Message {
	out := domain.Message{
		ID:              m.ID,
		ChannelID:       m.ChannelID,
		GuildID:         m.GuildID,
		Content:         m.Content,
		CreatedAt:       m.Timestamp,
		Pinned:          m.Pinned,
		TTS:             m.TTS,
		MentionEveryone: m.MentionEveryone,
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = creationTime(m.ID)
	}
	if m.EditedTimestamp != nil {
		t := *m.EditedTimestamp
		out.EditedAt = &t
	}
	if m.Author != nil {
		out.Author = normalizeAuthor(m.Author)
	}
	for _, u := range m.Mentions {
		out.Mentions = append(out.Mentions, u.ID)
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, normalizeAttachment(m.ID, a))
	}
	return out
}

func normalizeAuthor(u *discordgo.User) domain.Author {
	a := domain.Author{
		ID:        u.ID,
		Username:  u.Username,
		Bot:       u.Bot,
		CreatedAt: creationTime(u.ID),
	}
	// "0" is the post-migration placeholder for users without discriminators.
	if u.Discriminator != "" && u.Discriminator != "0" {
		d := u.Discriminator
		a.Discriminator = &d
	}
	if u.GlobalName != "" {
		g := u.GlobalName
		a.GlobalName = &g
	}
	return a
}

func normalizeUserGuild(g *discordgo.UserGuild) domain.Guild {
	out := domain.Guild{
		ID:        g.ID,
		Name:      g.Name,
		CreatedAt: creationTime(g.ID),
	}
	if g.Icon != "" {
		url := discordgo.EndpointGuildIcon(g.ID, g.Icon)
		out.IconURL = &url
	}
	return out
}

func normalizeGuild(g *discordgo.Guild) domain.Guild {
	out := domain.Guild{
		ID:        g.ID,
		Name:      g.Name,
		CreatedAt: creationTime(g.ID),
	}
	if g.Icon != "" {
		url := discordgo.EndpointGuildIcon(g.ID, g.Icon)
		out.IconURL = &url
	}
	return out
}

func normalizeChannel(c *discordgo.Channel) domain.Channel {
	return domain.Channel{
		ID:        c.ID,
		GuildID:   c.GuildID,
		Name:      c.Name,
		Type:      channelTypeTag(c.Type),
		ParentID:  c.ParentID,
		CreatedAt: creationTime(c.ID),
	}
}

func normalizeAttachment(messageID string, a *discordgo.MessageAttachment) domain.Attachment {
	out := domain.Attachment{
		ID:        a.ID,
		MessageID: messageID,
		URL:       a.URL,
		Filename:  a.Filename,
		SizeBytes: int64(a.Size),
	}
	if a.ContentType != "" {
		ct := a.ContentType
		out.ContentType = &ct
	}
	return out
}

func channelTypeTag(t discordgo.ChannelType) string {
	switch t {
	case discordgo.ChannelTypeGuildText:
		return domain.ChannelTypeText
	case discordgo.ChannelTypeGuildNews:
		return domain.ChannelTypeNews
	case discordgo.ChannelTypeGuildCategory:
		return domain.ChannelTypeCategory
	case discordgo.ChannelTypeGuildVoice:
		return "voice"
	case discordgo.ChannelTypeGuildForum:
		return "forum"
	case discordgo.ChannelTypeGuildPublicThread, discordgo.ChannelTypeGuildPrivateThread, discordgo.ChannelTypeGuildNewsThread:
		return "thread"
	case discordgo.ChannelTypeDM, discordgo.ChannelTypeGroupDM:
		return "dm"
	default:
		return "other"
	}
}

// creationTime decodes the timestamp embedded in a snowflake id.
func creationTime(id string) time.Time {
	t, err := discordgo.SnowflakeTimestamp(id)
	if err != nil {
		return time.Time{}
	}
	return t
}
