package store

import (
	"context"

	"github.com/jmoiron/sqlx"

	"scribe/internal/domain"
)

// UpsertAuthor inserts the author or refreshes its mutable columns.
// Last write wins; re-observing a user on every message keeps names current.
func (g *Gateway) UpsertAuthor(ctx context.Context, a domain.Author) error {
	err := g.withTx(ctx, func(tx *sqlx.Tx) error {
		b := g.builder.Insert("discord_users").
			Columns("id", "username", "discriminator", "global_name", "bot", "created_at").
			Values(a.ID, a.Username, a.Discriminator, a.GlobalName, a.Bot, a.CreatedAt).
			Suffix(`ON CONFLICT (id) DO UPDATE SET
				username = EXCLUDED.username,
				discriminator = EXCLUDED.discriminator,
				global_name = EXCLUDED.global_name,
				bot = EXCLUDED.bot`)
		_, err := execBuilder(ctx, tx, b)
		return err
	})
	if err != nil {
		g.log.Error("upsert author failed", "author_id", a.ID, "err", err)
	}
	return err
}

// UpsertGuild inserts the guild or refreshes name and icon.
func (g *Gateway) UpsertGuild(ctx context.Context, gu domain.Guild) error {
	err := g.withTx(ctx, func(tx *sqlx.Tx) error {
		b := g.builder.Insert("discord_guilds").
			Columns("id", "name", "icon_url", "created_at").
			Values(gu.ID, gu.Name, gu.IconURL, gu.CreatedAt).
			Suffix(`ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				icon_url = EXCLUDED.icon_url`)
		_, err := execBuilder(ctx, tx, b)
		return err
	})
	if err != nil {
		g.log.Error("upsert guild failed", "guild_id", gu.ID, "err", err)
	}
	return err
}

// UpsertChannel inserts the channel or refreshes name and type. The owning
// guild row must already exist; a missing one is a caller bug surfaced as
// domain.ErrConstraintViolation.
func (g *Gateway) UpsertChannel(ctx context.Context, c domain.Channel) error {
	err := g.withTx(ctx, func(tx *sqlx.Tx) error {
		b := g.builder.Insert("discord_channels").
			Columns("id", "guild_id", "name", "type", "created_at").
			Values(c.ID, c.GuildID, c.Name, c.Type, c.CreatedAt).
			Suffix(`ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				type = EXCLUDED.type`)
		_, err := execBuilder(ctx, tx, b)
		return err
	})
	if err != nil {
		g.log.Error("upsert channel failed", "channel_id", c.ID, "err", err)
	}
	return err
}

// InsertMessage writes the message once. Messages are append-only after
// capture: a duplicate id is left untouched and reported as
// OutcomeDuplicate, which is what makes backfills re-entrant over ground
// the live ingestor already covered.
func (g *Gateway) InsertMessage(ctx context.Context, m domain.Message) (domain.InsertOutcome, error) {
	var rows int64
	err := g.withTx(ctx, func(tx *sqlx.Tx) error {
		b := g.builder.Insert("discord_messages").
			Columns("id", "channel_id", "guild_id", "author_id",
				"content", "created_at", "edited_at", "is_pinned", "is_tts", "raw_json").
			Values(m.ID, m.ChannelID, m.GuildID, m.Author.ID,
				m.Content, m.CreatedAt, m.EditedAt, m.Pinned, m.TTS, []byte(m.Raw())).
			Suffix(`ON CONFLICT (id) DO NOTHING`)
		var err error
		rows, err = execBuilder(ctx, tx, b)
		return err
	})
	if err != nil {
		g.log.Error("insert message failed", "message_id", m.ID, "channel_id", m.ChannelID, "err", err)
		return domain.OutcomeStored, err
	}
	if rows == 0 {
		return domain.OutcomeDuplicate, nil
	}
	return domain.OutcomeStored, nil
}

// InsertAttachments writes the message's attachments. Each row is written
// independently so one bad attachment does not block its siblings; failures
// are logged and counted, not returned, unless every row failed.
func (g *Gateway) InsertAttachments(ctx context.Context, m domain.Message) (int, error) {
	if len(m.Attachments) == 0 {
		return 0, nil
	}

	stored := 0
	var lastErr error
	for _, a := range m.Attachments {
		err := g.withTx(ctx, func(tx *sqlx.Tx) error {
			b := g.builder.Insert("discord_attachments").
				Columns("id", "message_id", "url", "filename", "content_type", "size_bytes").
				Values(a.ID, m.ID, a.URL, a.Filename, a.ContentType, a.SizeBytes).
				Suffix(`ON CONFLICT (id) DO NOTHING`)
			n, err := execBuilder(ctx, tx, b)
			if err == nil && n > 0 {
				stored++
			}
			return err
		})
		if err != nil {
			g.log.Error("insert attachment failed", "attachment_id", a.ID, "message_id", m.ID, "err", err)
			lastErr = err
		}
	}
	if stored == 0 && lastErr != nil {
		return 0, lastErr
	}
	return stored, nil
}
