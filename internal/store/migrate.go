package store

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Snowflake ids are stored as text end to end; 64-bit integers lose
// precision once they cross a JSON boundary.
const schema = `
CREATE TABLE IF NOT EXISTS discord_guilds (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	icon_url    TEXT,
	created_at  TIMESTAMPTZ NOT NULL,
	inserted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS discord_users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL,
	discriminator TEXT,
	global_name   TEXT,
	bot           BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL,
	inserted_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS discord_channels (
	id          TEXT PRIMARY KEY,
	guild_id    TEXT NOT NULL REFERENCES discord_guilds(id),
	name        TEXT NOT NULL,
	type        TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	inserted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS discord_messages (
	id          TEXT PRIMARY KEY,
	channel_id  TEXT NOT NULL REFERENCES discord_channels(id),
	guild_id    TEXT NOT NULL REFERENCES discord_guilds(id),
	author_id   TEXT NOT NULL REFERENCES discord_users(id),
	content     TEXT,
	created_at  TIMESTAMPTZ NOT NULL,
	edited_at   TIMESTAMPTZ,
	is_pinned   BOOLEAN NOT NULL DEFAULT FALSE,
	is_tts      BOOLEAN NOT NULL DEFAULT FALSE,
	raw_json    JSONB,
	inserted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_messages_channel_time ON discord_messages(channel_id, created_at);

CREATE TABLE IF NOT EXISTS discord_attachments (
	id           TEXT PRIMARY KEY,
	message_id   TEXT NOT NULL REFERENCES discord_messages(id),
	url          TEXT NOT NULL,
	filename     TEXT,
	content_type TEXT,
	size_bytes   BIGINT,
	inserted_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_attachments_message ON discord_attachments(message_id);
`

// Migrate creates the five entity tables. Safe to run on every start.
func (g *Gateway) Migrate(ctx context.Context) error {
	err := g.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, schema)
		return err
	})
	return errors.Wrap(err, "migrate")
}
