// Package ingest reacts to live message events: normalize, upsert, move on.
// Each event is handled to completion before control returns; events may be
// delivered concurrently by the dispatch runtime, and the store's idempotent
// upsert semantics are what make that safe.
package ingest

import (
	"context"
	"log/slog"
	"sync"

	"scribe/internal/domain"
	"scribe/internal/metrics"
)

// Ingestor persists one live event at a time. Stateless per event apart from
// a cache of guilds and channels already synced this session.
type Ingestor struct {
	store  domain.Store
	dir    domain.Directory
	selfID string
	m      *metrics.Ingest
	log    *slog.Logger

	// GuildID, when set, restricts ingestion to that one guild.
	GuildID string

	mu           sync.Mutex
	seenGuilds   map[string]bool
	seenChannels map[string]bool
}

// New builds an ingestor. selfID is the bot's own user id; events it
// authored are dropped to avoid feedback loops.
func New(store domain.Store, dir domain.Directory, selfID string, m *metrics.Ingest, log *slog.Logger) *Ingestor {
	return &Ingestor{
		store:        store,
		dir:          dir,
		selfID:       selfID,
		m:            m,
		log:          log,
		seenGuilds:   make(map[string]bool),
		seenChannels: make(map[string]bool),
	}
}

// SyncDirectory refreshes every known guild and its text channels into the
// store, the same sweep the original runs on connect. Per-guild failures are
// logged and skipped.
func (i *Ingestor) SyncDirectory(ctx context.Context) error {
	guilds, err := i.dir.Guilds(ctx)
	if err != nil {
		return err
	}
	for _, g := range guilds {
		if i.GuildID != "" && g.ID != i.GuildID {
			continue
		}
		if err := i.store.UpsertGuild(ctx, g); err != nil {
			continue
		}
		i.markGuild(g.ID)

		channels, err := i.dir.Channels(ctx, g.ID)
		if err != nil {
			i.log.Warn("cannot list channels", "guild", g.Name, "err", err)
			continue
		}
		for _, c := range channels {
			if !c.TextCapable() {
				continue
			}
			if err := i.store.UpsertChannel(ctx, c); err != nil {
				continue
			}
			i.markChannel(c.ID)
		}
	}
	i.log.Info("directory synced", "guilds", len(guilds))
	return nil
}

// HandleMessage processes one inbound event. Failures are logged and
// swallowed; a bad row must never take the event handler down.
func (i *Ingestor) HandleMessage(ctx context.Context, msg domain.Message) {
	if msg.Author.ID == i.selfID {
		i.drop()
		return
	}
	// Direct messages carry no guild and are out of scope.
	if msg.GuildID == "" {
		i.drop()
		return
	}
	if i.GuildID != "" && msg.GuildID != i.GuildID {
		i.drop()
		return
	}

	if err := i.ensureGuild(ctx, msg.GuildID); err != nil {
		i.fail("guild", msg.GuildID, err)
		return
	}
	if err := i.ensureChannel(ctx, msg.ChannelID); err != nil {
		i.fail("channel", msg.ChannelID, err)
		return
	}
	if err := i.store.UpsertAuthor(ctx, msg.Author); err != nil {
		i.fail("author", msg.Author.ID, err)
		return
	}

	outcome, err := i.store.InsertMessage(ctx, msg)
	if err != nil {
		i.fail("message", msg.ID, err)
		return
	}
	if i.m != nil {
		if outcome == domain.OutcomeDuplicate {
			i.m.DuplicatesIgnored.Inc()
		} else {
			i.m.MessagesStored.Inc()
		}
	}

	stored, err := i.store.InsertAttachments(ctx, msg)
	if err != nil {
		// Message row is already in; attachment failure is reported, not fatal.
		i.log.Warn("attachments partially stored", "message_id", msg.ID, "err", err)
	}
	if i.m != nil && stored > 0 {
		i.m.AttachmentsStored.Add(int64(stored))
	}
}

// ensureGuild upserts the guild row the first time this session sees it.
func (i *Ingestor) ensureGuild(ctx context.Context, id string) error {
	if i.seen(i.seenGuilds, id) {
		return nil
	}
	g, err := i.dir.Guild(ctx, id)
	if err != nil {
		return err
	}
	if g == nil {
		return domain.ErrRemoteAccessDenied
	}
	if err := i.store.UpsertGuild(ctx, *g); err != nil {
		return err
	}
	i.markGuild(id)
	return nil
}

func (i *Ingestor) ensureChannel(ctx context.Context, id string) error {
	if i.seen(i.seenChannels, id) {
		return nil
	}
	c, err := i.dir.Channel(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return domain.ErrRemoteAccessDenied
	}
	if err := i.store.UpsertChannel(ctx, *c); err != nil {
		return err
	}
	i.markChannel(id)
	return nil
}

func (i *Ingestor) seen(set map[string]bool, id string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return set[id]
}

func (i *Ingestor) markGuild(id string) {
	i.mu.Lock()
	i.seenGuilds[id] = true
	i.mu.Unlock()
}

func (i *Ingestor) markChannel(id string) {
	i.mu.Lock()
	i.seenChannels[id] = true
	i.mu.Unlock()
}

func (i *Ingestor) drop() {
	if i.m != nil {
		i.m.EventsDropped.Inc()
	}
}

func (i *Ingestor) fail(entity, id string, err error) {
	i.log.Warn("event not persisted", "entity", entity, "id", id, "err", err)
	if i.m != nil {
		i.m.StoreFailures.Inc()
	}
}
