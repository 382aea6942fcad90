// Package backfill walks channel history retroactively and feeds it through
// the same idempotent store writes as the live ingestor. Two modes share one
// loop: the unattended guild sweep (newest-first, cutoff-bounded) and the
// targeted single-channel replay (oldest-first, optionally count-limited).
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"scribe/internal/domain"
	"scribe/internal/metrics"
)

const (
	// pauseEvery is how many processed messages trigger one rate-limit pause.
	pauseEvery = 50
	// progressEvery is the sweep progress cadence. Independent counter from
	// pauseEvery, not folded into it.
	progressEvery = 100
	// replayProgressEvery is the admin replay progress cadence.
	replayProgressEvery = 1000

	defaultBatchPause = 500 * time.Millisecond
)

// Engine drives history traversal against the store.
type Engine struct {
	store domain.Store
	dir   domain.Directory
	hist  domain.Historian
	m     *metrics.Ingest
	log   *slog.Logger

	// BatchPause is slept after every pauseEvery processed messages to stay
	// under the platform rate limit.
	BatchPause time.Duration
	// Progress, when set, receives the running per-channel count every
	// progressEvery messages during a sweep.
	Progress func(channel string, count int)

	now func() time.Time
}

// New builds an engine with the default pacing.
func New(store domain.Store, dir domain.Directory, hist domain.Historian, m *metrics.Ingest, log *slog.Logger) *Engine {
	return &Engine{
		store:      store,
		dir:        dir,
		hist:       hist,
		m:          m,
		log:        log,
		BatchPause: defaultBatchPause,
		now:        time.Now,
	}
}

// Summary is the final tally of one sweep, printed so a partial run is
// distinguishable from a complete one without reading logs.
type Summary struct {
	Guilds             int
	ChannelsBackfilled int
	ChannelsFailed     int
	MessagesStored     int
	Duplicates         int
	MessagesFailed     int
	From               time.Time
	To                 time.Time
}

func (s *Summary) String() string {
	var sb strings.Builder
	line := strings.Repeat("=", 60)
	fmt.Fprintln(&sb, line)
	fmt.Fprintln(&sb, "Backfill complete")
	fmt.Fprintf(&sb, "  Guilds processed:     %d\n", s.Guilds)
	fmt.Fprintf(&sb, "  Channels backfilled:  %d\n", s.ChannelsBackfilled)
	fmt.Fprintf(&sb, "  Channels failed:      %d\n", s.ChannelsFailed)
	fmt.Fprintf(&sb, "  Messages stored:      %d\n", s.MessagesStored)
	fmt.Fprintf(&sb, "  Duplicates ignored:   %d\n", s.Duplicates)
	fmt.Fprintf(&sb, "  Messages failed:      %d\n", s.MessagesFailed)
	fmt.Fprintf(&sb, "  Date range:           %s to %s\n",
		s.From.Format("2006-01-02"), s.To.Format("2006-01-02"))
	fmt.Fprint(&sb, line)
	return sb.String()
}

// SweepGuilds backfills every text-capable channel in every known guild,
// newest-first, down to now − window. History arrives in descending time
// order, so the first out-of-window message ends the channel: everything
// behind it is older still.
func (e *Engine) SweepGuilds(ctx context.Context, window time.Duration) (*Summary, error) {
	start := e.now()
	cutoff := start.Add(-window)
	sum := &Summary{From: cutoff, To: start}

	guilds, err := e.dir.Guilds(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list guilds")
	}

	for _, g := range guilds {
		sum.Guilds++
		e.log.Info("processing guild", "guild", g.Name, "id", g.ID)

		if err := e.store.UpsertGuild(ctx, g); err != nil {
			e.log.Warn("skipping guild, upsert failed", "guild", g.Name, "err", err)
			continue
		}

		channels, err := e.dir.Channels(ctx, g.ID)
		if err != nil {
			e.log.Warn("skipping guild, cannot list channels", "guild", g.Name, "err", err)
			continue
		}

		for _, ch := range channels {
			if !ch.TextCapable() {
				continue
			}
			select {
			case <-ctx.Done():
				return sum, ctx.Err()
			default:
			}

			beforeOK := sum.MessagesStored + sum.Duplicates
			beforeFailed := sum.MessagesFailed

			count, err := e.backfillChannel(ctx, ch, cutoff, sum)
			if err != nil {
				// One inaccessible channel must not abort the sweep.
				sum.ChannelsFailed++
				e.log.Warn("skipping channel", "channel", ch.Name, "err", err)
				continue
			}
			// A channel where every single write failed counts as failed,
			// not backfilled, so the tally reflects it.
			if count > 0 && sum.MessagesStored+sum.Duplicates == beforeOK && sum.MessagesFailed > beforeFailed {
				sum.ChannelsFailed++
				e.log.Warn("channel stored nothing", "channel", ch.Name, "failed", sum.MessagesFailed-beforeFailed)
				continue
			}
			sum.ChannelsBackfilled++
			if e.m != nil {
				e.m.ChannelsBackfilled.Inc()
			}
			e.log.Info("channel backfilled", "channel", ch.Name, "messages", count)
		}
	}
	return sum, nil
}

// backfillChannel walks one channel newest-first until the cutoff.
func (e *Engine) backfillChannel(ctx context.Context, ch domain.Channel, cutoff time.Time, sum *Summary) (int, error) {
	if err := e.store.UpsertChannel(ctx, ch); err != nil {
		return 0, err
	}

	it := e.hist.History(ch.ID, domain.HistoryOptions{})
	processed := 0
	for {
		msg, err := it.Next(ctx)
		if errors.Is(err, domain.ErrEndOfHistory) {
			return processed, nil
		}
		if err != nil {
			return processed, err
		}
		// Sorted-prefix stop: strictly older than the cutoff ends the scan.
		if msg.CreatedAt.Before(cutoff) {
			return processed, nil
		}
		// REST history payloads omit the guild id; stamp the owning
		// channel's before the record is persisted.
		if msg.GuildID == "" {
			msg.GuildID = ch.GuildID
		}
		if msg.GuildID == "" {
			continue
		}

		e.record(ctx, msg, sum)
		processed++

		if e.Progress != nil && processed%progressEvery == 0 {
			e.Progress(ch.Name, processed)
		}
		if processed%pauseEvery == 0 {
			if err := e.pause(ctx); err != nil {
				return processed, err
			}
		}
	}
}

// ReplayChannel rebuilds one channel from the beginning of its history,
// oldest-first, bounded by limit when positive. progress, when set, gets the
// running count every replayProgressEvery messages. Returns how many
// messages were processed.
func (e *Engine) ReplayChannel(ctx context.Context, channelID string, limit int, progress func(count int)) (int, error) {
	ch, err := e.dir.Channel(ctx, channelID)
	if err != nil {
		return 0, errors.Wrap(err, "resolve channel")
	}
	if ch == nil {
		return 0, errors.Errorf("channel %s not found", channelID)
	}

	g, err := e.dir.Guild(ctx, ch.GuildID)
	if err != nil {
		return 0, errors.Wrap(err, "resolve guild")
	}
	if g != nil {
		if err := e.store.UpsertGuild(ctx, *g); err != nil {
			return 0, err
		}
	}
	if err := e.store.UpsertChannel(ctx, *ch); err != nil {
		return 0, err
	}

	sum := &Summary{}
	it := e.hist.History(channelID, domain.HistoryOptions{OldestFirst: true})
	processed := 0
	for limit <= 0 || processed < limit {
		msg, err := it.Next(ctx)
		if errors.Is(err, domain.ErrEndOfHistory) {
			break
		}
		if err != nil {
			return processed, err
		}
		// REST history payloads omit the guild id; stamp the resolved
		// channel's before the record is persisted.
		if msg.GuildID == "" {
			msg.GuildID = ch.GuildID
		}
		if msg.GuildID == "" {
			continue
		}

		e.record(ctx, msg, sum)
		processed++

		if progress != nil && processed%replayProgressEvery == 0 {
			progress(processed)
		}
		if processed%pauseEvery == 0 {
			if err := e.pause(ctx); err != nil {
				return processed, err
			}
		}
	}
	return processed, nil
}

// record persists one message's author, row, and attachments, folding the
// per-unit outcome into the tally. Failures never propagate past here.
func (e *Engine) record(ctx context.Context, msg domain.Message, sum *Summary) {
	if err := e.store.UpsertAuthor(ctx, msg.Author); err != nil {
		sum.MessagesFailed++
		e.countFailure()
		return
	}

	outcome, err := e.store.InsertMessage(ctx, msg)
	if err != nil {
		sum.MessagesFailed++
		e.countFailure()
		return
	}
	if outcome == domain.OutcomeDuplicate {
		sum.Duplicates++
		if e.m != nil {
			e.m.DuplicatesIgnored.Inc()
		}
	} else {
		sum.MessagesStored++
		if e.m != nil {
			e.m.MessagesStored.Inc()
		}
	}

	stored, err := e.store.InsertAttachments(ctx, msg)
	if err != nil {
		e.log.Warn("attachments partially stored", "message_id", msg.ID, "err", err)
	}
	if e.m != nil && stored > 0 {
		e.m.AttachmentsStored.Add(int64(stored))
	}
}

func (e *Engine) countFailure() {
	if e.m != nil {
		e.m.StoreFailures.Inc()
	}
}

func (e *Engine) pause(ctx context.Context) error {
	if e.BatchPause <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.BatchPause):
		return nil
	}
}
