// Package archive relocates channels with no recent activity into a
// designated archive category. The decision is platform-side only; stored
// rows are never touched.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"scribe/internal/domain"
	"scribe/internal/metrics"
)

const defaultMovePause = time.Second

// Engine runs the inactivity policy over every guild.
type Engine struct {
	dir   domain.Directory
	hist  domain.Historian
	mover domain.Mover
	m     *metrics.Ingest
	log   *slog.Logger

	// CategoryID is the archive grouping channels are moved into.
	CategoryID string
	// InactivityDays is the threshold of whole days without a message.
	InactivityDays int
	// MovePause is slept after every successful move to respect rate limits.
	MovePause time.Duration

	now func() time.Time
}

// New builds an engine with the default pacing.
func New(dir domain.Directory, hist domain.Historian, mover domain.Mover, categoryID string, inactivityDays int, m *metrics.Ingest, log *slog.Logger) *Engine {
	return &Engine{
		dir:            dir,
		hist:           hist,
		mover:          mover,
		m:              m,
		log:            log,
		CategoryID:     categoryID,
		InactivityDays: inactivityDays,
		MovePause:      defaultMovePause,
		now:            time.Now,
	}
}

// Summary is the final tally of one archival sweep.
type Summary struct {
	GuildsSkipped int
	Checked       int
	Archived      int
	Failed        int
}

func (s *Summary) String() string {
	var sb strings.Builder
	line := strings.Repeat("=", 60)
	fmt.Fprintln(&sb, line)
	fmt.Fprintln(&sb, "Auto-archive complete")
	fmt.Fprintf(&sb, "  Channels checked:  %d\n", s.Checked)
	fmt.Fprintf(&sb, "  Channels archived: %d\n", s.Archived)
	fmt.Fprintf(&sb, "  Moves failed:      %d\n", s.Failed)
	fmt.Fprintf(&sb, "  Guilds skipped:    %d\n", s.GuildsSkipped)
	fmt.Fprint(&sb, line)
	return sb.String()
}

// Sweep evaluates every eligible channel in every guild. Guilds whose
// archive category is missing or not a category are skipped whole; a failed
// move never stops the sweep over the remaining channels.
func (e *Engine) Sweep(ctx context.Context) (*Summary, error) {
	sum := &Summary{}
	cutoffDays := e.InactivityDays

	guilds, err := e.dir.Guilds(ctx)
	if err != nil {
		return nil, err
	}

	for _, g := range guilds {
		category, err := e.dir.Channel(ctx, e.CategoryID)
		if err != nil || category == nil || category.Type != domain.ChannelTypeCategory || category.GuildID != g.ID {
			sum.GuildsSkipped++
			e.log.Warn("archive category unavailable, skipping guild",
				"guild", g.Name, "category_id", e.CategoryID, "err", err)
			continue
		}

		channels, err := e.dir.Channels(ctx, g.ID)
		if err != nil {
			sum.GuildsSkipped++
			e.log.Warn("cannot list channels, skipping guild", "guild", g.Name, "err", err)
			continue
		}

		for _, ch := range channels {
			if !ch.TextCapable() || ch.ParentID == e.CategoryID {
				continue
			}
			select {
			case <-ctx.Done():
				return sum, ctx.Err()
			default:
			}
			sum.Checked++
			e.evaluate(ctx, ch, cutoffDays, sum)
		}
	}
	return sum, nil
}

// evaluate decides one channel. A channel with no readable last message is
// never assumed inactive.
func (e *Engine) evaluate(ctx context.Context, ch domain.Channel, thresholdDays int, sum *Summary) {
	last, err := e.hist.LatestMessage(ctx, ch.ID)
	if err != nil {
		e.log.Warn("cannot read last message", "channel", ch.Name, "err", err)
		return
	}
	if last == nil {
		e.log.Info("no messages found, leaving channel alone", "channel", ch.Name)
		return
	}

	days := int(e.now().Sub(last.CreatedAt).Hours() / 24)
	if days < thresholdDays {
		e.log.Debug("channel active", "channel", ch.Name, "days_idle", days)
		return
	}

	if err := e.mover.MoveToCategory(ctx, ch.ID, e.CategoryID); err != nil {
		sum.Failed++
		e.log.Warn("move failed", "channel", ch.Name, "err", err)
		return
	}
	sum.Archived++
	if e.m != nil {
		e.m.ChannelsArchived.Inc()
	}
	e.log.Info("channel archived", "channel", ch.Name, "days_idle", days)
	e.pause(ctx)
}

func (e *Engine) pause(ctx context.Context) {
	if e.MovePause <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(e.MovePause):
	}
}
