package platform

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"scribe/internal/domain"
)

// historyIterator pages through a channel's messages lazily. The platform
// always delivers pages newest-first; the oldest-first mode walks the
// "after" cursor and reverses each page so callers see ascending order.
type historyIterator struct {
	d         *Discord
	channelID string
	opts      domain.HistoryOptions

	buf    []domain.Message
	cursor string
	done   bool
}

func (it *historyIterator) Next(ctx context.Context) (domain.Message, error) {
	if len(it.buf) == 0 {
		if it.done {
			return domain.Message{}, domain.ErrEndOfHistory
		}
		if err := it.fetch(ctx); err != nil {
			return domain.Message{}, err
		}
		if len(it.buf) == 0 {
			it.done = true
			return domain.Message{}, domain.ErrEndOfHistory
		}
	}

	m := it.buf[0]
	it.buf = it.buf[1:]
	return m, nil
}

func (it *historyIterator) fetch(ctx context.Context) error {
	size := it.opts.PageSize
	if size <= 0 || size > historyPageSize {
		size = historyPageSize
	}

	var (
		raw []*discordgo.Message
		err error
	)
	if it.opts.OldestFirst {
		// An empty after cursor would mean "latest page"; snowflake 0 is
		// the beginning of time.
		after := it.cursor
		if after == "" {
			after = "0"
		}
		raw, err = it.d.session.ChannelMessages(it.channelID, size, "", after, "", discordgo.WithContext(ctx))
	} else {
		raw, err = it.d.session.ChannelMessages(it.channelID, size, it.cursor, "", "", discordgo.WithContext(ctx))
	}
	if err != nil {
		return classify(err)
	}
	if len(raw) < size {
		it.done = true
	}
	if len(raw) == 0 {
		return nil
	}

	if it.opts.OldestFirst {
		// Pages arrive newest-first even in after mode.
		for i, j := 0, len(raw)-1; i < j; i, j = i+1, j-1 {
			raw[i], raw[j] = raw[j], raw[i]
		}
	}
	// Cursor advances past the last record of the page in walk order.
	it.cursor = raw[len(raw)-1].ID

	it.buf = make([]domain.Message, 0, len(raw))
	for _, m := range raw {
		it.buf = append(it.buf, normalizeMessage(m))
	}
	return nil
}
