package archive

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"scribe/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDir struct {
	guilds   []domain.Guild
	byID     map[string]domain.Channel
	channels map[string][]domain.Channel
}

func (d *fakeDir) Guilds(context.Context) ([]domain.Guild, error) { return d.guilds, nil }

func (d *fakeDir) Guild(_ context.Context, id string) (*domain.Guild, error) {
	for _, g := range d.guilds {
		if g.ID == id {
			return &g, nil
		}
	}
	return nil, nil
}

func (d *fakeDir) Channels(_ context.Context, guildID string) ([]domain.Channel, error) {
	return d.channels[guildID], nil
}

func (d *fakeDir) Channel(_ context.Context, id string) (*domain.Channel, error) {
	if c, ok := d.byID[id]; ok {
		return &c, nil
	}
	return nil, nil
}

type fakeHistorian struct {
	latest map[string]*domain.Message
	errOn  map[string]error
}

func (h *fakeHistorian) History(string, domain.HistoryOptions) domain.HistoryIterator {
	return nil
}

func (h *fakeHistorian) LatestMessage(_ context.Context, channelID string) (*domain.Message, error) {
	if err := h.errOn[channelID]; err != nil {
		return nil, err
	}
	return h.latest[channelID], nil
}

type fakeMover struct {
	moved map[string]string
	errOn map[string]error
}

func (m *fakeMover) MoveToCategory(_ context.Context, channelID, categoryID string) error {
	if err := m.errOn[channelID]; err != nil {
		return err
	}
	if m.moved == nil {
		m.moved = make(map[string]string)
	}
	m.moved[channelID] = categoryID
	return nil
}

const archiveID = "cat-archive"

func opsGuild(extra ...domain.Channel) *fakeDir {
	category := domain.Channel{ID: archiveID, GuildID: "guild-1", Name: "Archive", Type: domain.ChannelTypeCategory}
	dir := &fakeDir{
		guilds:   []domain.Guild{{ID: "guild-1", Name: "ops"}},
		byID:     map[string]domain.Channel{archiveID: category},
		channels: map[string][]domain.Channel{"guild-1": {category}},
	}
	for _, c := range extra {
		dir.byID[c.ID] = c
		dir.channels["guild-1"] = append(dir.channels["guild-1"], c)
	}
	return dir
}

func latestAt(at time.Time) *domain.Message {
	return &domain.Message{ID: "m", CreatedAt: at}
}

func newTestEngine(dir *fakeDir, hist *fakeHistorian, mover *fakeMover) *Engine {
	e := New(dir, hist, mover, archiveID, 30, nil, testLogger())
	e.MovePause = 0
	return e
}

func TestSweepArchivesOnlyInactiveChannels(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	dir := opsGuild(
		domain.Channel{ID: "chan-general", GuildID: "guild-1", Name: "general", Type: domain.ChannelTypeText},
		domain.Channel{ID: "chan-old", GuildID: "guild-1", Name: "old-project", Type: domain.ChannelTypeText},
	)
	hist := &fakeHistorian{latest: map[string]*domain.Message{
		"chan-general": latestAt(now),
		"chan-old":     latestAt(now.Add(-45 * 24 * time.Hour)),
	}}
	mover := &fakeMover{}

	e := newTestEngine(dir, hist, mover)
	e.now = func() time.Time { return now }

	sum, err := e.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if sum.Checked != 2 || sum.Archived != 1 {
		t.Errorf("expected checked=2 archived=1, got %+v", sum)
	}
	if mover.moved["chan-old"] != archiveID {
		t.Error("old-project should have been archived")
	}
	if _, ok := mover.moved["chan-general"]; ok {
		t.Error("active channel must not be moved")
	}
}

func TestSweepNeverArchivesEmptyChannels(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	dir := opsGuild(
		domain.Channel{ID: "chan-empty", GuildID: "guild-1", Name: "empty", Type: domain.ChannelTypeText},
	)
	hist := &fakeHistorian{latest: map[string]*domain.Message{}}
	mover := &fakeMover{}

	e := newTestEngine(dir, hist, mover)
	e.now = func() time.Time { return now }

	sum, err := e.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(mover.moved) != 0 {
		t.Error("empty channel must never be archived")
	}
	if sum.Checked != 1 || sum.Archived != 0 {
		t.Errorf("tally wrong: %+v", sum)
	}
}

func TestSweepSkipsChannelsAlreadyInArchive(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	dir := opsGuild(
		domain.Channel{ID: "chan-done", GuildID: "guild-1", Name: "done", Type: domain.ChannelTypeText, ParentID: archiveID},
	)
	hist := &fakeHistorian{latest: map[string]*domain.Message{
		"chan-done": latestAt(now.Add(-90 * 24 * time.Hour)),
	}}
	mover := &fakeMover{}

	e := newTestEngine(dir, hist, mover)
	e.now = func() time.Time { return now }

	sum, err := e.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Checked != 0 || len(mover.moved) != 0 {
		t.Errorf("archived channel must not be re-checked: %+v", sum)
	}
}

func TestSweepSkipsGuildWithoutCategory(t *testing.T) {
	dir := &fakeDir{
		guilds: []domain.Guild{{ID: "guild-1", Name: "ops"}},
		byID:   map[string]domain.Channel{},
		channels: map[string][]domain.Channel{"guild-1": {
			{ID: "chan-old", GuildID: "guild-1", Name: "old", Type: domain.ChannelTypeText},
		}},
	}
	mover := &fakeMover{}
	e := newTestEngine(dir, &fakeHistorian{}, mover)

	sum, err := e.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.GuildsSkipped != 1 || sum.Checked != 0 {
		t.Errorf("guild without category must be skipped whole: %+v", sum)
	}
}

func TestSweepSkipsGuildWhenCategoryIsNotACategory(t *testing.T) {
	textChannel := domain.Channel{ID: archiveID, GuildID: "guild-1", Name: "not-a-category", Type: domain.ChannelTypeText}
	dir := &fakeDir{
		guilds:   []domain.Guild{{ID: "guild-1", Name: "ops"}},
		byID:     map[string]domain.Channel{archiveID: textChannel},
		channels: map[string][]domain.Channel{"guild-1": {textChannel}},
	}
	e := newTestEngine(dir, &fakeHistorian{}, &fakeMover{})

	sum, err := e.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.GuildsSkipped != 1 {
		t.Errorf("non-category archive id must skip the guild: %+v", sum)
	}
}

func TestSweepContinuesPastFailedMove(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	stale := latestAt(now.Add(-60 * 24 * time.Hour))
	dir := opsGuild(
		domain.Channel{ID: "chan-a", GuildID: "guild-1", Name: "alpha", Type: domain.ChannelTypeText},
		domain.Channel{ID: "chan-b", GuildID: "guild-1", Name: "bravo", Type: domain.ChannelTypeText},
	)
	hist := &fakeHistorian{latest: map[string]*domain.Message{
		"chan-a": stale,
		"chan-b": stale,
	}}
	mover := &fakeMover{errOn: map[string]error{"chan-a": domain.ErrRemoteAccessDenied}}

	e := newTestEngine(dir, hist, mover)
	e.now = func() time.Time { return now }

	sum, err := e.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Failed != 1 || sum.Archived != 1 {
		t.Errorf("failed move must not stop the sweep: %+v", sum)
	}
	if mover.moved["chan-b"] != archiveID {
		t.Error("later channel should still be archived")
	}
}

func TestSweepRespectsExactThreshold(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	dir := opsGuild(
		domain.Channel{ID: "chan-29", GuildID: "guild-1", Name: "d29", Type: domain.ChannelTypeText},
		domain.Channel{ID: "chan-30", GuildID: "guild-1", Name: "d30", Type: domain.ChannelTypeText},
	)
	hist := &fakeHistorian{latest: map[string]*domain.Message{
		"chan-29": latestAt(now.Add(-29*24*time.Hour - 12*time.Hour)),
		"chan-30": latestAt(now.Add(-30 * 24 * time.Hour)),
	}}
	mover := &fakeMover{}

	e := newTestEngine(dir, hist, mover)
	e.now = func() time.Time { return now }

	if _, err := e.Sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := mover.moved["chan-29"]; ok {
		t.Error("29 whole days idle is under the threshold")
	}
	if _, ok := mover.moved["chan-30"]; !ok {
		t.Error("30 whole days idle meets the threshold")
	}
}
