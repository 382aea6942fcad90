package platform

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"scribe/internal/domain"
)

func TestNormalizeMessage(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	edited := created.Add(time.Minute)

	m := normalizeMessage(&discordgo.Message{
		ID:        "111",
		ChannelID: "222",
		GuildID:   "333",
		Content:   "hello",
		Timestamp: created,
		EditedTimestamp: &edited,
		Pinned:    true,
		TTS:       false,
		Author: &discordgo.User{
			ID:            "444",
			Username:      "ada",
			Discriminator: "0042",
			GlobalName:    "Ada",
			Bot:           false,
		},
		Mentions: []*discordgo.User{{ID: "555"}, {ID: "666"}},
		Attachments: []*discordgo.MessageAttachment{{
			ID:          "777",
			URL:         "https://cdn.example/f.png",
			Filename:    "f.png",
			ContentType: "image/png",
			Size:        1024,
		}},
	})

	if m.ID != "111" || m.ChannelID != "222" || m.GuildID != "333" {
		t.Errorf("ids not carried over: %+v", m)
	}
	if !m.CreatedAt.Equal(created) {
		t.Errorf("created at: got %v", m.CreatedAt)
	}
	if m.EditedAt == nil || !m.EditedAt.Equal(edited) {
		t.Errorf("edited at: got %v", m.EditedAt)
	}
	if m.Author.Username != "ada" || m.Author.Discriminator == nil || *m.Author.Discriminator != "0042" {
		t.Errorf("author: %+v", m.Author)
	}
	if m.Author.GlobalName == nil || *m.Author.GlobalName != "Ada" {
		t.Errorf("global name: %+v", m.Author)
	}
	if len(m.Mentions) != 2 || m.Mentions[0] != "555" {
		t.Errorf("mentions: %v", m.Mentions)
	}
	if len(m.Attachments) != 1 {
		t.Fatalf("attachments: %v", m.Attachments)
	}
	a := m.Attachments[0]
	if a.MessageID != "111" || a.SizeBytes != 1024 || a.ContentType == nil || *a.ContentType != "image/png" {
		t.Errorf("attachment: %+v", a)
	}
}

func TestNormalizeAuthorNullables(t *testing.T) {
	a := normalizeAuthor(&discordgo.User{ID: "1", Username: "bot", Discriminator: "0", Bot: true})
	if a.Discriminator != nil {
		t.Errorf("placeholder discriminator should normalize to nil, got %q", *a.Discriminator)
	}
	if a.GlobalName != nil {
		t.Errorf("empty global name should normalize to nil")
	}
	if !a.Bot {
		t.Error("bot flag lost")
	}
}

func TestChannelTypeTag(t *testing.T) {
	cases := []struct {
		in   discordgo.ChannelType
		want string
	}{
		{discordgo.ChannelTypeGuildText, domain.ChannelTypeText},
		{discordgo.ChannelTypeGuildNews, domain.ChannelTypeNews},
		{discordgo.ChannelTypeGuildCategory, domain.ChannelTypeCategory},
		{discordgo.ChannelTypeGuildVoice, "voice"},
		{discordgo.ChannelTypeDM, "dm"},
	}
	for _, tc := range cases {
		if got := channelTypeTag(tc.in); got != tc.want {
			t.Errorf("channelTypeTag(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCreationTimeFromSnowflake(t *testing.T) {
	// 688116533553266759 encodes a timestamp in mid-2020.
	got := creationTime("688116533553266759")
	if got.Year() != 2020 {
		t.Errorf("expected 2020 creation year, got %v", got)
	}
	if !creationTime("not-a-snowflake").IsZero() {
		t.Error("invalid snowflake should yield zero time")
	}
}

func TestNormalizeUserGuildIcon(t *testing.T) {
	g := normalizeUserGuild(&discordgo.UserGuild{ID: "9", Name: "ops", Icon: "abc123"})
	if g.IconURL == nil {
		t.Fatal("expected icon URL")
	}
	none := normalizeUserGuild(&discordgo.UserGuild{ID: "9", Name: "ops"})
	if none.IconURL != nil {
		t.Error("missing icon should stay nil")
	}
}
