package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"scribe/internal/domain"
)

func postMeetingCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "post-meeting",
		Short: "Post a meeting summary embed to a channel",
		Long: `Reads a meeting summary as JSON from stdin (or --file) and posts it
as a rich embed. Expected shape:

  {
    "channel_id": "123",
    "title": "Weekly sync",
    "summary": "What we covered...",
    "link": "https://recordings.example.com/abc",
    "participants": ["alice", "bob"]
  }`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var r io.Reader = os.Stdin
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			var summary domain.MeetingSummary
			if err := json.NewDecoder(r).Decode(&summary); err != nil {
				return fmt.Errorf("parse summary: %w", err)
			}
			if summary.ChannelID == "" {
				return fmt.Errorf("summary is missing channel_id")
			}
			if summary.Title == "" {
				return fmt.Errorf("summary is missing title")
			}

			ctx, stop := signalContext()
			defer stop()

			d, err := openDiscord(cfg)
			if err != nil {
				return err
			}

			if err := d.PostSummary(ctx, summary); err != nil {
				return fmt.Errorf("post summary: %w", err)
			}
			fmt.Printf("Summary posted to channel %s.\n", summary.ChannelID)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "read the summary from a file instead of stdin")
	return cmd
}
