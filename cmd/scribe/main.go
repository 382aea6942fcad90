package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/archive"
	"scribe/internal/backfill"
	"scribe/internal/config"
	"scribe/internal/domain"
	"scribe/internal/ingest"
	"scribe/internal/metrics"
	"scribe/internal/platform"
	"scribe/internal/store"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "scribe",
		Short: "scribe: Discord activity archiver",
		Long:  "Scribe captures guilds, channels, messages, and attachments into Postgres and keeps inactive channels tidied away.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to scribe.yaml (default: environment only)")

	root.AddCommand(ingestCmd())
	root.AddCommand(backfillCmd())
	root.AddCommand(archiveCmd())
	root.AddCommand(replayCmd())
	root.AddCommand(postMeetingCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(daemonCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.General.LogLevel),
	}))
	return cfg, nil
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openStore connects the gateway and runs migrations.
func openStore(ctx context.Context, cfg *config.Config) (*store.Gateway, error) {
	if cfg.Store.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	gw, err := store.Open(ctx, cfg.Store.URL, cfg.Store.MaxConns, cfg.Store.MaxIdleConns, logger)
	if err != nil {
		return nil, err
	}
	if err := gw.Migrate(ctx); err != nil {
		gw.Close()
		return nil, err
	}
	return gw, nil
}

func openDiscord(cfg *config.Config) (*platform.Discord, error) {
	if cfg.Discord.Token == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is not set")
	}
	return platform.New(cfg.Discord.Token, logger)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Run the always-on live ingestor",
		Long:  "Connects to the Discord gateway and persists every observed message until interrupted.",
		RunE:  runIngest,
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	gw, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer gw.Close()

	d, err := openDiscord(cfg)
	if err != nil {
		return err
	}
	if err := d.Connect(); err != nil {
		return err
	}
	defer d.Close()

	selfID, err := d.SelfID()
	if err != nil {
		return fmt.Errorf("resolve own user: %w", err)
	}

	collector := metrics.NewCollector()
	counters := metrics.NewIngest(collector)

	ing := ingest.New(gw, d, selfID, counters, logger)
	ing.GuildID = cfg.Discord.GuildID
	if err := ing.SyncDirectory(ctx); err != nil {
		logger.Warn("startup directory sync incomplete", "err", err)
	}

	replayEngine := backfill.New(gw, d, d, counters, logger)

	d.OnMessage(messageHandler(ctx, ing, selfID, func(m domain.Message) {
		go runChatReplay(ctx, d, replayEngine, m)
	}))

	if cfg.Metrics.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.Metrics.Host, cfg.Metrics.Port)
		mux := http.NewServeMux()
		mux.HandleFunc("/metrics", collector.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("metrics endpoint up", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "err", err)
			}
		}()
		defer srv.Close()
	}

	if gw.Degraded() {
		logger.Warn("running against a degraded datastore")
	}
	logger.Info("ingestor started, press Ctrl+C to stop", "version", version)

	<-ctx.Done()
	logger.Info("shutting down ingestor")
	return nil
}

// messageHandler persists every live event and then dispatches replay
// commands. The command message itself is archived like any other; only
// afterwards does the replay start.
func messageHandler(ctx context.Context, ing *ingest.Ingestor, selfID string, replay func(m domain.Message)) func(m domain.Message) {
	return func(m domain.Message) {
		ing.HandleMessage(ctx, m)
		if isReplayCommand(m, selfID) {
			replay(m)
		}
	}
}

// isReplayCommand matches the in-chat administrator command "!replay [limit]".
func isReplayCommand(m domain.Message, selfID string) bool {
	if m.Author.ID == selfID || m.GuildID == "" {
		return false
	}
	return m.Content == "!replay" || strings.HasPrefix(m.Content, "!replay ")
}

func runChatReplay(ctx context.Context, d *platform.Discord, engine *backfill.Engine, m domain.Message) {
	admin, err := d.IsAdministrator(m.ChannelID, m.Author.ID)
	if err != nil || !admin {
		_ = d.SendText(ctx, m.ChannelID, "Replay requires administrator permission.")
		return
	}

	limit := 0
	fields := strings.Fields(m.Content)
	if len(fields) > 1 {
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			_ = d.SendText(ctx, m.ChannelID, "Usage: !replay [limit]")
			return
		}
		limit = n
	}

	limitLabel := "none"
	if limit > 0 {
		limitLabel = strconv.Itoa(limit)
	}
	_ = d.SendText(ctx, m.ChannelID, fmt.Sprintf("Starting replay for this channel (limit=%s)...", limitLabel))

	count, err := engine.ReplayChannel(ctx, m.ChannelID, limit, func(count int) {
		_ = d.SendText(ctx, m.ChannelID, fmt.Sprintf("Replayed %d messages...", count))
	})
	if err != nil {
		_ = d.SendText(ctx, m.ChannelID, fmt.Sprintf("Replay failed after %d messages: %v", count, err))
		return
	}
	_ = d.SendText(ctx, m.ChannelID, fmt.Sprintf("Replay complete. Total: %d messages.", count))
}

func backfillCmd() *cobra.Command {
	var windowDays int

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Backfill recent history across all guilds, then exit",
		Long: `Walks every text channel in every known guild newest-first and stores
messages down to the configured window, then prints a summary and exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if windowDays > 0 {
				cfg.Backfill.WindowDays = windowDays
			}

			ctx, stop := signalContext()
			defer stop()

			gw, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer gw.Close()

			d, err := openDiscord(cfg)
			if err != nil {
				return err
			}

			engine := backfill.New(gw, d, d, nil, logger)
			engine.Progress = func(channel string, count int) {
				logger.Info("backfill progress", "channel", channel, "messages", count)
			}

			window := time.Duration(cfg.Backfill.WindowDays) * 24 * time.Hour
			logger.Info("starting guild sweep", "window_days", cfg.Backfill.WindowDays)

			sum, err := engine.SweepGuilds(ctx, window)
			if sum != nil {
				fmt.Println(sum.String())
			}
			return err
		},
	}

	cmd.Flags().IntVar(&windowDays, "window-days", 0, "override the configured backfill window")
	return cmd
}

func archiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Move inactive channels into the archive category, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Archive.CategoryID == "" {
				return fmt.Errorf("ARCHIVE_CATEGORY_ID is not set")
			}

			ctx, stop := signalContext()
			defer stop()

			d, err := openDiscord(cfg)
			if err != nil {
				return err
			}

			engine := archive.New(d, d, d, cfg.Archive.CategoryID, cfg.Archive.InactivityDays, nil, logger)
			logger.Info("starting archival sweep",
				"inactivity_days", cfg.Archive.InactivityDays,
				"category_id", cfg.Archive.CategoryID,
			)

			sum, err := engine.Sweep(ctx)
			if sum != nil {
				fmt.Println(sum.String())
			}
			return err
		},
	}
}

func replayCmd() *cobra.Command {
	var (
		channelID string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild one channel's history oldest-first, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			gw, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer gw.Close()

			d, err := openDiscord(cfg)
			if err != nil {
				return err
			}

			engine := backfill.New(gw, d, d, nil, logger)
			count, err := engine.ReplayChannel(ctx, channelID, limit, func(count int) {
				logger.Info("replay progress", "channel_id", channelID, "messages", count)
			})
			if err != nil {
				return fmt.Errorf("replay stopped after %d messages: %w", count, err)
			}
			fmt.Printf("Replay complete for channel %s. Total: %d messages.\n", channelID, count)
			return nil
		},
	}

	cmd.Flags().StringVar(&channelID, "channel", "", "channel id to replay (required)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum messages to replay (0 = full history)")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}
