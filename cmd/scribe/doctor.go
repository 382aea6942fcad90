package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/config"
	"scribe/internal/platform"
	"scribe/internal/store"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your Scribe installation",
		Long: `Verifies that Scribe's configuration, database, and Discord credentials
are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Scribe Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config loads and validates
			cfg, err := config.Load(configPath)
			if err != nil {
				printFail("Config", err.Error())
				failed++
				fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
				fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Config", "valid")
			passed++

			// 2. Database reachable and writable
			if cfg.Store.URL == "" {
				printFail("Database", "DATABASE_URL is not set")
				failed++
			} else if err := checkDatabase(cfg); err != nil {
				printFail("Database", err.Error())
				failed++
			} else {
				printPass("Database", "reachable, schema up to date")
				passed++
			}

			// 3. Discord token
			if cfg.Discord.Token == "" {
				printFail("Discord token", "DISCORD_TOKEN is not set")
				failed++
			} else if err := checkDiscord(cfg); err != nil {
				printFail("Discord token", err.Error())
				failed++
			} else {
				printPass("Discord token", "authenticated")
				passed++
			}

			// 4. Archive category configured
			if cfg.Archive.CategoryID == "" {
				printWarn("Archive category", "not configured ('scribe archive' will refuse to run)")
				warned++
			} else {
				printPass("Archive category", cfg.Archive.CategoryID)
				passed++
			}

			// 5. Metrics port
			if cfg.Metrics.Enabled {
				if err := checkPort(cfg.Metrics.Port); err != nil {
					printWarn("Metrics port", fmt.Sprintf("port %d may be in use: %v", cfg.Metrics.Port, err))
					warned++
				} else {
					printPass("Metrics port", fmt.Sprintf(":%d available", cfg.Metrics.Port))
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running Scribe.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nScribe should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! Scribe is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	gw, err := store.Open(ctx, cfg.Store.URL, cfg.Store.MaxConns, cfg.Store.MaxIdleConns, logger)
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer gw.Close()

	if gw.Degraded() {
		return fmt.Errorf("cannot ping: database unreachable")
	}
	if err := gw.Migrate(ctx); err != nil {
		return fmt.Errorf("cannot migrate: %w", err)
	}
	return nil
}

func checkDiscord(cfg *config.Config) error {
	d, err := platform.New(cfg.Discord.Token, logger)
	if err != nil {
		return err
	}
	if _, err := d.SelfID(); err != nil {
		return fmt.Errorf("token rejected: %w", err)
	}
	return nil
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
