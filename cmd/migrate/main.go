package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"autoleads/internal/config"
	"autoleads/migrations"
)

// ANSI color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

const commandTimeout = 2 * time.Minute

func main() {
	// Load .env file (ignore error if not present)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		printError(err.Error())
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Apply, roll back and seed the autoleads schema",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE:  withRunner(runUp),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last applied migration",
			RunE:  withRunner(runDown),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show applied and pending migrations",
			RunE:  withRunner(runStatus),
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Roll back every migration and reapply them",
			RunE:  withRunner(runReset),
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Load demo organizations, users and threads",
			RunE:  withRunner(runSeed),
		},
	)
}

// withRunner opens the database and prepares the tracking table before running fn
func withRunner(fn func(ctx context.Context, r *migrations.Runner) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		printInfo("Connecting to database...")
		db, err := sql.Open("postgres", cfg.GetDatabaseDSN())
		if err != nil {
			return fmt.Errorf("failed to open database connection: %w", err)
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("failed to ping database: %w", err)
		}
		printSuccess("Connected to database")

		runner, err := migrations.NewRunner(db)
		if err != nil {
			return err
		}
		if err := runner.EnsureTable(ctx); err != nil {
			return err
		}

		return fn(ctx, runner)
	}
}

func runUp(ctx context.Context, r *migrations.Runner) error {
	applied, err := r.Up(ctx)
	for _, m := range applied {
		printSuccess(fmt.Sprintf("Applied %03d_%s", m.Version, m.Name))
	}
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		printInfo("No pending migrations")
	}
	return nil
}

func runDown(ctx context.Context, r *migrations.Runner) error {
	m, err := r.Down(ctx)
	if err != nil {
		return err
	}
	if m == nil {
		printWarning("No migrations to roll back")
		return nil
	}
	printSuccess(fmt.Sprintf("Rolled back %03d_%s", m.Version, m.Name))
	return nil
}

func runStatus(ctx context.Context, r *migrations.Runner) error {
	status, err := r.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%-8s %-36s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, m := range status {
		state, appliedAt := colorYellow+"pending"+colorReset, "-"
		if m.Applied {
			state = colorGreen + "applied" + colorReset
			if m.AppliedAt != nil {
				appliedAt = m.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Printf("%03d      %-36s %-19s %s\n", m.Version, m.Name, state, appliedAt)
	}
	return nil
}

func runReset(ctx context.Context, r *migrations.Runner) error {
	printWarning("Rolling back every migration")
	applied, err := r.Reset(ctx)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Reapplied %d migrations", len(applied)))
	return nil
}

func runSeed(ctx context.Context, r *migrations.Runner) error {
	seeds, err := r.Seed(ctx)
	if err != nil {
		return err
	}
	for _, s := range seeds {
		printSuccess(fmt.Sprintf("Seeded %03d_%s", s.Version, s.Name))
	}
	return nil
}

func printSuccess(msg string) {
	fmt.Println(colorGreen + "✓ " + msg + colorReset)
}

func printError(msg string) {
	fmt.Fprintln(os.Stderr, colorRed+"✗ "+msg+colorReset)
}

func printWarning(msg string) {
	fmt.Println(colorYellow + "! " + msg + colorReset)
}

func printInfo(msg string) {
	fmt.Println(colorCyan + msg + colorReset)
}
