package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/entrance-ticketing/internal/capacity"
	"github.com/iliyamo/entrance-ticketing/internal/retention"
	"github.com/iliyamo/entrance-ticketing/internal/session"
	"github.com/iliyamo/entrance-ticketing/internal/utils"
	"github.com/iliyamo/entrance-ticketing/migrations"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := migrations.Apply(cmd.Context(), a.db); err != nil {
			return err
		}
		fmt.Println("schema applied")
		return nil
	},
}

var genInput capacity.GenerateInput

var generateCapacityCmd = &cobra.Command{
	Use:   "generate-capacity",
	Short: "Create or resize capacity slots over a date range",
	Long: `Create one capacity slot per date and daily time slot. Existing slots keep
their reserved and sold counters; only the total is overwritten. Dates before
today in BUSINESS_TZ are skipped.

Examples:
  ticketing generate-capacity --resource 3 --from 2026-08-01 --to 2026-08-31 --capacity 200
  ticketing generate-capacity --resource 3 --from 2026-08-01 --to 2026-08-01 --capacity 50 --slots 10:00,14:00
  ticketing generate-capacity --resource 9 --from 2026-08-01 --to 2026-12-31 --capacity 500 --all-day`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		res, err := a.generator.Generate(cmd.Context(), genInput)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

func init() {
	f := generateCapacityCmd.Flags()
	f.Uint64Var(&genInput.ResourceID, "resource", 0, "ticket resource id")
	f.StringVar(&genInput.From, "from", "", "first date, YYYY-MM-DD")
	f.StringVar(&genInput.To, "to", "", "last date, YYYY-MM-DD")
	f.IntVar(&genInput.TotalCapacity, "capacity", 0, "total capacity per slot")
	f.StringSliceVar(&genInput.TimeSlots, "slots", nil, "daily time slots, HH:MM (default CAPACITY_TIME_SLOTS)")
	f.BoolVar(&genInput.AllDay, "all-day", false, "one slot per date without a time of day")
	_ = generateCapacityCmd.MarkFlagRequired("resource")
	_ = generateCapacityCmd.MarkFlagRequired("from")
	_ = generateCapacityCmd.MarkFlagRequired("to")
}

var expireTicketsCmd = &cobra.Command{
	Use:   "expire-tickets",
	Short: "Mark active tickets valid before today as expired",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		n, err := retention.ExpireTickets(cmd.Context(), a.clock, a.tickets)
		if err != nil {
			return err
		}
		fmt.Printf("expired %d tickets before %s\n", n, a.clock.Today())
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one retention sweep and print the per-table report",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		report := a.scheduler().Sweeper.Sweep(cmd.Context())
		if err := printJSON(report); err != nil {
			return err
		}
		if report.Failed() {
			return errors.New("one or more tables failed to sweep")
		}
		return nil
	},
}

var (
	sessionBaseURL  string
	sessionToken    string
	sessionAttempts int
	sessionTimeout  time.Duration
)

var checkSessionCmd = &cobra.Command{
	Use:   "check-session",
	Short: "Validate a bearer token against GET /v1/session with retries",
	Long: `Validate a bearer token against a running API. Network failures are retried
with 1s, 2s, 4s... backoff; an expired or rejected token is not retried.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if sessionToken == "" {
			sessionToken = os.Getenv("SESSION_TOKEN")
		}
		if sessionToken == "" {
			return errors.New("--token or SESSION_TOKEN is required")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), sessionTimeout)
		defer cancel()
		v := session.NewValidator(session.RemoteChecker{BaseURL: sessionBaseURL, Token: sessionToken})
		res := v.ValidateWithRetry(ctx, sessionAttempts)
		if err := printJSON(res); err != nil {
			return err
		}
		if !res.Valid {
			if res.Error != nil {
				return fmt.Errorf("session invalid: %s", res.Error.Type)
			}
			return errors.New("session invalid")
		}
		return nil
	},
}

func init() {
	f := checkSessionCmd.Flags()
	f.StringVar(&sessionBaseURL, "base-url", "http://localhost:8080", "API root")
	f.StringVar(&sessionToken, "token", "", "bearer token (default $SESSION_TOKEN)")
	f.IntVar(&sessionAttempts, "attempts", 3, "maximum checks before giving up")
	f.DurationVar(&sessionTimeout, "timeout", 30*time.Second, "overall deadline")
}

var (
	tokenUser uint64
	tokenRole string
	tokenTTL  time.Duration
)

var issueTokenCmd = &cobra.Command{
	Use:   "issue-token",
	Short: "Mint a bearer token signed with JWT_SECRET (development only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			return errors.New("JWT_SECRET is not set")
		}
		tok, err := utils.NewAccessToken(secret, tokenUser, tokenRole, tokenTTL)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"token": tok.Token, "expires_at": tok.Exp})
	},
}

func init() {
	f := issueTokenCmd.Flags()
	f.Uint64Var(&tokenUser, "user", 0, "subject user id")
	f.StringVar(&tokenRole, "role", "CUSTOMER", "role claim (CUSTOMER or ADMIN)")
	f.DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	_ = issueTokenCmd.MarkFlagRequired("user")
}
