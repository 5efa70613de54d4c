package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/sla-engine/internal/auth"
	"github.com/spec-kit/sla-engine/internal/calendar"
	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/domain"
)

func main() {
	root := &cobra.Command{
		Use:           "slactl",
		Short:         "Operator tooling for the SLA engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(tokenCmd(), hashKeyCmd(), validateSeedCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		secret  string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an agent, admin or ingest client",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = os.Getenv("AUTH_JWT_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("--secret or AUTH_JWT_SECRET required")
			}
			token, expires, err := auth.NewTokenManager(secret, ttl).GenerateToken(subject, domain.Role(role))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintln(cmd.ErrOrStderr(), "expires", expires.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject, usually the staff id")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleAgent), "admin, agent or ingest")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to AUTH_JWT_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func hashKeyCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-ingest-key <key>",
		Short: "Print the bcrypt hash to put in AUTH_INGEST_KEY_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashIngestKey(args[0], cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}

func validateSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-seed <file>",
		Short: "Check a seed catalog without touching any store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := config.LoadSeed(args[0])
			if err != nil {
				return err
			}
			cals, err := seed.DomainCalendars()
			if err != nil {
				return err
			}
			known := make(map[string]bool, len(cals))
			for i := range cals {
				if err := calendar.Validate(cals[i]); err != nil {
					return err
				}
				known[cals[i].ID] = true
			}
			policies, err := seed.DomainPolicies()
			if err != nil {
				return err
			}
			defaults := 0
			for _, policy := range policies {
				if policy.IsDefault {
					defaults++
				}
				for priority, target := range policy.Targets {
					if !known[target.CalendarRef] {
						return fmt.Errorf("policy %s %s: unknown calendar %q", policy.ID, priority, target.CalendarRef)
					}
				}
			}
			if defaults != 1 {
				return fmt.Errorf("expected exactly one default policy, found %d", defaults)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d calendars, %d policies\n", len(cals), len(policies))
			return nil
		},
	}
}
