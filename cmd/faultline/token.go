package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"faultline/internal/auth"
	"faultline/internal/rbac"
	"faultline/internal/util"
)

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		producer string
		role     string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a report producer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.cfg.IngestTokenSecret == "" {
				return fmt.Errorf("ingest_token_secret is not configured")
			}
			if producer == "" {
				return fmt.Errorf("--producer is required")
			}
			if !rbac.Valid(role) {
				return fmt.Errorf("--role must be reporter, viewer or admin")
			}
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive")
			}
			token, err := auth.IssueToken([]byte(opts.cfg.IngestTokenSecret), auth.Claims{
				Producer: producer,
				Role:     role,
				JTI:      util.NewID("tok"),
				Exp:      time.Now().Add(ttl).Unix(),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&producer, "producer", "", "name of the producer the token identifies")
	cmd.Flags().StringVar(&role, "role", string(rbac.RoleReporter), "reporter, viewer or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 90*24*time.Hour, "token lifetime")
	return cmd
}
