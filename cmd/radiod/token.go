package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maauso/radio-curator/internal/config"
	"github.com/maauso/radio-curator/internal/server"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the command endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		signed, err := server.IssueToken([]byte(cfg.CommandJWTSecret), tokenSubject, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), signed)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin-panel", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime; 0 issues a token without expiry")
	rootCmd.AddCommand(tokenCmd)
}
