/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/dawnchorus/internal/auth"
)

var (
	tokenName string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API token signed with DAWN_JWT_SIGNING_KEY",
	Long: `Mint a bearer token for the HTTP API.

Mutating API routes and the event stream require a token once
DAWN_JWT_SIGNING_KEY is set. A TTL of 0 issues a token that never expires.

Example:
  curl -H "Authorization: Bearer $(dawnchorus token --name kitchen-panel)" ...
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		if cfg.JWTSigningKey == "" {
			return errors.New("DAWN_JWT_SIGNING_KEY is not set; the API accepts requests without a token")
		}
		token, err := auth.Issue([]byte(cfg.JWTSigningKey), tokenName, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenName, "name", "cli", "Client name recorded in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 30*24*time.Hour, "Token lifetime (0 = never expires)")
	rootCmd.AddCommand(tokenCmd)
}
