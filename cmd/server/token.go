package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wiredraw-server/internal/auth"
	"github.com/vovakirdan/wiredraw-server/internal/config"
	applog "github.com/vovakirdan/wiredraw-server/internal/log"
)

// newTokenCommand mints a credential signed with the configured secret, for local testing.
func newTokenCommand() *cobra.Command {
	var (
		configPath string
		userID     string
		name       string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := config.LoadExisting(applog.New("warn"), configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			token, err := auth.GenerateToken(&auth.JWTConfig{
				Secret:   []byte(cfg.JWTSecret),
				Issuer:   cfg.JWTIssuer,
				Audience: cfg.JWTAudience,
				TTL:      ttl,
			}, userID, name)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	cmd.Flags().StringVar(&userID, "user", "", "user id to embed")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, 0 for no expiry")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
