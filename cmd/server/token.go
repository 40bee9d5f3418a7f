package main

import (
	"fmt"
	"os/user"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

type tokenOptions struct {
	subject string
	dbRole  string
	roles   string
	expires time.Duration
}

// newTokenCmd mints development tokens for the shared secret verifier.
func newTokenCmd() *cobra.Command {
	opts := tokenOptions{subject: currentUsername()}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an HS256 bearer token signed with server.auth.jwt_secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			auth := cfg.Server.Auth
			if !auth.JWTEnabled() {
				return fmt.Errorf("server.auth.jwt_secret is not set")
			}
			if opts.expires <= 0 {
				return fmt.Errorf("--expires must be positive")
			}

			now := time.Now()
			claims := jwt.MapClaims{
				"sub": opts.subject,
				"iat": now.Unix(),
				"nbf": now.Unix(),
				"exp": now.Add(opts.expires).Unix(),
			}
			if auth.JWTIssuer != "" {
				claims["iss"] = auth.JWTIssuer
			}
			if auth.JWTAudience != "" {
				claims["aud"] = auth.JWTAudience
			}
			if opts.dbRole != "" {
				claim := auth.DBRoleClaimName
				if claim == "" {
					claim = "db_role"
				}
				claims[claim] = opts.dbRole
			}
			if list := splitList(opts.roles); len(list) > 0 {
				claims["roles"] = list
			}

			signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(auth.JWTSecret))
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), signed)
			return err
		},
	}
	cmd.Flags().StringVar(&opts.subject, "subject", opts.subject, "Token subject")
	cmd.Flags().StringVar(&opts.dbRole, "db-role", "", "Database role claim")
	cmd.Flags().StringVar(&opts.roles, "roles", "", "Comma-separated roles claim")
	cmd.Flags().DurationVar(&opts.expires, "expires", time.Hour, "Token lifetime")
	return cmd
}

func currentUsername() string {
	u, err := user.Current()
	if err != nil || u.Username == "" {
		return "user-1"
	}
	return u.Username
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
