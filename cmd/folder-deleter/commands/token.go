package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maruaican/Quick-Folder-Deleter/internal/auth"
	"github.com/maruaican/Quick-Folder-Deleter/internal/exitcodes"
)

var errAuthDisabled = errors.New("auth.jwt_secret is not configured")

type tokenOptions struct {
	subject string
	roles   []string
	ttl     time.Duration
}

func (c *CLI) newTokenCmd() *cobra.Command {
	opts := tokenOptions{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runToken(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.subject, "subject", "", "Who the token is issued to")
	cmd.Flags().StringSliceVar(&opts.roles, "role", []string{auth.RoleOperator}, "Roles: admin, operator, viewer")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 0, "Token lifetime (default auth.jwt_expiry)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func (c *CLI) runToken(cmd *cobra.Command, opts tokenOptions) error {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cfg.AuthEnabled() {
		return withCode(exitcodes.InvalidConfig, errAuthDisabled)
	}

	ttl := opts.ttl
	if ttl <= 0 {
		ttl = cfg.Auth.JWTExpiry
	}

	m := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry)
	token, err := m.GenerateTokenWithTTL(opts.subject, opts.roles, ttl)
	if err != nil {
		if errors.Is(err, auth.ErrUnknownRole) || errors.Is(err, auth.ErrNoRoles) {
			return withCode(exitcodes.InvalidConfig, err)
		}
		return err
	}

	_, err = fmt.Fprintln(c.out, token)
	return err
}
