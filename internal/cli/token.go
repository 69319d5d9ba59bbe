package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/geckode/internal/relay"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	Secret     string
	Subject    string
	Channels   []string
	Permission string
	TTL        time.Duration
}

// TokenResult is the JSON payload of the token command.
type TokenResult struct {
	Token      string   `json:"token"`
	Subject    string   `json:"subject"`
	Channels   []string `json:"channels"`
	Permission string   `json:"permission"`
	ExpiresIn  string   `json:"expires_in,omitempty"`
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a channel token",
		Long: `Issue a signed token admitting a collaborator to relay channels.

The secret defaults to relay.secret from the configuration. A channel
of "*" grants every channel. --perm view admits a read-only member.

Examples:
  geckode token --subject alice --channel level-1
  geckode token --subject reviewer --channel "*" --perm view --ttl 1h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Secret, "secret", "", "signing secret (overrides relay.secret)")
	cmd.Flags().StringVar(&opts.Subject, "subject", "", "collaborator id")
	cmd.Flags().StringArrayVar(&opts.Channels, "channel", nil, "channel the token admits (repeatable)")
	cmd.Flags().StringVar(&opts.Permission, "perm", string(relay.PermEdit), "permission (edit|view)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("channel")

	return cmd
}

func runToken(opts *TokenOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	secret := opts.Secret
	if secret == "" {
		cfg, err := opts.loadConfig()
		if err != nil {
			return err
		}
		secret = cfg.Relay.Secret
	}
	if secret == "" {
		return f.Fail(ExitCommandError, ErrCodeInvalidArgs, "no signing secret: pass --secret or set relay.secret", nil)
	}

	perm := relay.Permission(opts.Permission)
	token, err := relay.IssueToken([]byte(secret), opts.Subject, opts.Channels, perm, opts.TTL)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidArgs, err.Error(), nil)
	}

	if f.JSON() {
		res := TokenResult{Token: token, Subject: opts.Subject, Channels: opts.Channels, Permission: opts.Permission}
		if opts.TTL > 0 {
			res.ExpiresIn = opts.TTL.String()
		}
		return f.Success(res)
	}
	fmt.Fprintln(f.Writer, token)
	return nil
}
