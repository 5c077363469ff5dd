package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/drivesearch-go/internal/credential"
)

// NewAuthURLCmd constructs the `drivesearch auth-url` command, which prints
// the Google consent URL.
func NewAuthURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth-url",
		Short: "Print the Google consent URL",
		Long: `Print the Google consent URL for the configured OAuth client. Opening it
starts the same sign-in flow as GET /api/auth/url.

Only OAUTH_CLIENT_ID is required; OAUTH_REDIRECT_URI defaults to the
callback route of drivesearch serve.

Examples:
  drivesearch auth-url
  open "$(drivesearch auth-url)"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := buildAuthManager(credential.NewMemoryStore(), false)
			if err != nil {
				return fmt.Errorf("auth-url: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), manager.AuthURL())
			return err
		},
	}
}
