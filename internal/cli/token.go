package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/clawchain/clawmarket/internal/api"
	"github.com/clawchain/clawmarket/internal/daemon"
	"github.com/clawchain/clawmarket/internal/domain"
)

func init() {
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "HS256 secret (defaults to api.jwt_secret from config)")
	tokenCmd.Flags().BoolVar(&tokenRoot, "root", false, "grant the root claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

var (
	tokenSecret string
	tokenRoot   bool
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token ACCOUNT",
	Short: "Mint a bearer token for an account",
	Long: `Mint an HS256 bearer token signed with the node's jwt_secret.
Anyone holding the secret can act as any account; use for development.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := tokenSecret
		if secret == "" {
			cfg, err := daemon.LoadConfig()
			if err != nil {
				return err
			}
			secret = cfg.API.JWTSecret
		}
		if secret == "" {
			return fmt.Errorf("no secret: pass --secret or set api.jwt_secret")
		}
		tok, err := api.IssueToken(secret, domain.AccountID(args[0]), tokenRoot, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}
