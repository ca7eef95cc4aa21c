// Package cli implements the clawmarket command-line interface using Cobra.
// Every command except serve and token talks to a running node over HTTP.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/clawchain/clawmarket/internal/client"
)

const defaultServer = "http://127.0.0.1:9944"

var rootCmd = &cobra.Command{
	Use:   "clawmarket",
	Short: "clawmarket: task marketplace and reputation ledger",
	Long: `clawmarket runs a task marketplace node with escrowed rewards,
bidding, dispute resolution and a per-account reputation ledger.

Start a node with 'clawmarket serve', then drive it with the task,
review, rep and balance commands.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("server", defaultServer, "node API base URL")
	pf.String("account", "", "account to act as (dev auth only)")
	pf.String("token", "", "bearer token (see 'clawmarket token')")
	pf.Bool("json", false, "print JSON instead of tables")
	pf.Int("decimals", 0, "decimal places used to display and parse amounts")

	viper.SetEnvPrefix("CLAWMARKET")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	for _, name := range []string{"server", "account", "token", "json", "decimals"} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version
	buildVersion = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var buildVersion = "dev"

// newClient builds an API client from the persistent flags.
func newClient() *client.Client {
	c := client.New(viper.GetString("server"))
	c.BearerToken = viper.GetString("token")
	c.Account = viper.GetString("account")
	return c
}

func jsonOutput() bool { return viper.GetBool("json") }

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
