package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"coverpool/services/poold/client"
)

const envPrefix = "POOLCTL"

type cli struct {
	v   *viper.Viper
	out io.Writer
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), out: out}
	root := &cobra.Command{
		Use:           "poolctl",
		Short:         "Operate a coverpool ledger over its HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig()
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.String("config", "", "optional config file (yaml, toml or json)")
	flags.String("endpoint", "http://127.0.0.1:8645", "poold base URL")
	flags.String("token", "", "bearer token")
	flags.Duration("timeout", 15*time.Second, "request timeout")
	flags.Bool("json", false, "print raw JSON")
	_ = c.v.BindPFlags(flags)

	root.AddCommand(
		c.statusCmd(),
		c.assetsCmd(),
		c.positionCmd(),
		c.withdrawalsCmd(),
		c.paramsCmd(),
		c.eventsCmd(),
		c.stakeCmd(),
		c.withdrawCmd(),
		c.harvestCmd(),
		c.redeemCmd(),
		c.transferCmd(),
		c.payoffCmd(),
		c.protocolCmd(),
		c.blockCmd(),
		c.govCmd(),
		c.keygenCmd(),
		c.tokenCmd(),
	)
	return root
}

func (c *cli) loadConfig() error {
	c.v.SetEnvPrefix(envPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
	if path := c.v.GetString("config"); path != "" {
		c.v.SetConfigFile(path)
		if err := c.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return nil
}

func (c *cli) client() (*client.Client, error) {
	return client.New(c.v.GetString("endpoint"), client.WithToken(c.v.GetString("token")))
}
