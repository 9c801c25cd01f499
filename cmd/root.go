package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// DefaultLedgerFile is the ledger used when none is configured
const DefaultLedgerFile = ".tokenlock"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tokenlock",
	Short: "Time-locked escrow of fungible assets",
	Long: `tokenlock escrows asset balances in vaults that no key controls.
Funds leave a vault only when the lock owner signs and the unlock date has passed.

Signers are declared with --signer and trusted; tokenlock never holds private keys.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./.tokenlock.yaml, then $HOME/.tokenlock.yaml)")
	flags.String("ledger", DefaultLedgerFile, "ledger database file")
	flags.String("program", "", "program id vault authorities are derived under")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("ledger", flags.Lookup("ledger"))
	_ = viper.BindPFlag("program", flags.Lookup("program"))
	_ = viper.BindPFlag("log-level", flags.Lookup("log-level"))

	rootCmd.AddCommand(initCmd, compactCmd, configCmd, assetCmd, mintCmd, accountCmd, airdropCmd, lockCmd)
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".tokenlock")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TOKENLOCK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Error: failed to read config %s: %s\n", cfgFile, err)
			os.Exit(1)
		}
	}
}
