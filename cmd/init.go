package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/illarion/tokenlock/internal/ledger"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an empty ledger",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, _ []string) error {
		return Init(viper.GetString("ledger"))
	},
}

// Init creates a new ledger file at path
func Init(path string) error {
	l, err := ledger.Open(path)
	if err != nil {
		return err
	}
	defer l.Close()

	ok, err := l.IsInitialized()
	if err != nil {
		return err
	}
	if ok {
		fmt.Printf("Ledger %s already initialized\n", path)
		return nil
	}
	if err := l.Initialize(); err != nil {
		return err
	}

	fmt.Printf("✓ Initialized %s\n", path)
	return nil
}
