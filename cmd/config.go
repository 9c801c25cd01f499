package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/tokenlock/internal/locker"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the global fee configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the fee configuration (once per ledger)",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Change fee settings or hand over administration",
	Args:  cobra.NoArgs,
	RunE:  runConfigUpdate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the fee configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	addFeeFlags := func(c *cobra.Command) {
		c.Flags().String("fee-destination", "", "address receiving fees")
		c.Flags().Uint64("flat-fee", 0, "flat fee in native units")
		c.Flags().Uint64("fee-numerator", 0, "proportional fee numerator")
		c.Flags().Uint64("fee-denominator", 10000, "proportional fee denominator")
		c.Flags().Bool("allowlist", false, "register assets on proportional deposits")
		addSignerFlag(c)
	}

	addFeeFlags(configInitCmd)
	configInitCmd.Flags().String("admin", "", "administrator address")

	addFeeFlags(configUpdateCmd)
	configUpdateCmd.Flags().String("admin", "", "new administrator address")

	configCmd.AddCommand(configInitCmd, configUpdateCmd, configShowCmd)
}

func runConfigInit(c *cobra.Command, _ []string) error {
	admin, err := requiredKeyFlag(c, "admin")
	if err != nil {
		return err
	}
	dest, err := requiredKeyFlag(c, "fee-destination")
	if err != nil {
		return err
	}
	signers, err := getSigners(c)
	if err != nil {
		return err
	}
	args := locker.ConfigArgs{FeeDestination: dest}
	args.FeeInLedgerUnit, _ = c.Flags().GetUint64("flat-fee")
	args.FeeNumerator, _ = c.Flags().GetUint64("fee-numerator")
	args.FeeDenominator, _ = c.Flags().GetUint64("fee-denominator")
	args.AssetAllowlistEnforced, _ = c.Flags().GetBool("allowlist")

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	cfg, err := s.engine.InitConfig(c.Context(), admin, signers, args)
	if err != nil {
		return err
	}
	fmt.Println("✓ Config initialized")
	printConfig(cfg)
	return nil
}

func runConfigUpdate(c *cobra.Command, _ []string) error {
	signers, err := getSigners(c)
	if err != nil {
		return err
	}

	var upd locker.ConfigUpdate
	flags := c.Flags()
	if flags.Changed("admin") {
		k, err := requiredKeyFlag(c, "admin")
		if err != nil {
			return err
		}
		upd.Admin = &k
	}
	if flags.Changed("fee-destination") {
		k, err := requiredKeyFlag(c, "fee-destination")
		if err != nil {
			return err
		}
		upd.FeeDestination = &k
	}
	if flags.Changed("flat-fee") {
		v, _ := flags.GetUint64("flat-fee")
		upd.FeeInLedgerUnit = &v
	}
	if flags.Changed("fee-numerator") {
		v, _ := flags.GetUint64("fee-numerator")
		upd.FeeNumerator = &v
	}
	if flags.Changed("fee-denominator") {
		v, _ := flags.GetUint64("fee-denominator")
		upd.FeeDenominator = &v
	}
	if flags.Changed("allowlist") {
		v, _ := flags.GetBool("allowlist")
		upd.AssetAllowlistEnforced = &v
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	cfg, err := s.engine.UpdateConfig(c.Context(), signers, upd)
	if err != nil {
		return err
	}
	fmt.Println("✓ Config updated")
	printConfig(cfg)
	return nil
}

func runConfigShow(c *cobra.Command, _ []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	cfg, err := s.engine.Config(c.Context())
	if err != nil {
		return err
	}
	addr, _, err := s.engine.ConfigAddress()
	if err != nil {
		return err
	}
	fmt.Printf("Config %s\n", addr)
	printConfig(cfg)
	return nil
}

func printConfig(cfg *locker.Config) {
	fmt.Printf("  Admin:           %s\n", cfg.Admin)
	fmt.Printf("  Fee destination: %s\n", cfg.FeeDestination)
	fmt.Printf("  Flat fee:        %d native units\n", cfg.FeeInLedgerUnit)
	fmt.Printf("  Proportional:    %d/%d\n", cfg.FeeNumerator, cfg.FeeDenominator)
	fmt.Printf("  Allow-list:      %t\n", cfg.AllowlistEnforced())
}
