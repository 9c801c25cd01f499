package cmd

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/illarion/tokenlock/internal/ledger"
	"github.com/illarion/tokenlock/internal/locker"
)

type assetOp func(e *locker.Engine, ctx context.Context, payer solana.PublicKey, signers ledger.Authorizer, asset solana.PublicKey) (*locker.AssetInfo, error)

var assetCmd = &cobra.Command{
	Use:   "asset",
	Short: "Manage asset registration",
}

var assetRegisterCmd = &cobra.Command{
	Use:   "register <mint>",
	Short: "Register an asset (no-op if already registered)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAssetRegister,
}

var assetSettleCmd = &cobra.Command{
	Use:   "settle <mint>",
	Short: "Pay the one-time registration fee of an asset",
	Args:  cobra.ExactArgs(1),
	RunE:  runAssetSettle,
}

var assetAllowCmd = &cobra.Command{
	Use:   "allow <mint>",
	Short: "Mark an asset as settled without payment (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAssetAllow,
}

var assetShowCmd = &cobra.Command{
	Use:   "show <mint>",
	Short: "Show the registration of an asset",
	Args:  cobra.ExactArgs(1),
	RunE:  runAssetShow,
}

func init() {
	for _, c := range []*cobra.Command{assetRegisterCmd, assetSettleCmd} {
		c.Flags().String("payer", "", "address paying for the operation")
		addSignerFlag(c)
	}
	assetAllowCmd.Flags().Bool("revoke", false, "clear the settled flag instead")
	addSignerFlag(assetAllowCmd)

	assetCmd.AddCommand(assetRegisterCmd, assetSettleCmd, assetAllowCmd, assetShowCmd)
}

func runAssetRegister(c *cobra.Command, args []string) error {
	return payForAsset(c, args[0], (*locker.Engine).RegisterAsset, "registered")
}

func runAssetSettle(c *cobra.Command, args []string) error {
	return payForAsset(c, args[0], (*locker.Engine).SettleAssetFee, "fee settled")
}

func payForAsset(c *cobra.Command, mintArg string, op assetOp, done string) error {
	mint, err := parseKey("mint", mintArg)
	if err != nil {
		return err
	}
	payer, err := requiredKeyFlag(c, "payer")
	if err != nil {
		return err
	}
	signers, err := getSigners(c)
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	info, err := op(s.engine, c.Context(), payer, signers, mint)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Asset %s %s\n", mint, done)
	printAssetInfo(info)
	return nil
}

func runAssetAllow(c *cobra.Command, args []string) error {
	mint, err := parseKey("mint", args[0])
	if err != nil {
		return err
	}
	signers, err := getSigners(c)
	if err != nil {
		return err
	}
	revoke, _ := c.Flags().GetBool("revoke")

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	info, err := s.engine.SetAssetFeeSettled(c.Context(), signers, mint, !revoke)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Asset %s updated\n", mint)
	printAssetInfo(info)
	return nil
}

func runAssetShow(c *cobra.Command, args []string) error {
	mint, err := parseKey("mint", args[0])
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	info, err := s.engine.AssetInfo(c.Context(), mint)
	if err != nil {
		return err
	}
	addr, _, err := s.engine.AssetInfoAddress(mint)
	if err != nil {
		return err
	}
	fmt.Printf("AssetInfo %s\n", addr)
	printAssetInfo(info)
	return nil
}

func printAssetInfo(info *locker.AssetInfo) {
	fmt.Printf("  Asset:       %s\n", info.Asset)
	fmt.Printf("  Fee settled: %t\n", info.Settled())
}
