package cmd

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/illarion/tokenlock/internal/ledger"
)

var mintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Define assets and issue units",
}

var mintCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Define a new asset",
	Args:  cobra.NoArgs,
	RunE:  runMintCreate,
}

var mintToCmd = &cobra.Command{
	Use:   "to <mint> <account> <amount>",
	Short: "Issue new units of an asset into an account",
	Args:  cobra.ExactArgs(3),
	RunE:  runMintTo,
}

func init() {
	mintCreateCmd.Flags().String("address", "", "mint address (default: a fresh address)")
	mintCreateCmd.Flags().String("authority", "", "address allowed to issue units")
	mintCreateCmd.Flags().Uint8("decimals", 6, "display decimals")
	mintCreateCmd.Flags().Uint16("transfer-fee-bps", 0, "basis points withheld from every transfer")
	addSignerFlag(mintToCmd)

	mintCmd.AddCommand(mintCreateCmd, mintToCmd)
}

func runMintCreate(c *cobra.Command, _ []string) error {
	addr, err := keyFlag(c, "address")
	if err != nil {
		return err
	}
	authority, err := requiredKeyFlag(c, "authority")
	if err != nil {
		return err
	}
	decimals, _ := c.Flags().GetUint8("decimals")
	feeBps, _ := c.Flags().GetUint16("transfer-fee-bps")

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	err = s.ledger.Update(c.Context(), func(tx *ledger.Tx) error {
		return tx.CreateMint(addr, authority, decimals, feeBps)
	})
	if err != nil {
		return err
	}
	fmt.Printf("✓ Created mint %s\n", addr)
	return nil
}

func runMintTo(c *cobra.Command, args []string) error {
	mint, err := parseKey("mint", args[0])
	if err != nil {
		return err
	}
	account, err := parseKey("account", args[1])
	if err != nil {
		return err
	}
	amount, err := parseAmount(args[2])
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

	err = s.ledger.Update(c.Context(), func(tx *ledger.Tx) error {
		return tx.MintTo(mint, account, signers, amount)
	})
	if err != nil {
		return err
	}
	fmt.Printf("✓ Issued %d to %s\n", amount, account)
	return nil
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage asset accounts",
}

var accountCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the associated account of a wallet for an asset",
	Args:  cobra.NoArgs,
	RunE:  runAccountCreate,
}

var accountShowCmd = &cobra.Command{
	Use:   "show <address>",
	Short: "Show an asset account and the native balance of an address",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountShow,
}

var airdropCmd = &cobra.Command{
	Use:   "airdrop <address> <amount>",
	Short: "Credit native units to an address",
	Args:  cobra.ExactArgs(2),
	RunE:  runAirdrop,
}

func init() {
	accountCreateCmd.Flags().String("mint", "", "asset of the account")
	accountCreateCmd.Flags().String("owner", "", "wallet controlling the account")

	accountCmd.AddCommand(accountCreateCmd, accountShowCmd)
}

func runAccountCreate(c *cobra.Command, _ []string) error {
	mint, err := requiredKeyFlag(c, "mint")
	if err != nil {
		return err
	}
	owner, err := requiredKeyFlag(c, "owner")
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	var addr solana.PublicKey
	err = s.ledger.Update(c.Context(), func(tx *ledger.Tx) error {
		addr, err = tx.GetOrCreateAssociatedTokenAccount(owner, mint)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Printf("✓ Account %s\n", addr)
	return nil
}

func runAccountShow(c *cobra.Command, args []string) error {
	addr, err := parseKey("address", args[0])
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	return s.ledger.View(c.Context(), func(tx *ledger.Tx) error {
		fmt.Printf("Address %s\n", addr)
		fmt.Printf("  Native:    %d\n", tx.NativeBalance(addr))
		acct, err := tx.TokenAccount(addr)
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("  Mint:      %s\n", acct.Mint)
		fmt.Printf("  Authority: %s\n", acct.Authority)
		fmt.Printf("  Balance:   %d\n", acct.Amount)
		return nil
	})
}

func runAirdrop(c *cobra.Command, args []string) error {
	addr, err := parseKey("address", args[0])
	if err != nil {
		return err
	}
	amount, err := parseAmount(args[1])
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	err = s.ledger.Update(c.Context(), func(tx *ledger.Tx) error {
		return tx.Airdrop(addr, amount)
	})
	if err != nil {
		return err
	}
	fmt.Printf("✓ Airdropped %d to %s\n", amount, addr)
	return nil
}
