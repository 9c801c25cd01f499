package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/illarion/tokenlock/internal/fee"
	"github.com/illarion/tokenlock/internal/locker"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Create and manage locks",
}

var lockCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Escrow an amount until an unlock date",
	Long: `Escrow an amount until an unlock date.

The unlock date is either an offset from now (+90s, +720h), an RFC3339 time
or unix seconds. The fee mode is flat (native units, paid by the funding
authority) or proportional (a cut of the deposit, paid on top of it).`,
	Args: cobra.NoArgs,
	RunE: runLockCreate,
}

var lockRelockCmd = &cobra.Command{
	Use:   "relock <lock>",
	Short: "Extend the unlock date of a lock",
	Args:  cobra.ExactArgs(1),
	RunE:  runLockRelock,
}

var lockTransferCmd = &cobra.Command{
	Use:   "transfer <lock> <new-owner>",
	Short: "Hand a lock over to a new owner",
	Args:  cobra.ExactArgs(2),
	RunE:  runLockTransfer,
}

var lockIncrementCmd = &cobra.Command{
	Use:   "increment <lock>",
	Short: "Add funds to a lock",
	Args:  cobra.ExactArgs(1),
	RunE:  runLockIncrement,
}

var lockWithdrawCmd = &cobra.Command{
	Use:   "withdraw <lock>",
	Short: "Release funds from a matured lock",
	Args:  cobra.ExactArgs(1),
	RunE:  runLockWithdraw,
}

var lockSplitCmd = &cobra.Command{
	Use:   "split <lock>",
	Short: "Move part of a lock into a new lock with the same unlock date",
	Args:  cobra.ExactArgs(1),
	RunE:  runLockSplit,
}

var lockCloseCmd = &cobra.Command{
	Use:   "close <lock>",
	Short: "Delete an emptied lock and its vault",
	Args:  cobra.ExactArgs(1),
	RunE:  runLockClose,
}

func addFundingFlags(c *cobra.Command) {
	c.Flags().String("wallet", "", "account the deposit is drawn from")
	c.Flags().String("funding-authority", "", "key controlling the wallet (default: the creator)")
	c.Flags().Uint64("amount", 0, "amount to deposit")
	c.Flags().String("fee", "flat", "fee mode: flat or proportional")
	addSignerFlag(c)
}

func init() {
	addFundingFlags(lockCreateCmd)
	lockCreateCmd.Flags().String("creator", "", "creator of the lock")
	lockCreateCmd.Flags().String("owner", "", "owner of the lock (default: the creator)")
	lockCreateCmd.Flags().String("unlock", "", "unlock date")
	lockCreateCmd.Flags().String("lock", "", "lock address (default: a fresh address)")
	lockCreateCmd.Flags().String("vault", "", "vault address (default: a fresh address)")

	lockRelockCmd.Flags().String("unlock", "", "new unlock date")
	addSignerFlag(lockRelockCmd)

	lockTransferCmd.Flags().Bool("yes", false, "do not ask for confirmation")
	addSignerFlag(lockTransferCmd)

	addFundingFlags(lockIncrementCmd)

	lockWithdrawCmd.Flags().String("target", "", "account receiving the funds")
	lockWithdrawCmd.Flags().Uint64("amount", 0, "amount to withdraw (default: everything)")
	lockWithdrawCmd.Flags().Bool("wait", false, "retry until the lock matures")
	lockWithdrawCmd.Flags().Duration("timeout", 0, "give up waiting after this long (default: never)")
	lockWithdrawCmd.Flags().Bool("yes", false, "do not ask for confirmation")
	addSignerFlag(lockWithdrawCmd)

	lockSplitCmd.Flags().Uint64("amount", 0, "amount moved into the new lock")
	lockSplitCmd.Flags().String("new-owner", "", "owner of the new lock (default: the current owner)")
	lockSplitCmd.Flags().String("new-lock", "", "new lock address (default: a fresh address)")
	lockSplitCmd.Flags().String("new-vault", "", "new vault address (default: a fresh address)")
	addSignerFlag(lockSplitCmd)

	lockCloseCmd.Flags().Bool("yes", false, "do not ask for confirmation")
	addSignerFlag(lockCloseCmd)

	lockCmd.AddCommand(lockCreateCmd, lockRelockCmd, lockTransferCmd, lockIncrementCmd,
		lockWithdrawCmd, lockSplitCmd, lockCloseCmd, lockShowCmd, lockListCmd)
}

// fundingFlags reads the deposit flags; defaultAuthority fills an unset
// --funding-authority.
func fundingFlags(c *cobra.Command, defaultAuthority solana.PublicKey) (locker.Funding, uint64, fee.Kind, error) {
	var f locker.Funding
	wallet, err := requiredKeyFlag(c, "wallet")
	if err != nil {
		return f, 0, 0, err
	}
	f.Wallet = wallet
	f.Authority = defaultAuthority
	if c.Flags().Changed("funding-authority") {
		if f.Authority, err = requiredKeyFlag(c, "funding-authority"); err != nil {
			return f, 0, 0, err
		}
	}
	if f.Authority.IsZero() {
		return f, 0, 0, errors.New("--funding-authority is required")
	}
	amount, _ := c.Flags().GetUint64("amount")
	mode, _ := c.Flags().GetString("fee")
	kind, err := fee.ParseKind(mode)
	if err != nil {
		return f, 0, 0, err
	}
	return f, amount, kind, nil
}

func runLockCreate(c *cobra.Command, _ []string) error {
	creator, err := requiredKeyFlag(c, "creator")
	if err != nil {
		return err
	}
	owner := creator
	if c.Flags().Changed("owner") {
		if owner, err = requiredKeyFlag(c, "owner"); err != nil {
			return err
		}
	}
	funding, amount, kind, err := fundingFlags(c, creator)
	if err != nil {
		return err
	}
	unlock, _ := c.Flags().GetString("unlock")
	if unlock == "" {
		return errors.New("--unlock is required")
	}
	unlockDate, err := parseUnlockDate(unlock, time.Now())
	if err != nil {
		return err
	}
	lockAddr, err := keyFlag(c, "lock")
	if err != nil {
		return err
	}
	vault, err := keyFlag(c, "vault")
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

	lock, err := s.engine.CreateLock(c.Context(), signers, locker.CreateArgs{
		Lock:       lockAddr,
		Vault:      vault,
		Creator:    creator,
		Owner:      owner,
		Funding:    funding,
		Amount:     amount,
		UnlockDate: unlockDate,
		FeeKind:    kind,
	})
	if err != nil {
		return err
	}
	fmt.Printf("✓ Created lock %s\n", lockAddr)
	printLock(lock)
	return nil
}

func runLockRelock(c *cobra.Command, args []string) error {
	addr, err := parseKey("lock", args[0])
	if err != nil {
		return err
	}
	unlock, _ := c.Flags().GetString("unlock")
	if unlock == "" {
		return errors.New("--unlock is required")
	}
	unlockDate, err := parseUnlockDate(unlock, time.Now())
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

	lock, err := s.engine.Relock(c.Context(), addr, signers, unlockDate)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Relocked %s until %s\n", addr, formatUnix(lock.CurrentUnlockDate))
	return nil
}

func runLockTransfer(c *cobra.Command, args []string) error {
	addr, err := parseKey("lock", args[0])
	if err != nil {
		return err
	}
	newOwner, err := parseKey("new owner", args[1])
	if err != nil {
		return err
	}
	signers, err := getSigners(c)
	if err != nil {
		return err
	}
	yes, _ := c.Flags().GetBool("yes")
	ok, err := confirm(fmt.Sprintf("Transfer lock %s to %s?", addr, newOwner), yes)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Cancelled")
		return nil
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.engine.TransferOwnership(c.Context(), addr, signers, newOwner); err != nil {
		return err
	}
	fmt.Printf("✓ Lock %s now owned by %s\n", addr, newOwner)
	return nil
}

func runLockIncrement(c *cobra.Command, args []string) error {
	addr, err := parseKey("lock", args[0])
	if err != nil {
		return err
	}
	funding, amount, kind, err := fundingFlags(c, solana.PublicKey{})
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

	lock, err := s.engine.Increment(c.Context(), addr, signers, funding, amount, kind)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Added %d to %s (deposited: %d)\n", amount, addr, lock.DepositedAmount)
	return nil
}

func runLockWithdraw(c *cobra.Command, args []string) error {
	addr, err := parseKey("lock", args[0])
	if err != nil {
		return err
	}
	target, err := requiredKeyFlag(c, "target")
	if err != nil {
		return err
	}
	amount, _ := c.Flags().GetUint64("amount")
	wait, _ := c.Flags().GetBool("wait")
	timeout, _ := c.Flags().GetDuration("timeout")
	yes, _ := c.Flags().GetBool("yes")
	signers, err := getSigners(c)
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := c.Context()
	current, err := s.engine.Lock(ctx, addr)
	if err != nil {
		return err
	}
	if amount == 0 {
		amount = current.DepositedAmount
	}
	ok, err := confirm(fmt.Sprintf("Withdraw %d from %s to %s?", amount, addr, target), yes)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Cancelled")
		return nil
	}

	withdraw := func() (*locker.Lock, error) {
		return s.engine.Withdraw(ctx, addr, signers, target, amount)
	}
	var lock *locker.Lock
	if wait {
		fmt.Printf("Waiting for %s (unlocks %s)\n", addr, formatUnix(current.CurrentUnlockDate))
		lock, err = withdrawWhenUnlocked(ctx, s.logger, timeout, withdraw)
	} else {
		lock, err = withdraw()
	}
	if err != nil {
		return err
	}
	fmt.Printf("✓ Withdrew %d from %s (remaining: %d)\n", amount, addr, lock.DepositedAmount)
	return nil
}

// withdrawWhenUnlocked retries withdraw with exponential backoff while the
// lock has not matured. Any other failure ends the wait.
func withdrawWhenUnlocked(ctx context.Context, logger *zap.Logger, timeout time.Duration, withdraw func() (*locker.Lock, error)) (*locker.Lock, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = timeout

	var lock *locker.Lock
	op := func() error {
		l, err := withdraw()
		if errors.Is(err, locker.ErrTooEarlyToWithdraw) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		lock = l
		return nil
	}
	notify := func(err error, next time.Duration) {
		logger.Info("lock not matured, retrying", zap.Duration("in", next), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil {
		return nil, err
	}
	return lock, nil
}

func runLockSplit(c *cobra.Command, args []string) error {
	addr, err := parseKey("lock", args[0])
	if err != nil {
		return err
	}
	amount, _ := c.Flags().GetUint64("amount")
	newLock, err := keyFlag(c, "new-lock")
	if err != nil {
		return err
	}
	newVault, err := keyFlag(c, "new-vault")
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

	var newOwner solana.PublicKey
	if c.Flags().Changed("new-owner") {
		if newOwner, err = requiredKeyFlag(c, "new-owner"); err != nil {
			return err
		}
	} else {
		current, err := s.engine.Lock(c.Context(), addr)
		if err != nil {
			return err
		}
		newOwner = current.Owner
	}

	source, split, err := s.engine.Split(c.Context(), addr, signers, locker.SplitArgs{
		NewLock:  newLock,
		NewVault: newVault,
		NewOwner: newOwner,
		Amount:   amount,
	})
	if err != nil {
		return err
	}
	fmt.Printf("✓ Split %d from %s into %s\n", amount, addr, newLock)
	fmt.Printf("  %s: %d\n", addr, source.DepositedAmount)
	fmt.Printf("  %s: %d\n", newLock, split.DepositedAmount)
	return nil
}

func runLockClose(c *cobra.Command, args []string) error {
	addr, err := parseKey("lock", args[0])
	if err != nil {
		return err
	}
	signers, err := getSigners(c)
	if err != nil {
		return err
	}
	yes, _ := c.Flags().GetBool("yes")
	ok, err := confirm(fmt.Sprintf("Close lock %s?", addr), yes)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Cancelled")
		return nil
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.engine.Close(c.Context(), addr, signers); err != nil {
		return err
	}
	fmt.Printf("✓ Closed %s\n", addr)
	return nil
}
