package cmd

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/illarion/tokenlock/internal/locker"
)

var lockShowCmd = &cobra.Command{
	Use:   "show <lock>",
	Short: "Show a lock and its vault balance",
	Args:  cobra.ExactArgs(1),
	RunE:  runLockShow,
}

var lockListCmd = &cobra.Command{
	Use:   "list",
	Short: "List locks",
	Args:  cobra.NoArgs,
	RunE:  runLockList,
}

func init() {
	lockListCmd.Flags().String("owner", "", "only list locks owned by this address")
}

func runLockShow(c *cobra.Command, args []string) error {
	addr, err := parseKey("lock", args[0])
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	lock, err := s.engine.Lock(c.Context(), addr)
	if err != nil {
		return err
	}
	balance, err := s.engine.VaultBalance(c.Context(), addr)
	if err != nil {
		return err
	}
	fmt.Printf("Lock %s\n", addr)
	printLock(lock)
	fmt.Printf("  Vault balance:  %d\n", balance)
	return nil
}

// runLockList shows every lock, or those of one owner
func runLockList(c *cobra.Command, _ []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	var locks []locker.LockAccount
	if c.Flags().Changed("owner") {
		var owner solana.PublicKey
		if owner, err = requiredKeyFlag(c, "owner"); err != nil {
			return err
		}
		locks, err = s.engine.LocksOwnedBy(c.Context(), owner)
	} else {
		locks, err = s.engine.Locks(c.Context())
	}
	if err != nil {
		return err
	}

	if len(locks) == 0 {
		fmt.Println("No locks")
		return nil
	}

	now := time.Now().Unix()
	fmt.Println("Locks:")
	for _, la := range locks {
		state := "locked"
		if la.Lock.Unlocked(now) {
			state = "unlocked"
		}
		fmt.Printf("  %s %d (%s until %s)\n", la.Address, la.Lock.DepositedAmount, state, formatUnix(la.Lock.CurrentUnlockDate))
	}
	return nil
}

func printLock(l *locker.Lock) {
	fmt.Printf("  Owner:          %s\n", l.Owner)
	fmt.Printf("  Creator:        %s\n", l.Creator)
	fmt.Printf("  Vault:          %s\n", l.Vault)
	fmt.Printf("  Deposited:      %d\n", l.DepositedAmount)
	fmt.Printf("  Unlocks:        %s\n", formatUnix(l.CurrentUnlockDate))
	if l.Extended() {
		fmt.Printf("  Originally:     %s\n", formatUnix(l.OriginalUnlockDate))
	}
}
