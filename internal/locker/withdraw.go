package locker

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/illarion/tokenlock/internal/authority"
	"github.com/illarion/tokenlock/internal/ledger"
)

// Withdraw releases amount from the vault of addr to target once the lock
// has matured. The vault stays open even when emptied.
func (e *Engine) Withdraw(ctx context.Context, addr solana.PublicKey, signers ledger.Authorizer, target solana.PublicKey, amount uint64) (*Lock, error) {
	var lock *Lock
	err := e.transition(ctx, "withdraw", func(tx *ledger.Tx, now int64) error {
		l, err := e.loadLock(tx, addr)
		if err != nil {
			return err
		}
		if err := requireSigners(signers, l.Owner); err != nil {
			return err
		}
		if !l.Unlocked(now) {
			return fmt.Errorf("%w: unlocks at %d, now %d", ErrTooEarlyToWithdraw, l.CurrentUnlockDate, now)
		}
		if amount == 0 || amount > l.DepositedAmount {
			return fmt.Errorf("%w: %d of %d", ErrInvalidAmount, amount, l.DepositedAmount)
		}
		c, _, err := e.vaultCapability(tx, addr, l)
		if err != nil {
			return err
		}
		if err := e.transferExact(tx, l.Vault, target, c, amount); err != nil {
			return err
		}
		l.DepositedAmount -= amount
		if err := tx.PutRecord(addr, lockDiscriminator, l); err != nil {
			return err
		}
		lock = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("lock withdrawn",
		zap.Stringer("lock", addr),
		zap.Stringer("target", target),
		zap.Uint64("amount", amount),
		zap.Uint64("remaining", lock.DepositedAmount))
	return lock, nil
}

// Close deletes an emptied lock together with its vault.
func (e *Engine) Close(ctx context.Context, addr solana.PublicKey, signers ledger.Authorizer) error {
	err := e.transition(ctx, "close", func(tx *ledger.Tx, _ int64) error {
		l, err := e.loadLock(tx, addr)
		if err != nil {
			return err
		}
		if err := requireSigners(signers, l.Owner); err != nil {
			return err
		}
		if l.DepositedAmount != 0 {
			return fmt.Errorf("%w: %d deposited", ErrVaultNotEmpty, l.DepositedAmount)
		}
		c, _, err := e.vaultCapability(tx, addr, l)
		if err != nil {
			return err
		}
		if err := tx.CloseTokenAccount(l.Vault, c); err != nil {
			if errors.Is(err, ledger.ErrAccountNotEmpty) {
				return fmt.Errorf("%w: %v", ErrVaultNotEmpty, err)
			}
			return err
		}
		return tx.DeleteRecord(addr)
	})
	if err != nil {
		return err
	}
	e.logger.Info("lock closed", zap.Stringer("lock", addr))
	return nil
}

// SplitArgs describe the lock carved out of an existing one.
type SplitArgs struct {
	NewLock  solana.PublicKey
	NewVault solana.PublicKey
	NewOwner solana.PublicKey
	Amount   uint64
}

// Split moves args.Amount out of addr into a new lock with the same unlock
// dates. The splitting owner becomes the creator of the new lock.
func (e *Engine) Split(ctx context.Context, addr solana.PublicKey, signers ledger.Authorizer, args SplitArgs) (*Lock, *Lock, error) {
	var source, split *Lock
	err := e.transition(ctx, "split", func(tx *ledger.Tx, _ int64) error {
		l, err := e.loadLock(tx, addr)
		if err != nil {
			return err
		}
		if err := requireSigners(signers, l.Owner); err != nil {
			return err
		}
		if args.Amount == 0 || args.Amount > l.DepositedAmount {
			return fmt.Errorf("%w: %d of %d", ErrInvalidAmount, args.Amount, l.DepositedAmount)
		}
		if tx.HasRecord(args.NewLock) {
			return fmt.Errorf("lock %s: %w", args.NewLock, ledger.ErrAccountExists)
		}
		c, vault, err := e.vaultCapability(tx, addr, l)
		if err != nil {
			return err
		}

		nc, err := authority.Find(e.program, args.NewLock)
		if err != nil {
			return err
		}
		if err := tx.CreateTokenAccount(args.NewVault, vault.Mint, nc.Address()); err != nil {
			return err
		}
		if err := e.transferExact(tx, l.Vault, args.NewVault, c, args.Amount); err != nil {
			return err
		}

		n := &Lock{
			Owner:              args.NewOwner,
			CurrentUnlockDate:  l.CurrentUnlockDate,
			DepositedAmount:    args.Amount,
			Vault:              args.NewVault,
			VaultBump:          nc.Bump(),
			Creator:            l.Owner,
			OriginalUnlockDate: l.OriginalUnlockDate,
		}
		if err := tx.CreateRecord(args.NewLock, lockDiscriminator, n); err != nil {
			return err
		}
		l.DepositedAmount -= args.Amount
		if err := tx.PutRecord(addr, lockDiscriminator, l); err != nil {
			return err
		}
		source, split = l, n
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	e.logger.Info("lock split",
		zap.Stringer("lock", addr),
		zap.Stringer("new_lock", args.NewLock),
		zap.Stringer("new_owner", args.NewOwner),
		zap.Uint64("amount", args.Amount),
		zap.Uint64("remaining", source.DepositedAmount))
	return source, split, nil
}
