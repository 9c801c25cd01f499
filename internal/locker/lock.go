package locker

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/illarion/tokenlock/internal/authority"
	"github.com/illarion/tokenlock/internal/fee"
	"github.com/illarion/tokenlock/internal/ledger"
)

// CreateArgs describe a new lock. Lock and Vault are fresh addresses chosen
// by the caller.
type CreateArgs struct {
	Lock       solana.PublicKey
	Vault      solana.PublicKey
	Creator    solana.PublicKey
	Owner      solana.PublicKey
	Funding    Funding
	Amount     uint64
	UnlockDate int64
	FeeKind    fee.Kind
}

// CreateLock escrows args.Amount in a new vault controlled by the lock's
// derived authority. Creator and funding authority must sign.
func (e *Engine) CreateLock(ctx context.Context, signers ledger.Authorizer, args CreateArgs) (*Lock, error) {
	var (
		lock *Lock
		paid charge
	)
	err := e.transition(ctx, "create_lock", func(tx *ledger.Tx, now int64) error {
		if err := requireSigners(signers, args.Creator, args.Funding.Authority); err != nil {
			return err
		}
		if err := checkUnlockDate(args.UnlockDate, now); err != nil {
			return err
		}
		if args.Amount == 0 {
			return ErrNothingToLock
		}
		cfg, err := e.loadConfig(tx)
		if err != nil {
			return err
		}
		if tx.HasRecord(args.Lock) {
			return fmt.Errorf("lock %s: %w", args.Lock, ledger.ErrAccountExists)
		}
		src, err := tx.TokenAccount(args.Funding.Wallet)
		if err != nil {
			return err
		}

		c, err := authority.Find(e.program, args.Lock)
		if err != nil {
			return err
		}
		if err := tx.CreateTokenAccount(args.Vault, src.Mint, c.Address()); err != nil {
			return err
		}
		paid, err = e.deposit(tx, cfg, signers, args.Funding, args.Vault, args.Amount, args.FeeKind)
		if err != nil {
			return err
		}

		l := &Lock{
			Owner:              args.Owner,
			CurrentUnlockDate:  args.UnlockDate,
			DepositedAmount:    args.Amount,
			Vault:              args.Vault,
			VaultBump:          c.Bump(),
			Creator:            args.Creator,
			OriginalUnlockDate: args.UnlockDate,
		}
		if err := tx.CreateRecord(args.Lock, lockDiscriminator, l); err != nil {
			return err
		}
		lock = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	paid.record()
	e.logger.Info("lock created",
		zap.Stringer("lock", args.Lock),
		zap.Stringer("owner", lock.Owner),
		zap.Stringer("vault", lock.Vault),
		zap.Uint64("amount", lock.DepositedAmount),
		zap.Int64("unlock_date", lock.CurrentUnlockDate),
		zap.Stringer("fee_mode", paid.kind),
		zap.Uint64("fee", paid.amount))
	return lock, nil
}

// Relock moves the unlock date of addr to unlockDate, which may not be
// earlier than the current one.
func (e *Engine) Relock(ctx context.Context, addr solana.PublicKey, signers ledger.Authorizer, unlockDate int64) (*Lock, error) {
	var lock *Lock
	err := e.transition(ctx, "relock", func(tx *ledger.Tx, now int64) error {
		l, err := e.loadLock(tx, addr)
		if err != nil {
			return err
		}
		if err := requireSigners(signers, l.Owner); err != nil {
			return err
		}
		if unlockDate < l.CurrentUnlockDate {
			return ErrCannotUnlockToEarlierDate
		}
		if err := checkUnlockDate(unlockDate, now); err != nil {
			return err
		}
		l.CurrentUnlockDate = unlockDate
		if err := tx.PutRecord(addr, lockDiscriminator, l); err != nil {
			return err
		}
		lock = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("lock relocked", zap.Stringer("lock", addr), zap.Int64("unlock_date", unlockDate))
	return lock, nil
}

// TransferOwnership hands addr to newOwner.
func (e *Engine) TransferOwnership(ctx context.Context, addr solana.PublicKey, signers ledger.Authorizer, newOwner solana.PublicKey) (*Lock, error) {
	var (
		lock     *Lock
		previous solana.PublicKey
	)
	err := e.transition(ctx, "transfer_ownership", func(tx *ledger.Tx, _ int64) error {
		l, err := e.loadLock(tx, addr)
		if err != nil {
			return err
		}
		if err := requireSigners(signers, l.Owner); err != nil {
			return err
		}
		previous = l.Owner
		l.Owner = newOwner
		if err := tx.PutRecord(addr, lockDiscriminator, l); err != nil {
			return err
		}
		lock = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("lock ownership transferred",
		zap.Stringer("lock", addr),
		zap.Stringer("from", previous),
		zap.Stringer("to", newOwner))
	return lock, nil
}

// Increment adds amount to the vault of addr. Anyone holding funds of the
// locked asset may top a lock up.
func (e *Engine) Increment(ctx context.Context, addr solana.PublicKey, signers ledger.Authorizer, f Funding, amount uint64, kind fee.Kind) (*Lock, error) {
	var (
		lock *Lock
		paid charge
	)
	err := e.transition(ctx, "increment", func(tx *ledger.Tx, _ int64) error {
		if err := requireSigners(signers, f.Authority); err != nil {
			return err
		}
		if amount == 0 {
			return ErrNothingToLock
		}
		cfg, err := e.loadConfig(tx)
		if err != nil {
			return err
		}
		l, err := e.loadLock(tx, addr)
		if err != nil {
			return err
		}
		total, err := checkedAdd(l.DepositedAmount, amount)
		if err != nil {
			return err
		}
		paid, err = e.deposit(tx, cfg, signers, f, l.Vault, amount, kind)
		if err != nil {
			return err
		}
		l.DepositedAmount = total
		if err := tx.PutRecord(addr, lockDiscriminator, l); err != nil {
			return err
		}
		lock = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	paid.record()
	e.logger.Info("lock incremented",
		zap.Stringer("lock", addr),
		zap.Uint64("amount", amount),
		zap.Uint64("deposited", lock.DepositedAmount),
		zap.Uint64("fee", paid.amount))
	return lock, nil
}
