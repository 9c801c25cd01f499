package locker

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/illarion/tokenlock/internal/ledger"
)

// Lock returns the lock stored at addr.
func (e *Engine) Lock(ctx context.Context, addr solana.PublicKey) (*Lock, error) {
	var lock *Lock
	err := e.ledger.View(ctx, func(tx *ledger.Tx) error {
		l, err := e.loadLock(tx, addr)
		lock = l
		return err
	})
	return lock, err
}

// Locks returns every lock in address order.
func (e *Engine) Locks(ctx context.Context) ([]LockAccount, error) {
	return e.scanLocks(ctx, nil)
}

// LocksOwnedBy returns the locks currently owned by owner.
func (e *Engine) LocksOwnedBy(ctx context.Context, owner solana.PublicKey) ([]LockAccount, error) {
	return e.scanLocks(ctx, []ledger.Memcmp{{Offset: ownerOffset, Bytes: owner[:]}})
}

func (e *Engine) scanLocks(ctx context.Context, filters []ledger.Memcmp) ([]LockAccount, error) {
	var locks []LockAccount
	err := e.ledger.View(ctx, func(tx *ledger.Tx) error {
		return tx.ScanRecords(lockDiscriminator, filters, func(addr solana.PublicKey, data []byte) error {
			var l Lock
			if err := ledger.DecodeRecord(data, lockDiscriminator, &l); err != nil {
				return err
			}
			locks = append(locks, LockAccount{Address: addr, Lock: l})
			return nil
		})
	})
	return locks, err
}

// VaultBalance returns the balance actually held by the vault of addr.
func (e *Engine) VaultBalance(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	var balance uint64
	err := e.ledger.View(ctx, func(tx *ledger.Tx) error {
		l, err := e.loadLock(tx, addr)
		if err != nil {
			return err
		}
		balance, err = tx.Balance(l.Vault)
		return err
	})
	return balance, err
}
