package locker

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/illarion/tokenlock/internal/fee"
	"github.com/illarion/tokenlock/internal/ledger"
)

// Funding names the account a deposit is drawn from and the key that
// controls it. The flat fee is paid from Authority's native balance.
type Funding struct {
	Wallet    solana.PublicKey
	Authority solana.PublicKey
}

// charge is what a committed deposit collected.
type charge struct {
	kind   fee.Kind
	amount uint64
}

func (c charge) record() {
	if c.amount > 0 {
		feesCollectedTotal.WithLabelValues(c.kind.String()).Add(float64(c.amount))
	}
}

// resolveFee returns the fee owed on amount under kind. It may create the
// AssetInfo of asset.
func (e *Engine) resolveFee(tx *ledger.Tx, cfg *Config, asset solana.PublicKey, amount uint64, kind fee.Kind) (uint64, error) {
	mode, err := cfg.Schedule().Mode(kind)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidFeeRate, err)
	}
	if kind == fee.KindProportional && cfg.AllowlistEnforced() {
		info, _, err := e.ensureAssetInfo(tx, asset)
		if err != nil {
			return 0, err
		}
		if info.Settled() {
			return 0, nil
		}
	}
	owed, err := fee.Compute(amount, mode)
	switch {
	case errors.Is(err, fee.ErrOverflow):
		return 0, ErrIntegerOverflow
	case err != nil:
		return 0, fmt.Errorf("%w: %v", ErrInvalidFeeRate, err)
	}
	return owed, nil
}

// deposit moves exactly amount from the funding wallet into vault and the
// fee to the configured destination. All arithmetic is checked before any
// value moves.
func (e *Engine) deposit(tx *ledger.Tx, cfg *Config, signers ledger.Authorizer, f Funding, vault solana.PublicKey, amount uint64, kind fee.Kind) (charge, error) {
	src, err := tx.TokenAccount(f.Wallet)
	if err != nil {
		return charge{}, err
	}
	dst, err := tx.TokenAccount(vault)
	if err != nil {
		return charge{}, err
	}
	if !src.Mint.Equals(dst.Mint) {
		return charge{}, fmt.Errorf("%w: funding %s, vault %s", ErrMintMismatch, src.Mint, dst.Mint)
	}
	if !src.Authority.Equals(f.Authority) {
		return charge{}, fmt.Errorf("%w: %s does not control %s", ErrUnauthorized, f.Authority, f.Wallet)
	}

	owed, err := e.resolveFee(tx, cfg, src.Mint, amount, kind)
	if err != nil {
		return charge{}, err
	}
	if kind == fee.KindProportional {
		if _, err := fee.Total(amount, owed); err != nil {
			return charge{}, ErrIntegerOverflow
		}
	}

	if err := e.transferExact(tx, f.Wallet, vault, signers, amount); err != nil {
		return charge{}, err
	}

	if owed > 0 {
		switch kind {
		case fee.KindProportional:
			feeWallet, err := tx.GetOrCreateAssociatedTokenAccount(cfg.FeeDestination, src.Mint)
			if err != nil {
				return charge{}, err
			}
			if feeWallet.Equals(f.Wallet) {
				// the fee destination funds its own deposit; the fee stays put
				if err := tx.Transfer(f.Wallet, feeWallet, signers, owed); err != nil {
					return charge{}, err
				}
				break
			}
			if err := e.transferExact(tx, f.Wallet, feeWallet, signers, owed); err != nil {
				return charge{}, err
			}
		case fee.KindFlat:
			before := tx.NativeBalance(cfg.FeeDestination)
			if err := tx.TransferNative(f.Authority, cfg.FeeDestination, signers, owed); err != nil {
				return charge{}, err
			}
			if !f.Authority.Equals(cfg.FeeDestination) && tx.NativeBalance(cfg.FeeDestination)-before != owed {
				return charge{}, ErrInvalidAmountTransferred
			}
		}
	}
	return charge{kind: kind, amount: owed}, nil
}

// transferExact moves amount from src to dst and rejects the transfer unless
// src lost and dst gained exactly amount.
func (e *Engine) transferExact(tx *ledger.Tx, src, dst solana.PublicKey, auth ledger.Authorizer, amount uint64) error {
	srcBefore, err := tx.Balance(src)
	if err != nil {
		return err
	}
	dstBefore, err := tx.Balance(dst)
	if err != nil {
		return err
	}
	if err := tx.Transfer(src, dst, auth, amount); err != nil {
		return err
	}
	srcAfter, err := tx.Balance(src)
	if err != nil {
		return err
	}
	dstAfter, err := tx.Balance(dst)
	if err != nil {
		return err
	}
	if srcBefore-srcAfter != amount || dstAfter-dstBefore != amount {
		return fmt.Errorf("%w: %s -> %s expected %d, received %d",
			ErrInvalidAmountTransferred, src, dst, amount, dstAfter-dstBefore)
	}
	return nil
}
