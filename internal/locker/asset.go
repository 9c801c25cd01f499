package locker

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/illarion/tokenlock/internal/ledger"
)

// ensureAssetInfo returns the AssetInfo of asset, creating it if missing.
func (e *Engine) ensureAssetInfo(tx *ledger.Tx, asset solana.PublicKey) (*AssetInfo, solana.PublicKey, error) {
	addr, bump, err := e.AssetInfoAddress(asset)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	info := &AssetInfo{}
	err = tx.GetRecord(addr, assetInfoDiscriminator, info)
	if err == nil {
		return info, addr, nil
	}
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, solana.PublicKey{}, err
	}
	if _, err := tx.Mint(asset); err != nil {
		return nil, solana.PublicKey{}, err
	}
	info = &AssetInfo{Asset: asset, Bump: bump}
	if err := tx.CreateRecord(addr, assetInfoDiscriminator, info); err != nil {
		return nil, solana.PublicKey{}, err
	}
	return info, addr, nil
}

// RegisterAsset creates the AssetInfo of asset if it does not exist yet.
// Registering an asset twice is a no-op.
func (e *Engine) RegisterAsset(ctx context.Context, payer solana.PublicKey, signers ledger.Authorizer, asset solana.PublicKey) (*AssetInfo, error) {
	var info *AssetInfo
	err := e.transition(ctx, "register_asset", func(tx *ledger.Tx, _ int64) error {
		if err := requireSigners(signers, payer); err != nil {
			return err
		}
		if _, err := e.loadConfig(tx); err != nil {
			return err
		}
		i, _, err := e.ensureAssetInfo(tx, asset)
		info = i
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("asset registered", zap.Stringer("asset", asset), zap.Bool("fee_settled", info.Settled()))
	return info, nil
}

// SettleAssetFee pays the one-time registration fee of asset from payer's
// native balance. Paying for a settled asset is a no-op.
func (e *Engine) SettleAssetFee(ctx context.Context, payer solana.PublicKey, signers ledger.Authorizer, asset solana.PublicKey) (*AssetInfo, error) {
	var (
		info *AssetInfo
		paid uint64
	)
	err := e.transition(ctx, "settle_asset_fee", func(tx *ledger.Tx, _ int64) error {
		if err := requireSigners(signers, payer); err != nil {
			return err
		}
		cfg, err := e.loadConfig(tx)
		if err != nil {
			return err
		}
		i, addr, err := e.ensureAssetInfo(tx, asset)
		if err != nil {
			return err
		}
		info = i
		if i.Settled() {
			return nil
		}
		before := tx.NativeBalance(cfg.FeeDestination)
		if err := tx.TransferNative(payer, cfg.FeeDestination, signers, cfg.FeeInLedgerUnit); err != nil {
			return err
		}
		if !payer.Equals(cfg.FeeDestination) && tx.NativeBalance(cfg.FeeDestination)-before != cfg.FeeInLedgerUnit {
			return ErrInvalidAmountTransferred
		}
		paid = cfg.FeeInLedgerUnit
		i.FeeSettled = 1
		return tx.PutRecord(addr, assetInfoDiscriminator, i)
	})
	if err != nil {
		return nil, err
	}
	if paid > 0 {
		feesCollectedTotal.WithLabelValues("registration").Add(float64(paid))
	}
	e.logger.Info("asset fee settled", zap.Stringer("asset", asset), zap.Stringer("payer", payer), zap.Uint64("paid", paid))
	return info, nil
}

// SetAssetFeeSettled lets the admin mark asset as settled or unsettled
// without payment.
func (e *Engine) SetAssetFeeSettled(ctx context.Context, signers ledger.Authorizer, asset solana.PublicKey, settled bool) (*AssetInfo, error) {
	var info *AssetInfo
	err := e.transition(ctx, "set_asset_fee_settled", func(tx *ledger.Tx, _ int64) error {
		cfg, err := e.loadConfig(tx)
		if err != nil {
			return err
		}
		if !signers.Allows(cfg.Admin) {
			return ErrInitAssetInfoNotAuthorized
		}
		i, addr, err := e.ensureAssetInfo(tx, asset)
		if err != nil {
			return err
		}
		i.FeeSettled = boolByte(settled)
		info = i
		return tx.PutRecord(addr, assetInfoDiscriminator, i)
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("asset fee override", zap.Stringer("asset", asset), zap.Bool("fee_settled", settled))
	return info, nil
}

// AssetInfo returns the AssetInfo of asset.
func (e *Engine) AssetInfo(ctx context.Context, asset solana.PublicKey) (*AssetInfo, error) {
	addr, _, err := e.AssetInfoAddress(asset)
	if err != nil {
		return nil, err
	}
	info := &AssetInfo{}
	err = e.ledger.View(ctx, func(tx *ledger.Tx) error {
		return tx.GetRecord(addr, assetInfoDiscriminator, info)
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}
