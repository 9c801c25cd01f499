package locker

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/illarion/tokenlock/internal/fee"
	"github.com/illarion/tokenlock/internal/ledger"
)

// ConfigArgs are the settings of a new Config.
type ConfigArgs struct {
	FeeDestination         solana.PublicKey
	FeeInLedgerUnit        uint64
	FeeNumerator           uint64
	FeeDenominator         uint64
	AssetAllowlistEnforced bool
}

// ConfigUpdate changes the fields that are set and leaves the rest.
type ConfigUpdate struct {
	Admin                  *solana.PublicKey
	FeeDestination         *solana.PublicKey
	FeeInLedgerUnit        *uint64
	FeeNumerator           *uint64
	FeeDenominator         *uint64
	AssetAllowlistEnforced *bool
}

func validateSchedule(s fee.Schedule) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFeeRate, err)
	}
	return nil
}

// InitConfig creates the Config singleton with admin as its administrator.
// It succeeds at most once per ledger.
func (e *Engine) InitConfig(ctx context.Context, admin solana.PublicKey, signers ledger.Authorizer, args ConfigArgs) (*Config, error) {
	var cfg *Config
	err := e.transition(ctx, "init_config", func(tx *ledger.Tx, _ int64) error {
		if err := requireSigners(signers, admin); err != nil {
			return err
		}
		addr, bump, err := e.ConfigAddress()
		if err != nil {
			return err
		}
		if tx.HasRecord(addr) {
			return ErrConfigAlreadyInitialized
		}
		c := &Config{
			Admin:                  admin,
			FeeDestination:         args.FeeDestination,
			FeeInLedgerUnit:        args.FeeInLedgerUnit,
			FeeNumerator:           args.FeeNumerator,
			FeeDenominator:         args.FeeDenominator,
			AssetAllowlistEnforced: boolByte(args.AssetAllowlistEnforced),
			Bump:                   bump,
		}
		if err := validateSchedule(c.Schedule()); err != nil {
			return err
		}
		if err := tx.CreateRecord(addr, configDiscriminator, c); err != nil {
			return err
		}
		cfg = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("config initialized",
		zap.Stringer("admin", cfg.Admin),
		zap.Stringer("fee_destination", cfg.FeeDestination),
		zap.Uint64("fee_flat", cfg.FeeInLedgerUnit),
		zap.Uint64("fee_numerator", cfg.FeeNumerator),
		zap.Uint64("fee_denominator", cfg.FeeDenominator),
		zap.Bool("allowlist", cfg.AllowlistEnforced()))
	return cfg, nil
}

// UpdateConfig applies upd. The current admin must sign.
func (e *Engine) UpdateConfig(ctx context.Context, signers ledger.Authorizer, upd ConfigUpdate) (*Config, error) {
	var cfg *Config
	err := e.transition(ctx, "update_config", func(tx *ledger.Tx, _ int64) error {
		c, err := e.loadConfig(tx)
		if err != nil {
			return err
		}
		if err := requireSigners(signers, c.Admin); err != nil {
			return err
		}
		if upd.Admin != nil {
			c.Admin = *upd.Admin
		}
		if upd.FeeDestination != nil {
			c.FeeDestination = *upd.FeeDestination
		}
		if upd.FeeInLedgerUnit != nil {
			c.FeeInLedgerUnit = *upd.FeeInLedgerUnit
		}
		if upd.FeeNumerator != nil {
			c.FeeNumerator = *upd.FeeNumerator
		}
		if upd.FeeDenominator != nil {
			c.FeeDenominator = *upd.FeeDenominator
		}
		if upd.AssetAllowlistEnforced != nil {
			c.AssetAllowlistEnforced = boolByte(*upd.AssetAllowlistEnforced)
		}
		if err := validateSchedule(c.Schedule()); err != nil {
			return err
		}
		addr, _, err := e.ConfigAddress()
		if err != nil {
			return err
		}
		if err := tx.PutRecord(addr, configDiscriminator, c); err != nil {
			return err
		}
		cfg = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("config updated", zap.Stringer("admin", cfg.Admin))
	return cfg, nil
}

// Config returns the current Config.
func (e *Engine) Config(ctx context.Context) (*Config, error) {
	var cfg *Config
	err := e.ledger.View(ctx, func(tx *ledger.Tx) error {
		c, err := e.loadConfig(tx)
		cfg = c
		return err
	})
	return cfg, err
}

// IsConfigured reports whether InitConfig has run.
func (e *Engine) IsConfigured(ctx context.Context) (bool, error) {
	_, err := e.Config(ctx)
	if errors.Is(err, ErrConfigNotInitialized) {
		return false, nil
	}
	return err == nil, err
}
