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

// MaxLockPeriod is the longest allowed distance between now and an unlock
// date, in seconds.
const MaxLockPeriod int64 = 100 * 365 * 24 * 60 * 60

// DefaultProgramID is the program identity vault authorities are derived
// under unless configured otherwise.
var DefaultProgramID = solana.MustPublicKeyFromBase58("He1q6sv6cKGp5Pcns1VDzZ2pruCtWkNwkqjCx9gTfXSM")

// Engine executes lock transitions against a ledger. Each transition is one
// ledger update and either commits completely or not at all.
type Engine struct {
	ledger  *ledger.Ledger
	program solana.PublicKey
	clock   Clock
	logger  *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithProgram overrides DefaultProgramID.
func WithProgram(program solana.PublicKey) Option {
	return func(e *Engine) { e.program = program }
}

// New returns an engine operating on l.
func New(l *ledger.Ledger, opts ...Option) *Engine {
	e := &Engine{
		ledger:  l,
		program: DefaultProgramID,
		clock:   SystemClock{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Program returns the program identity authorities are derived under.
func (e *Engine) Program() solana.PublicKey {
	return e.program
}

// Ledger returns the underlying ledger.
func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

// ConfigAddress returns the derived address of the Config singleton.
func (e *Engine) ConfigAddress() (solana.PublicKey, uint8, error) {
	return authority.FindAddress(e.program, configSeed)
}

// AssetInfoAddress returns the derived address of the AssetInfo for asset.
func (e *Engine) AssetInfoAddress(asset solana.PublicKey) (solana.PublicKey, uint8, error) {
	return authority.FindAddress(e.program, asset[:])
}

// VaultAuthority returns the authority that controls the vault of lockAddr.
func (e *Engine) VaultAuthority(lockAddr solana.PublicKey) (solana.PublicKey, uint8, error) {
	c, err := authority.Find(e.program, lockAddr)
	if err != nil {
		return solana.PublicKey{}, 0, err
	}
	return c.Address(), c.Bump(), nil
}

// transition runs fn in one ledger update with the clock read once, and
// counts the outcome.
func (e *Engine) transition(ctx context.Context, op string, fn func(tx *ledger.Tx, now int64) error) error {
	err := e.ledger.Update(ctx, func(tx *ledger.Tx) error {
		return fn(tx, e.clock.Now())
	})
	transitionsTotal.WithLabelValues(op, resultLabel(err)).Inc()
	if err != nil {
		e.logger.Debug("transition rejected", zap.String("operation", op), zap.Error(err))
	}
	return err
}

func (e *Engine) loadConfig(tx *ledger.Tx) (*Config, error) {
	addr, _, err := e.ConfigAddress()
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := tx.GetRecord(addr, configDiscriminator, cfg); err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return nil, ErrConfigNotInitialized
		}
		return nil, err
	}
	return cfg, nil
}

func (e *Engine) loadLock(tx *ledger.Tx, addr solana.PublicKey) (*Lock, error) {
	l := &Lock{}
	if err := tx.GetRecord(addr, lockDiscriminator, l); err != nil {
		return nil, fmt.Errorf("lock %s: %w", addr, err)
	}
	return l, nil
}

// vaultCapability rebuilds the authority from the stored bump and checks
// that it controls the lock's vault.
func (e *Engine) vaultCapability(tx *ledger.Tx, addr solana.PublicKey, l *Lock) (authority.Capability, *ledger.TokenAccount, error) {
	c, err := authority.Derive(e.program, addr, l.VaultBump)
	if err != nil {
		return authority.Capability{}, nil, fmt.Errorf("%w: %v", ErrInvalidVaultAuthority, err)
	}
	vault, err := tx.TokenAccount(l.Vault)
	if err != nil {
		return authority.Capability{}, nil, err
	}
	if err := c.Verify(vault.Authority); err != nil {
		return authority.Capability{}, nil, fmt.Errorf("%w: %v", ErrInvalidVaultAuthority, err)
	}
	return c, vault, nil
}

// requireSigners checks that every key signed. Derived addresses never count
// as signers, whatever the Authorizer claims.
func requireSigners(signers ledger.Authorizer, keys ...solana.PublicKey) error {
	for _, k := range keys {
		if !ledger.CanSign(k) || !signers.Allows(k) {
			return fmt.Errorf("%w: %s", ErrUnauthorized, k)
		}
	}
	return nil
}

// checkUnlockDate validates a requested unlock date against now.
func checkUnlockDate(unlockDate, now int64) error {
	if unlockDate <= 0 {
		return ErrInvalidTimestamp
	}
	if unlockDate <= now {
		return ErrUnlockInThePast
	}
	if unlockDate-now > MaxLockPeriod {
		return ErrInvalidPeriod
	}
	return nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrIntegerOverflow
	}
	return sum, nil
}
