package locker

import (
	"github.com/gagliardetto/solana-go"

	"github.com/illarion/tokenlock/internal/fee"
	"github.com/illarion/tokenlock/internal/ledger"
)

var (
	lockDiscriminator      = ledger.NewDiscriminator("Lock")
	configDiscriminator    = ledger.NewDiscriminator("Config")
	assetInfoDiscriminator = ledger.NewDiscriminator("AssetInfo")
)

// configSeed is the derivation seed of the Config singleton.
var configSeed = []byte("config")

// ownerOffset is where Lock.Owner starts in stored record data.
const ownerOffset = ledger.DiscriminatorSize

// Lock is one escrow. Field order is the stored layout; Owner must stay first.
type Lock struct {
	Owner              solana.PublicKey
	CurrentUnlockDate  int64
	DepositedAmount    uint64
	Vault              solana.PublicKey
	VaultBump          uint8
	Creator            solana.PublicKey
	OriginalUnlockDate int64
}

// Extended reports whether the lock was relocked past its original date.
func (l *Lock) Extended() bool {
	return l.CurrentUnlockDate != l.OriginalUnlockDate
}

// Unlocked reports whether withdrawals are allowed at now.
func (l *Lock) Unlocked(now int64) bool {
	return now >= l.CurrentUnlockDate
}

// LockAccount pairs a lock with its address.
type LockAccount struct {
	Address solana.PublicKey
	Lock    Lock
}

// Config holds the global fee settings.
type Config struct {
	Admin           solana.PublicKey
	FeeDestination  solana.PublicKey
	FeeInLedgerUnit uint64
	FeeNumerator    uint64
	FeeDenominator  uint64
	// Borsh does not seem to support booleans, so 0=false / 1=true
	AssetAllowlistEnforced uint8
	Bump                   uint8
}

// Schedule returns the fee schedule deposits are charged against.
func (c *Config) Schedule() fee.Schedule {
	return fee.Schedule{
		Flat:        c.FeeInLedgerUnit,
		Numerator:   c.FeeNumerator,
		Denominator: c.FeeDenominator,
	}
}

// AllowlistEnforced reports whether proportional deposits register assets.
func (c *Config) AllowlistEnforced() bool {
	return c.AssetAllowlistEnforced != 0
}

// AssetInfo records that an asset has been seen, and whether its one-time
// registration fee has been paid.
type AssetInfo struct {
	Asset solana.PublicKey
	// 0=false / 1=true
	FeeSettled uint8
	Bump       uint8
}

// Settled reports whether the registration fee is paid.
func (a *AssetInfo) Settled() bool {
	return a.FeeSettled != 0
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
