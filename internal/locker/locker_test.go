package locker

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/tokenlock/internal/authority"
	"github.com/illarion/tokenlock/internal/fee"
	"github.com/illarion/tokenlock/internal/ledger"
)

const start int64 = 1_700_000_000

type fakeClock struct{ now int64 }

func (c *fakeClock) Now() int64 { return c.now }

func newKey() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

func defaultConfig() ConfigArgs {
	return ConfigArgs{
		FeeInLedgerUnit: 100,
		FeeNumerator:    35,
		FeeDenominator:  10000,
	}
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	ledger   *ledger.Ledger
	engine   *Engine
	clock    *fakeClock
	admin    solana.PublicKey
	feeDest  solana.PublicKey
	mint     solana.PublicKey
	mintAuth solana.PublicKey
}

// newBareHarness opens an initialized ledger without a Config.
func newBareHarness(t *testing.T) *harness {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "test.ledger"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	require.NoError(t, l.Initialize())

	h := &harness{
		t:        t,
		ctx:      context.Background(),
		ledger:   l,
		clock:    &fakeClock{now: start},
		admin:    newKey(),
		feeDest:  newKey(),
		mintAuth: newKey(),
	}
	h.engine = New(l, WithClock(h.clock))
	h.mint = h.newMint(0)
	return h
}

func newHarness(t *testing.T, args ConfigArgs) *harness {
	t.Helper()
	h := newBareHarness(t)
	if args.FeeDestination.IsZero() {
		args.FeeDestination = h.feeDest
	}
	h.feeDest = args.FeeDestination
	_, err := h.engine.InitConfig(h.ctx, h.admin, ledger.NewSigners(h.admin), args)
	require.NoError(t, err)
	return h
}

func (h *harness) newMint(feeBps uint16) solana.PublicKey {
	h.t.Helper()
	mint := newKey()
	require.NoError(h.t, h.ledger.Update(h.ctx, func(tx *ledger.Tx) error {
		return tx.CreateMint(mint, h.mintAuth, 6, feeBps)
	}))
	return mint
}

// fundedWallet creates a key holding amount of mint and 1000 native units.
func (h *harness) fundedWallet(mint solana.PublicKey, amount uint64) (solana.PublicKey, solana.PublicKey) {
	h.t.Helper()
	owner := newKey()
	var wallet solana.PublicKey
	require.NoError(h.t, h.ledger.Update(h.ctx, func(tx *ledger.Tx) error {
		var err error
		if wallet, err = tx.GetOrCreateAssociatedTokenAccount(owner, mint); err != nil {
			return err
		}
		if err := tx.MintTo(mint, wallet, ledger.NewSigners(h.mintAuth), amount); err != nil {
			return err
		}
		return tx.Airdrop(owner, 1000)
	}))
	return owner, wallet
}

func (h *harness) createArgs(owner, wallet solana.PublicKey, amount uint64, unlockIn int64, kind fee.Kind) CreateArgs {
	return CreateArgs{
		Lock:       newKey(),
		Vault:      newKey(),
		Creator:    owner,
		Owner:      owner,
		Funding:    Funding{Wallet: wallet, Authority: owner},
		Amount:     amount,
		UnlockDate: h.clock.now + unlockIn,
		FeeKind:    kind,
	}
}

func (h *harness) createLock(owner, wallet solana.PublicKey, amount uint64, unlockIn int64) (solana.PublicKey, *Lock) {
	h.t.Helper()
	args := h.createArgs(owner, wallet, amount, unlockIn, fee.KindFlat)
	lock, err := h.engine.CreateLock(h.ctx, ledger.NewSigners(owner), args)
	require.NoError(h.t, err)
	return args.Lock, lock
}

func (h *harness) balance(addr solana.PublicKey) uint64 {
	h.t.Helper()
	var b uint64
	require.NoError(h.t, h.ledger.View(h.ctx, func(tx *ledger.Tx) error {
		var err error
		b, err = tx.Balance(addr)
		return err
	}))
	return b
}

func (h *harness) native(addr solana.PublicKey) uint64 {
	h.t.Helper()
	var b uint64
	require.NoError(h.t, h.ledger.View(h.ctx, func(tx *ledger.Tx) error {
		b = tx.NativeBalance(addr)
		return nil
	}))
	return b
}

func (h *harness) lock(addr solana.PublicKey) *Lock {
	h.t.Helper()
	l, err := h.engine.Lock(h.ctx, addr)
	require.NoError(h.t, err)
	return l
}

// requireBacked checks that the lock's bookkeeping matches its vault.
func (h *harness) requireBacked(addr solana.PublicKey) {
	h.t.Helper()
	l := h.lock(addr)
	require.Equal(h.t, l.DepositedAmount, h.balance(l.Vault))
}

func TestCreateLock(t *testing.T) {
	h := newHarness(t, defaultConfig())
	owner, wallet := h.fundedWallet(h.mint, 50000)

	args := h.createArgs(owner, wallet, 10000, 3600, fee.KindFlat)
	lock, err := h.engine.CreateLock(h.ctx, ledger.NewSigners(owner), args)
	require.NoError(t, err)

	assert.Equal(t, owner, lock.Owner)
	assert.Equal(t, owner, lock.Creator)
	assert.Equal(t, args.Vault, lock.Vault)
	assert.Equal(t, uint64(10000), lock.DepositedAmount)
	assert.Equal(t, args.UnlockDate, lock.CurrentUnlockDate)
	assert.Equal(t, args.UnlockDate, lock.OriginalUnlockDate)
	assert.False(t, lock.Extended())

	assert.Equal(t, uint64(40000), h.balance(wallet))
	assert.Equal(t, uint64(10000), h.balance(args.Vault))
	assert.Equal(t, uint64(900), h.native(owner))
	assert.Equal(t, uint64(100), h.native(h.feeDest))

	vaultAuth, bump, err := h.engine.VaultAuthority(args.Lock)
	require.NoError(t, err)
	assert.Equal(t, bump, lock.VaultBump)
	require.NoError(t, h.ledger.View(h.ctx, func(tx *ledger.Tx) error {
		acct, err := tx.TokenAccount(args.Vault)
		if err != nil {
			return err
		}
		assert.Equal(t, vaultAuth, acct.Authority)
		assert.Equal(t, h.mint, acct.Mint)
		return nil
	}))

	stored := h.lock(args.Lock)
	assert.Equal(t, *lock, *stored)
}

func TestCreateLockValidation(t *testing.T) {
	h := newHarness(t, defaultConfig())
	owner, wallet := h.fundedWallet(h.mint, 50000)
	signers := ledger.NewSigners(owner)

	tests := []struct {
		name   string
		mutate func(*CreateArgs)
		want   error
	}{
		{"zero timestamp", func(a *CreateArgs) { a.UnlockDate = 0 }, ErrInvalidTimestamp},
		{"negative timestamp", func(a *CreateArgs) { a.UnlockDate = -5 }, ErrInvalidTimestamp},
		{"unlock now", func(a *CreateArgs) { a.UnlockDate = start }, ErrUnlockInThePast},
		{"unlock in the past", func(a *CreateArgs) { a.UnlockDate = start - 1 }, ErrUnlockInThePast},
		{"too long", func(a *CreateArgs) { a.UnlockDate = start + MaxLockPeriod + 1 }, ErrInvalidPeriod},
		{"nothing to lock", func(a *CreateArgs) { a.Amount = 0 }, ErrNothingToLock},
		{"creator did not sign", func(a *CreateArgs) { a.Creator = newKey() }, ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := h.createArgs(owner, wallet, 1000, 60, fee.KindFlat)
			tt.mutate(&args)
			_, err := h.engine.CreateLock(h.ctx, signers, args)
			require.ErrorIs(t, err, tt.want)

			_, err = h.engine.Lock(h.ctx, args.Lock)
			require.ErrorIs(t, err, ledger.ErrAccountNotFound)
		})
	}

	// unlock at exactly the maximum period is accepted
	args := h.createArgs(owner, wallet, 1000, MaxLockPeriod, fee.KindFlat)
	_, err := h.engine.CreateLock(h.ctx, signers, args)
	require.NoError(t, err)
	assert.Equal(t, uint64(49000), h.balance(wallet))
}

func TestCreateLockFundingChecks(t *testing.T) {
	h := newHarness(t, defaultConfig())
	owner, wallet := h.fundedWallet(h.mint, 5000)
	_, otherWallet := h.fundedWallet(h.mint, 5000)

	// the signer does not control the funding wallet
	args := h.createArgs(owner, otherWallet, 1000, 60, fee.KindFlat)
	_, err := h.engine.CreateLock(h.ctx, ledger.NewSigners(owner), args)
	require.ErrorIs(t, err, ErrUnauthorized)

	// insufficient asset balance
	args = h.createArgs(owner, wallet, 6000, 60, fee.KindFlat)
	_, err = h.engine.CreateLock(h.ctx, ledger.NewSigners(owner), args)
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	assert.Equal(t, uint64(5000), h.balance(wallet))
	assert.Equal(t, uint64(1000), h.native(owner))
}

func TestCreateLockRequiresConfig(t *testing.T) {
	h := newBareHarness(t)
	owner, wallet := h.fundedWallet(h.mint, 5000)

	args := h.createArgs(owner, wallet, 1000, 60, fee.KindFlat)
	_, err := h.engine.CreateLock(h.ctx, ledger.NewSigners(owner), args)
	require.ErrorIs(t, err, ErrConfigNotInitialized)
	assert.Equal(t, uint64(5000), h.balance(wallet))
}

func TestCreateLockRejectsReusedAddress(t *testing.T) {
	h := newHarness(t, defaultConfig())
	owner, wallet := h.fundedWallet(h.mint, 50000)
	addr, _ := h.createLock(owner, wallet, 1000, 60)

	args := h.createArgs(owner, wallet, 1000, 60, fee.KindFlat)
	args.Lock = addr
	_, err := h.engine.CreateLock(h.ctx, ledger.NewSigners(owner), args)
	require.ErrorIs(t, err, ledger.ErrAccountExists)
	assert.Equal(t, uint64(49000), h.balance(wallet))
}

// Flat fees are paid in native units; a payer that cannot cover them leaves
// the ledger untouched even though the deposit itself was funded.
func TestFlatFeeInsufficientNativeRollsBack(t *testing.T) {
	h := newHarness(t, ConfigArgs{FeeInLedgerUnit: 5000, FeeNumerator: 1, FeeDenominator: 100})
	owner, wallet := h.fundedWallet(h.mint, 50000)

	args := h.createArgs(owner, wallet, 10000, 60, fee.KindFlat)
	_, err := h.engine.CreateLock(h.ctx, ledger.NewSigners(owner), args)
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	assert.Equal(t, uint64(50000), h.balance(wallet))
	assert.Equal(t, uint64(1000), h.native(owner))
	require.NoError(t, h.ledger.View(h.ctx, func(tx *ledger.Tx) error {
		_, err := tx.TokenAccount(args.Vault)
		require.ErrorIs(t, err, ledger.ErrAccountNotFound)
		return nil
	}))
}

func TestProportionalFee(t *testing.T) {
	h := newHarness(t, defaultConfig())
	owner, wallet := h.fundedWallet(h.mint, 50000)

	args := h.createArgs(owner, wallet, 10000, 60, fee.KindProportional)
	lock, err := h.engine.CreateLock(h.ctx, ledger.NewSigners(owner), args)
	require.NoError(t, err)

	// 10000 * 35 / 10000 = 35 on top of the deposit
	assert.Equal(t, uint64(10000), lock.DepositedAmount)
	assert.Equal(t, uint64(10000), h.balance(args.Vault))
	assert.Equal(t, uint64(50000-10035), h.balance(wallet))
	assert.Equal(t, uint64(1000), h.native(owner))

	feeWallet, err := ledger.AssociatedTokenAddress(h.feeDest, h.mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(35), h.balance(feeWallet))

	// a fee that rounds down to zero moves nothing
	args = h.createArgs(owner, wallet, 285, 60, fee.KindProportional)
	_, err = h.engine.CreateLock(h.ctx, ledger.NewSigners(owner), args)
	require.NoError(t, err)
	assert.Equal(t, uint64(35), h.balance(feeWallet))
	assert.Equal(t, uint64(50000-10035-285), h.balance(wallet))
}

func TestProportionalFeePaidByFeeDestination(t *testing.T) {
	h := newHarness(t, defaultConfig())
	var wallet solana.PublicKey
	require.NoError(t, h.ledger.Update(h.ctx, func(tx *ledger.Tx) error {
		var err error
		if wallet, err = tx.GetOrCreateAssociatedTokenAccount(h.feeDest, h.mint); err != nil {
			return err
		}
		return tx.MintTo(h.mint, wallet, ledger.NewSigners(h.mintAuth), 10035)
	}))

	args := h.createArgs(h.feeDest, wallet, 10000, 60, fee.KindProportional)
	lock, err := h.engine.CreateLock(h.ctx, ledger.NewSigners(h.feeDest), args)
	require.NoError(t, err)
	assert.Equal(t, uint64(10000), lock.DepositedAmount)
	assert.Equal(t, uint64(10000), h.balance(args.Vault))
	assert.Equal(t, uint64(35), h.balance(wallet))

	// the fee is still charged on top of the deposit
	_, err = h.engine.Increment(h.ctx, args.Lock, ledger.NewSigners(h.feeDest), args.Funding, 35, fee.KindProportional)
	require.NoError(t, err)
	_, err = h.engine.Increment(h.ctx, args.Lock, ledger.NewSigners(h.feeDest), args.Funding, 10000, fee.KindProportional)
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	h.requireBacked(args.Lock)
}

func TestProportionalFeeOverflowAbortsBeforeTransfer(t *testing.T) {
	h := newHarness(t, ConfigArgs{FeeNumerator: 1, FeeDenominator: 1})
	owner, wallet := h.fundedWallet(h.mint, math.MaxUint64)

	args := h.createArgs(owner, wallet, math.MaxUint64, 60, fee.KindProportional)
	_, err := h.engine.CreateLock(h.ctx, ledger.NewSigners(owner), args)
	require.ErrorIs(t, err, ErrIntegerOverflow)
	assert.Equal(t, uint64(math.MaxUint64), h.balance(wallet))
}

func TestAllowlistCreatesAssetInfoOnce(t *testing.T) {
	cfg := defaultConfig()
	cfg.AssetAllowlistEnforced = true
	h := newHarness(t, cfg)
	owner, wallet := h.fundedWallet(h.mint, 50000)

	_, err := h.engine.AssetInfo(h.ctx, h.mint)
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)

	// flat deposits bypass the allow-list
	h.createLock(owner, wallet, 1000, 60)
	_, err = h.engine.AssetInfo(h.ctx, h.mint)
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)

	for i := 0; i < 2; i++ {
		args := h.createArgs(owner, wallet, 10000, 60, fee.KindProportional)
		_, err := h.engine.CreateLock(h.ctx, ledger.NewSigners(owner), args)
		require.NoError(t, err)
	}
	info, err := h.engine.AssetInfo(h.ctx, h.mint)
	require.NoError(t, err)
	assert.Equal(t, h.mint, info.Asset)
	assert.False(t, info.Settled())

	_, bump, err := h.engine.AssetInfoAddress(h.mint)
	require.NoError(t, err)
	assert.Equal(t, bump, info.Bump)

	again, err := h.engine.RegisterAsset(h.ctx, owner, ledger.NewSigners(owner), h.mint)
	require.NoError(t, err)
	assert.Equal(t, *info, *again)

	// both proportional deposits were charged
	assert.Equal(t, uint64(50000-1000-2*10035), h.balance(wallet))
}

func TestSettledAssetWaivesProportionalFee(t *testing.T) {
	cfg := defaultConfig()
	cfg.AssetAllowlistEnforced = true
	h := newHarness(t, cfg)
	owner, wallet := h.fundedWallet(h.mint, 50000)

	info, err := h.engine.SettleAssetFee(h.ctx, owner, ledger.NewSigners(owner), h.mint)
	require.NoError(t, err)
	assert.True(t, info.Settled())
	assert.Equal(t, uint64(900), h.native(owner))
	assert.Equal(t, uint64(100), h.native(h.feeDest))

	// settling twice does not charge again
	_, err = h.engine.SettleAssetFee(h.ctx, owner, ledger.NewSigners(owner), h.mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(900), h.native(owner))

	args := h.createArgs(owner, wallet, 10000, 60, fee.KindProportional)
	_, err = h.engine.CreateLock(h.ctx, ledger.NewSigners(owner), args)
	require.NoError(t, err)
	assert.Equal(t, uint64(40000), h.balance(wallet))
}

func TestSetAssetFeeSettledIsAdminOnly(t *testing.T) {
	h := newHarness(t, defaultConfig())
	other := newKey()

	_, err := h.engine.SetAssetFeeSettled(h.ctx, ledger.NewSigners(other), h.mint, true)
	require.ErrorIs(t, err, ErrInitAssetInfoNotAuthorized)
	_, err = h.engine.AssetInfo(h.ctx, h.mint)
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)

	info, err := h.engine.SetAssetFeeSettled(h.ctx, ledger.NewSigners(h.admin), h.mint, true)
	require.NoError(t, err)
	assert.True(t, info.Settled())

	info, err = h.engine.SetAssetFeeSettled(h.ctx, ledger.NewSigners(h.admin), h.mint, false)
	require.NoError(t, err)
	assert.False(t, info.Settled())
}

func TestRegisterAssetRequiresMint(t *testing.T) {
	h := newHarness(t, defaultConfig())
	payer := newKey()

	_, err := h.engine.RegisterAsset(h.ctx, payer, ledger.NewSigners(payer), newKey())
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)

	_, err = h.engine.RegisterAsset(h.ctx, payer, ledger.NewSigners(), h.mint)
	require.ErrorIs(t, err, ErrUnauthorized)
}

// ensures a non-standard asset that takes a cut on transfer can never be
// locked, and that the rejected deposit leaves no trace
func TestFeeOnTransferAssetRejected(t *testing.T) {
	h := newHarness(t, defaultConfig())
	mint := h.newMint(100)
	owner, wallet := h.fundedWallet(mint, 50000)

	for _, kind := range []fee.Kind{fee.KindFlat, fee.KindProportional} {
		args := h.createArgs(owner, wallet, 10000, 60, kind)
		_, err := h.engine.CreateLock(h.ctx, ledger.NewSigners(owner), args)
		require.ErrorIs(t, err, ErrInvalidAmountTransferred)

		_, err = h.engine.Lock(h.ctx, args.Lock)
		require.ErrorIs(t, err, ledger.ErrAccountNotFound)
		require.NoError(t, h.ledger.View(h.ctx, func(tx *ledger.Tx) error {
			_, err := tx.TokenAccount(args.Vault)
			require.ErrorIs(t, err, ledger.ErrAccountNotFound)
			m, err := tx.Mint(mint)
			require.NoError(t, err)
			assert.Equal(t, uint64(50000), m.Supply)
			return nil
		}))
	}
	assert.Equal(t, uint64(50000), h.balance(wallet))
	assert.Equal(t, uint64(1000), h.native(owner))
}

func TestWithdrawScenario(t *testing.T) {
	h := newHarness(t, defaultConfig())
	owner, wallet := h.fundedWallet(h.mint, 10000)
	_, dest := h.fundedWallet(h.mint, 0)
	addr, _ := h.createLock(owner, wallet, 10000, 5)

	_, err := h.engine.Withdraw(h.ctx, addr, ledger.NewSigners(owner), dest, 100)
	require.ErrorIs(t, err, ErrTooEarlyToWithdraw)
	assert.Equal(t, uint64(10000), h.lock(addr).DepositedAmount)
	assert.Equal(t, uint64(0), h.balance(dest))

	h.clock.now += 6
	lock, err := h.engine.Withdraw(h.ctx, addr, ledger.NewSigners(owner), dest, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(9000), lock.DepositedAmount)
	assert.Equal(t, uint64(1000), h.balance(dest))
	h.requireBacked(addr)
}

func TestWithdrawBeforeUnlockNeverMutates(t *testing.T) {
	h := newHarness(t, defaultConfig())
	owner, wallet := h.fundedWallet(h.mint, 10000)
	addr, before := h.createLock(owner, wallet, 10000, 100)

	for i := int64(0); i < 100; i += 25 {
		h.clock.now = start + i
		_, err := h.engine.Withdraw(h.ctx, addr, ledger.NewSigners(owner), wallet, 1)
		require.ErrorIs(t, err, ErrTooEarlyToWithdraw)
		assert.Equal(t, *before, *h.lock(addr))
		h.requireBacked(addr)
	}

	// matured exactly at the unlock date
	h.clock.now = before.CurrentUnlockDate
	_, err := h.engine.Withdraw(h.ctx, addr, ledger.NewSigners(owner), wallet, 1)
	require.NoError(t, err)
}

func TestWithdrawValidation(t *testing.T) {
	h := newHarness(t, defaultConfig())
	owner, wallet := h.fundedWallet(h.mint, 10000)
	addr, _ := h.createLock(owner, wallet, 10000, 5)
	h.clock.now += 10

	_, err := h.engine.Withdraw(h.ctx, addr, ledger.NewSigners(owner), wallet, 0)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = h.engine.Withdraw(h.ctx, addr, ledger.NewSigners(owner), wallet, 10001)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = h.engine.Withdraw(h.ctx, addr, ledger.NewSigners(newKey()), wallet, 10)
	require.ErrorIs(t, err, ErrUnauthorized)

	other := h.newMint(0)
	_, otherWallet := h.fundedWallet(other, 0)
	_, err = h.engine.Withdraw(h.ctx, addr, ledger.NewSigners(owner), otherWallet, 10)
	require.ErrorIs(t, err, ledger.ErrMintMismatch)

	// withdrawing into the vault itself moves nothing and is rejected
	_, err = h.engine.Withdraw(h.ctx, addr, ledger.NewSigners(owner), h.lock(addr).Vault, 10)
	require.ErrorIs(t, err, ErrInvalidAmountTransferred)

	assert.Equal(t, uint64(10000), h.lock(addr).DepositedAmount)
	h.requireBacked(addr)

	// the whole balance may be withdrawn; the vault stays open
	lock, err := h.engine.Withdraw(h.ctx, addr, ledger.NewSigners(owner), wallet, 10000)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), lock.DepositedAmount)
	assert.Equal(t, uint64(0), h.balance(lock.Vault))
	assert.Equal(t, uint64(10000), h.balance(wallet))
}

func TestStaleBumpFailsClosed(t *testing.T) {
	h := newHarness(t, defaultConfig())
	owner, wallet := h.fundedWallet(h.mint, 10000)
	addr, lock := h.createLock(owner, wallet, 10000, 5)
	h.clock.now += 10

	tampered := *lock
	tampered.VaultBump = lock.VaultBump + 1
	require.NoError(t, h.ledger.Update(h.ctx, func(tx *ledger.Tx) error {
		return tx.PutRecord(addr, lockDiscriminator, &tampered)
	}))

	_, err := h.engine.Withdraw(h.ctx, addr, ledger.NewSigners(owner), wallet, 100)
	require.ErrorIs(t, err, ErrInvalidVaultAuthority)
	assert.Equal(t, uint64(10000), h.balance(lock.Vault))
	assert.Equal(t, uint64(0), h.balance(wallet))

	_, _, err = h.engine.Split(h.ctx, addr, ledger.NewSigners(owner), SplitArgs{
		NewLock: newKey(), NewVault: newKey(), NewOwner: owner, Amount: 100,
	})
	require.ErrorIs(t, err, ErrInvalidVaultAuthority)
	assert.Equal(t, uint64(10000), h.balance(lock.Vault))
}

// A key pair that signs cannot stand in for the derived vault authority.
func TestVaultRejectsOwnerKey(t *testing.T) {
	h := newHarness(t, defaultConfig())
	owner, wallet := h.fundedWallet(h.mint, 10000)
	_, lock := h.createLock(owner, wallet, 10000, 5)

	err := h.ledger.Update(h.ctx, func(tx *ledger.Tx) error {
		return tx.Transfer(lock.Vault, wallet, ledger.NewSigners(owner, h.admin), 100)
	})
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	assert.Equal(t, uint64(10000), h.balance(lock.Vault))
}

type allowAll struct{}

func (allowAll) Allows(solana.PublicKey) bool { return true }

// The derived vault authority has no key, so nobody can sign for it to fund
// another lock with a victim's vault.
func TestVaultAuthorityCannotBeClaimedAsSigner(t *testing.T) {
	h := newHarness(t, defaultConfig())
	victim, victimWallet := h.fundedWallet(h.mint, 10000)
	victimAddr, victimLock := h.createLock(victim, victimWallet, 10000, 5)
	attacker, attackerWallet := h.fundedWallet(h.mint, 10)
	attackerAddr, _ := h.createLock(attacker, attackerWallet, 10, 5)

	pda, _, err := h.engine.VaultAuthority(victimAddr)
	require.NoError(t, err)
	require.False(t, ledger.CanSign(pda))
	assert.False(t, ledger.NewSigners(pda).Allows(pda))

	stolen := Funding{Wallet: victimLock.Vault, Authority: pda}
	for _, signers := range []ledger.Authorizer{
		ledger.NewSigners(pda),
		ledger.NewSigners(attacker, pda),
		allowAll{},
	} {
		_, err := h.engine.Increment(h.ctx, attackerAddr, signers, stolen, 10000, fee.KindFlat)
		require.ErrorIs(t, err, ErrUnauthorized)
	}

	_, err = h.engine.CreateLock(h.ctx, allowAll{}, CreateArgs{
		Lock:       newKey(),
		Vault:      newKey(),
		Creator:    attacker,
		Owner:      attacker,
		Funding:    stolen,
		Amount:     10000,
		UnlockDate: h.clock.now + 5,
		FeeKind:    fee.KindFlat,
	})
	require.ErrorIs(t, err, ErrUnauthorized)

	assert.Equal(t, uint64(10000), h.balance(victimLock.Vault))
	assert.Equal(t, uint64(10), h.lock(attackerAddr).DepositedAmount)
	h.requireBacked(victimAddr)
	h.requireBacked(attackerAddr)
}

func TestIncrementScenario(t *testing.T) {
	h := newHarness(t, defaultConfig())
	owner, wallet := h.fundedWallet(h.mint, 20000)
	addr, before := h.createLock(owner, wallet, 10000, 60)

	lock, err := h.engine.Increment(h.ctx, addr, ledger.NewSigners(owner), Funding{Wallet: wallet, Authority: owner}, 1000, fee.KindProportional)
	require.NoError(t, err)
	assert.Equal(t, uint64(11000), lock.DepositedAmount)
	assert.Equal(t, uint64(11000), h.balance(lock.Vault))
	// 1000 * 35 / 10000 = 3, charged to the funding wallet
	assert.Equal(t, uint64(20000-10000-1003), h.balance(wallet))
	assert.Equal(t, before.CurrentUnlockDate, lock.CurrentUnlockDate)
	assert.Equal(t, before.OriginalUnlockDate, lock.OriginalUnlockDate)
	assert.Equal(t, before.Owner, lock.Owner)
	assert.Equal(t, before.Creator, lock.Creator)
	h.requireBacked(addr)
}

func TestIncrementByThirdParty(t *testing.T) {
	h := newHarness(t, defaultConfig())
	owner, wallet := h.fundedWallet(h.mint, 10000)
	donor, donorWallet := h.fundedWallet(h.mint, 5000)
	addr, _ := h.createLock(owner, wallet, 10000, 60)

	lock, err := h.engine.Increment(h.ctx, addr, ledger.NewSigners(donor), Funding{Wallet: donorWallet, Authority: donor}, 5000, fee.KindFlat)
	require.NoError(t, err)
	assert.Equal(t, uint64(15000), lock.DepositedAmount)
	assert.Equal(t, owner, lock.Owner)
	assert.Equal(t, uint64(900), h.native(donor))
	h.requireBacked(addr)
}

func TestIncrementValidation(t *testing.T) {
	h := newHarness(t, defaultConfig())
	owner, wallet := h.fundedWallet(h.mint, 20000)
	addr, _ := h.createLock(owner, wallet, 10000, 60)
	funding := Funding{Wallet: wallet, Authority: owner}

	_, err := h.engine.Increment(h.ctx, addr, ledger.NewSigners(owner), funding, 0, fee.KindFlat)
	require.ErrorIs(t, err, ErrNothingToLock)

	_, err = h.engine.Increment(h.ctx, addr, ledger.NewSigners(), funding, 10, fee.KindFlat)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.engine.Increment(h.ctx, addr, ledger.NewSigners(owner), funding, math.MaxUint64, fee.KindFlat)
	require.ErrorIs(t, err, ErrIntegerOverflow)

	other := h.newMint(0)
	otherOwner, otherWallet := h.fundedWallet(other, 1000)
	_, err = h.engine.Increment(h.ctx, addr, ledger.NewSigners(otherOwner), Funding{Wallet: otherWallet, Authority: otherOwner}, 10, fee.KindFlat)
	require.ErrorIs(t, err, ErrMintMismatch)

	assert.Equal(t, uint64(10000), h.lock(addr).DepositedAmount)
	assert.Equal(t, uint64(10000), h.balance(wallet))
	h.requireBacked(addr)
}

func TestTransferOwnershipScenario(t *testing.T) {
	h := newHarness(t, defaultConfig())
	a, wallet := h.fundedWallet(h.mint, 10000)
	b := newKey()
	c := newKey()
	addr, _ := h.createLock(a, wallet, 10000, 5)

	lock, err := h.engine.TransferOwnership(h.ctx, addr, ledger.NewSigners(a), b)
	require.NoError(t, err)
	assert.Equal(t, b, lock.Owner)
	assert.Equal(t, a, lock.Creator)

	_, err = h.engine.TransferOwnership(h.ctx, addr, ledger.NewSigners(a), c)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, b, h.lock(addr).Owner)

	lock, err = h.engine.TransferOwnership(h.ctx, addr, ledger.NewSigners(b), c)
	require.NoError(t, err)
	assert.Equal(t, c, lock.Owner)

	// the previous owner can no longer withdraw
	h.clock.now += 10
	_, err = h.engine.Withdraw(h.ctx, addr, ledger.NewSigners(a), wallet, 100)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.engine.Withdraw(h.ctx, addr, ledger.NewSigners(c), wallet, 100)
	require.NoError(t, err)
}

func TestRelock(t *testing.T) {
	h := newHarness(t, defaultConfig())
	owner, wallet := h.fundedWallet(h.mint, 10000)
	addr, before := h.createLock(owner, wallet, 10000, 100)

	_, err := h.engine.Relock(h.ctx, addr, ledger.NewSigners(owner), before.CurrentUnlockDate-1)
	require.ErrorIs(t, err, ErrCannotUnlockToEarlierDate)
	assert.Equal(t, *before, *h.lock(addr))

	_, err = h.engine.Relock(h.ctx, addr, ledger.NewSigners(newKey()), before.CurrentUnlockDate+10)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.engine.Relock(h.ctx, addr, ledger.NewSigners(owner), start+MaxLockPeriod+1)
	require.ErrorIs(t, err, ErrInvalidPeriod)

	lock, err := h.engine.Relock(h.ctx, addr, ledger.NewSigners(owner), before.CurrentUnlockDate+500)
	require.NoError(t, err)
	assert.Equal(t, before.CurrentUnlockDate+500, lock.CurrentUnlockDate)
	assert.Equal(t, before.OriginalUnlockDate, lock.OriginalUnlockDate)
	assert.True(t, lock.Extended())

	// a matured lock cannot be relocked to a date that has already passed
	h.clock.now = lock.CurrentUnlockDate + 1
	_, err = h.engine.Relock(h.ctx, addr, ledger.NewSigners(owner), lock.CurrentUnlockDate)
	require.ErrorIs(t, err, ErrUnlockInThePast)
	assert.Equal(t, lock.CurrentUnlockDate, h.lock(addr).CurrentUnlockDate)
}

func TestRelockNeverDecreases(t *testing.T) {
	h := newHarness(t, defaultConfig())
	owner, wallet := h.fundedWallet(h.mint, 10000)
	addr, lock := h.createLock(owner, wallet, 10000, 1000)

	offsets := []int64{-500, 200, 200, -1, 5000, 0, 3000, -4000, 10000}
	current := lock.CurrentUnlockDate
	for _, off := range offsets {
		_, _ = h.engine.Relock(h.ctx, addr, ledger.NewSigners(owner), current+off)
		got := h.lock(addr).CurrentUnlockDate
		require.GreaterOrEqual(t, got, current)
		current = got
	}
	assert.Equal(t, lock.CurrentUnlockDate+200+200+5000+3000+10000, current)
	assert.Equal(t, lock.OriginalUnlockDate, h.lock(addr).OriginalUnlockDate)
}

func TestSplit(t *testing.T) {
	h := newHarness(t, defaultConfig())
	owner, wallet := h.fundedWallet(h.mint, 10000)
	newOwner := newKey()
	addr, _ := h.createLock(owner, wallet, 10000, 100)
	lock, err := h.engine.Relock(h.ctx, addr, ledger.NewSigners(owner), start+500)
	require.NoError(t, err)

	args := SplitArgs{NewLock: newKey(), NewVault: newKey(), NewOwner: newOwner, Amount: 4000}
	source, split, err := h.engine.Split(h.ctx, addr, ledger.NewSigners(owner), args)
	require.NoError(t, err)

	assert.Equal(t, lock.DepositedAmount, source.DepositedAmount+split.DepositedAmount)
	assert.Equal(t, uint64(6000), source.DepositedAmount)
	assert.Equal(t, uint64(4000), split.DepositedAmount)
	assert.Equal(t, uint64(6000), h.balance(lock.Vault))
	assert.Equal(t, uint64(4000), h.balance(args.NewVault))
	h.requireBacked(addr)
	h.requireBacked(args.NewLock)

	assert.Equal(t, newOwner, split.Owner)
	assert.Equal(t, owner, split.Creator)
	assert.Equal(t, args.NewVault, split.Vault)
	assert.Equal(t, lock.CurrentUnlockDate, split.CurrentUnlockDate)
	assert.Equal(t, lock.OriginalUnlockDate, split.OriginalUnlockDate)

	c, err := authority.Derive(h.engine.Program(), args.NewLock, split.VaultBump)
	require.NoError(t, err)
	require.NoError(t, h.ledger.View(h.ctx, func(tx *ledger.Tx) error {
		acct, err := tx.TokenAccount(args.NewVault)
		require.NoError(t, err)
		return c.Verify(acct.Authority)
	}))

	// the new lock is independent of its parent
	h.clock.now = start + 600
	_, err = h.engine.Withdraw(h.ctx, args.NewLock, ledger.NewSigners(owner), wallet, 10)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.engine.Withdraw(h.ctx, args.NewLock, ledger.NewSigners(newOwner), wallet, 4000)
	require.NoError(t, err)
	assert.Equal(t, uint64(6000), h.balance(lock.Vault))
}

func TestSplitValidation(t *testing.T) {
	h := newHarness(t, defaultConfig())
	owner, wallet := h.fundedWallet(h.mint, 20000)
	addr, lock := h.createLock(owner, wallet, 10000, 100)
	otherAddr, _ := h.createLock(owner, wallet, 1000, 100)

	split := func(signer solana.PublicKey, args SplitArgs) error {
		_, _, err := h.engine.Split(h.ctx, addr, ledger.NewSigners(signer), args)
		return err
	}
	fresh := func(amount uint64) SplitArgs {
		return SplitArgs{NewLock: newKey(), NewVault: newKey(), NewOwner: owner, Amount: amount}
	}

	require.ErrorIs(t, split(owner, fresh(0)), ErrInvalidAmount)
	require.ErrorIs(t, split(owner, fresh(10001)), ErrInvalidAmount)
	require.ErrorIs(t, split(newKey(), fresh(10)), ErrUnauthorized)

	reused := fresh(10)
	reused.NewLock = otherAddr
	require.ErrorIs(t, split(owner, reused), ledger.ErrAccountExists)

	reused = fresh(10)
	reused.NewVault = lock.Vault
	require.ErrorIs(t, split(owner, reused), ledger.ErrAccountExists)

	assert.Equal(t, *lock, *h.lock(addr))
	h.requireBacked(addr)

	// splitting off everything leaves an empty source lock
	source, _, err := h.engine.Split(h.ctx, addr, ledger.NewSigners(owner), fresh(10000))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), source.DepositedAmount)
	h.requireBacked(addr)
}

func TestClose(t *testing.T) {
	h := newHarness(t, defaultConfig())
	owner, wallet := h.fundedWallet(h.mint, 10000)
	addr, lock := h.createLock(owner, wallet, 10000, 5)

	require.ErrorIs(t, h.engine.Close(h.ctx, addr, ledger.NewSigners(owner)), ErrVaultNotEmpty)

	h.clock.now += 10
	_, err := h.engine.Withdraw(h.ctx, addr, ledger.NewSigners(owner), wallet, 10000)
	require.NoError(t, err)

	require.ErrorIs(t, h.engine.Close(h.ctx, addr, ledger.NewSigners(newKey())), ErrUnauthorized)
	require.NoError(t, h.engine.Close(h.ctx, addr, ledger.NewSigners(owner)))

	_, err = h.engine.Lock(h.ctx, addr)
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
	require.NoError(t, h.ledger.View(h.ctx, func(tx *ledger.Tx) error {
		_, err := tx.TokenAccount(lock.Vault)
		require.ErrorIs(t, err, ledger.ErrAccountNotFound)
		return nil
	}))
	assert.Equal(t, uint64(10000), h.balance(wallet))
}

func TestLocksOwnedBy(t *testing.T) {
	h := newHarness(t, defaultConfig())
	alice, aliceWallet := h.fundedWallet(h.mint, 10000)
	bob := newKey()

	a1, _ := h.createLock(alice, aliceWallet, 1000, 60)
	a2, _ := h.createLock(alice, aliceWallet, 1000, 60)
	b1, _ := h.createLock(alice, aliceWallet, 1000, 60)
	_, err := h.engine.TransferOwnership(h.ctx, b1, ledger.NewSigners(alice), bob)
	require.NoError(t, err)

	all, err := h.engine.Locks(h.ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	owned, err := h.engine.LocksOwnedBy(h.ctx, alice)
	require.NoError(t, err)
	var addrs []solana.PublicKey
	for _, la := range owned {
		assert.Equal(t, alice, la.Lock.Owner)
		addrs = append(addrs, la.Address)
	}
	assert.ElementsMatch(t, []solana.PublicKey{a1, a2}, addrs)

	owned, err = h.engine.LocksOwnedBy(h.ctx, bob)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, b1, owned[0].Address)

	// config and asset records are not locks
	_, err = h.engine.SetAssetFeeSettled(h.ctx, ledger.NewSigners(h.admin), h.mint, true)
	require.NoError(t, err)
	all, err = h.engine.Locks(h.ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestVaultBalance(t *testing.T) {
	h := newHarness(t, defaultConfig())
	owner, wallet := h.fundedWallet(h.mint, 10000)
	addr, _ := h.createLock(owner, wallet, 7000, 60)

	b, err := h.engine.VaultBalance(h.ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(7000), b)
}

func TestCancelledContext(t *testing.T) {
	h := newHarness(t, defaultConfig())
	owner, wallet := h.fundedWallet(h.mint, 10000)

	ctx, cancel := context.WithCancel(h.ctx)
	cancel()
	args := h.createArgs(owner, wallet, 1000, 60, fee.KindFlat)
	_, err := h.engine.CreateLock(ctx, ledger.NewSigners(owner), args)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(10000), h.balance(wallet))
}

func TestErrorCodes(t *testing.T) {
	code, ok := CodeOf(ErrUnlockInThePast)
	require.True(t, ok)
	assert.Equal(t, uint32(6000), code)

	code, ok = CodeOf(ErrMintMismatch)
	require.True(t, ok)
	assert.Equal(t, uint32(6016), code)

	_, ok = CodeOf(context.Canceled)
	assert.False(t, ok)
	assert.Equal(t, "TooEarlyToWithdraw", NameOf(ErrTooEarlyToWithdraw))
	assert.Equal(t, "", NameOf(ledger.ErrUnauthorized))
}
