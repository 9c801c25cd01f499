package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"github.com/near/borsh-go"
)

const basisPoints = 10000

// Mint defines a fungible asset
type Mint struct {
	Authority solana.PublicKey
	Decimals  uint8
	Supply    uint64
	// Withheld from every transfer and burned. Standard assets use 0.
	TransferFeeBasisPoints uint16
}

// TokenAccount holds a balance of one mint under a controlling authority
type TokenAccount struct {
	Mint      solana.PublicKey
	Authority solana.PublicKey
	Amount    uint64
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrBalanceOverflow
	}
	return sum, nil
}

func (t *Tx) getMint(addr solana.PublicKey) (*Mint, error) {
	data := t.tx.Bucket(MintsBucket).Get(addr[:])
	if data == nil {
		return nil, fmt.Errorf("mint %s: %w", addr, ErrAccountNotFound)
	}
	m := &Mint{}
	if err := borsh.Deserialize(m, data); err != nil {
		return nil, fmt.Errorf("failed to decode mint %s: %w", addr, err)
	}
	return m, nil
}

func (t *Tx) putMint(addr solana.PublicKey, m *Mint) error {
	data, err := borsh.Serialize(*m)
	if err != nil {
		return fmt.Errorf("failed to encode mint %s: %w", addr, err)
	}
	return t.tx.Bucket(MintsBucket).Put(addr[:], data)
}

func (t *Tx) putTokenAccount(addr solana.PublicKey, a *TokenAccount) error {
	data, err := borsh.Serialize(*a)
	if err != nil {
		return fmt.Errorf("failed to encode token account %s: %w", addr, err)
	}
	return t.tx.Bucket(TokensBucket).Put(addr[:], data)
}

// Mint returns the asset definition at addr
func (t *Tx) Mint(addr solana.PublicKey) (*Mint, error) {
	return t.getMint(addr)
}

// CreateMint defines a new asset at addr
func (t *Tx) CreateMint(addr, authority solana.PublicKey, decimals uint8, transferFeeBps uint16) error {
	if t.exists(addr[:]) {
		return fmt.Errorf("mint %s: %w", addr, ErrAccountExists)
	}
	if transferFeeBps > basisPoints {
		return fmt.Errorf("transfer fee %d exceeds %d basis points", transferFeeBps, basisPoints)
	}
	return t.putMint(addr, &Mint{
		Authority:              authority,
		Decimals:               decimals,
		TransferFeeBasisPoints: transferFeeBps,
	})
}

// MintTo issues new units of mint into dst
func (t *Tx) MintTo(mint, dst solana.PublicKey, auth Authorizer, amount uint64) error {
	m, err := t.getMint(mint)
	if err != nil {
		return err
	}
	if !auth.Allows(m.Authority) {
		return fmt.Errorf("mint %s: %w", mint, ErrUnauthorized)
	}
	acct, err := t.TokenAccount(dst)
	if err != nil {
		return err
	}
	if !acct.Mint.Equals(mint) {
		return fmt.Errorf("account %s holds %s, not %s: %w", dst, acct.Mint, mint, ErrMintMismatch)
	}

	if m.Supply, err = checkedAdd(m.Supply, amount); err != nil {
		return err
	}
	if acct.Amount, err = checkedAdd(acct.Amount, amount); err != nil {
		return err
	}
	if err := t.putMint(mint, m); err != nil {
		return err
	}
	return t.putTokenAccount(dst, acct)
}

// CreateTokenAccount allocates an empty account for mint controlled by authority
func (t *Tx) CreateTokenAccount(addr, mint, authority solana.PublicKey) error {
	if t.exists(addr[:]) {
		return fmt.Errorf("token account %s: %w", addr, ErrAccountExists)
	}
	if _, err := t.getMint(mint); err != nil {
		return err
	}
	return t.putTokenAccount(addr, &TokenAccount{Mint: mint, Authority: authority})
}

// AssociatedTokenAddress returns the canonical account address of wallet for mint
func AssociatedTokenAddress(wallet, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive associated account of %s for %s: %w", wallet, mint, err)
	}
	return addr, nil
}

// GetOrCreateAssociatedTokenAccount returns the associated account of wallet
// for mint, creating it when missing.
func (t *Tx) GetOrCreateAssociatedTokenAccount(wallet, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, err := AssociatedTokenAddress(wallet, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if t.tx.Bucket(TokensBucket).Get(addr[:]) != nil {
		acct, err := t.TokenAccount(addr)
		if err != nil {
			return solana.PublicKey{}, err
		}
		if !acct.Mint.Equals(mint) {
			return solana.PublicKey{}, fmt.Errorf("account %s holds %s, not %s: %w", addr, acct.Mint, mint, ErrMintMismatch)
		}
		return addr, nil
	}
	if err := t.CreateTokenAccount(addr, mint, wallet); err != nil {
		return solana.PublicKey{}, err
	}
	return addr, nil
}

// TokenAccount returns the value-holding account at addr
func (t *Tx) TokenAccount(addr solana.PublicKey) (*TokenAccount, error) {
	data := t.tx.Bucket(TokensBucket).Get(addr[:])
	if data == nil {
		return nil, fmt.Errorf("token account %s: %w", addr, ErrAccountNotFound)
	}
	a := &TokenAccount{}
	if err := borsh.Deserialize(a, data); err != nil {
		return nil, fmt.Errorf("failed to decode token account %s: %w", addr, err)
	}
	return a, nil
}

// Balance returns the balance of the token account at addr
func (t *Tx) Balance(addr solana.PublicKey) (uint64, error) {
	a, err := t.TokenAccount(addr)
	if err != nil {
		return 0, err
	}
	return a.Amount, nil
}

// Transfer moves amount from src to dst. auth must allow the authority of
// src. Mints with a transfer fee credit dst with less than amount.
func (t *Tx) Transfer(src, dst solana.PublicKey, auth Authorizer, amount uint64) error {
	from, err := t.TokenAccount(src)
	if err != nil {
		return err
	}
	to, err := t.TokenAccount(dst)
	if err != nil {
		return err
	}
	if !auth.Allows(from.Authority) {
		return fmt.Errorf("account %s: %w", src, ErrUnauthorized)
	}
	if !from.Mint.Equals(to.Mint) {
		return fmt.Errorf("transfer %s -> %s: %w", from.Mint, to.Mint, ErrMintMismatch)
	}
	if from.Amount < amount {
		return fmt.Errorf("account %s holds %d, needs %d: %w", src, from.Amount, amount, ErrInsufficientFunds)
	}
	if src.Equals(dst) {
		return nil
	}

	m, err := t.getMint(from.Mint)
	if err != nil {
		return err
	}
	withheld := uint64(0)
	if m.TransferFeeBasisPoints > 0 {
		w := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(uint64(m.TransferFeeBasisPoints)))
		withheld = w.Div(w, uint256.NewInt(basisPoints)).Uint64()
	}

	from.Amount -= amount
	if to.Amount, err = checkedAdd(to.Amount, amount-withheld); err != nil {
		return err
	}
	if err := t.putTokenAccount(src, from); err != nil {
		return err
	}
	if err := t.putTokenAccount(dst, to); err != nil {
		return err
	}
	if withheld > 0 {
		m.Supply -= withheld
		return t.putMint(from.Mint, m)
	}
	return nil
}

// CloseTokenAccount removes an empty account. auth must allow its authority.
func (t *Tx) CloseTokenAccount(addr solana.PublicKey, auth Authorizer) error {
	acct, err := t.TokenAccount(addr)
	if err != nil {
		return err
	}
	if !auth.Allows(acct.Authority) {
		return fmt.Errorf("account %s: %w", addr, ErrUnauthorized)
	}
	if acct.Amount != 0 {
		return fmt.Errorf("account %s holds %d: %w", addr, acct.Amount, ErrAccountNotEmpty)
	}
	return t.tx.Bucket(TokensBucket).Delete(addr[:])
}

// NativeBalance returns the native ledger-unit balance of addr
func (t *Tx) NativeBalance(addr solana.PublicKey) uint64 {
	data := t.tx.Bucket(NativeBucket).Get(addr[:])
	if len(data) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}

func (t *Tx) setNativeBalance(addr solana.PublicKey, amount uint64) error {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, amount)
	return t.tx.Bucket(NativeBucket).Put(addr[:], b)
}

// Airdrop credits native units to addr
func (t *Tx) Airdrop(addr solana.PublicKey, amount uint64) error {
	balance, err := checkedAdd(t.NativeBalance(addr), amount)
	if err != nil {
		return err
	}
	return t.setNativeBalance(addr, balance)
}

// TransferNative moves native units from one address to another. auth must
// allow from.
func (t *Tx) TransferNative(from, to solana.PublicKey, auth Authorizer, amount uint64) error {
	if !auth.Allows(from) {
		return fmt.Errorf("native account %s: %w", from, ErrUnauthorized)
	}
	balance := t.NativeBalance(from)
	if balance < amount {
		return fmt.Errorf("native account %s holds %d, needs %d: %w", from, balance, amount, ErrInsufficientFunds)
	}
	if from.Equals(to) {
		return nil
	}
	credited, err := checkedAdd(t.NativeBalance(to), amount)
	if err != nil {
		return err
	}
	if err := t.setNativeBalance(from, balance-amount); err != nil {
		return err
	}
	return t.setNativeBalance(to, credited)
}
