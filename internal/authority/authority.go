package authority

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const maxBump = 255

var (
	ErrNoViableBump      = errors.New("no viable bump seed")
	ErrAuthorityMismatch = errors.New("derived authority does not match vault controller")
)

// Capability is the right to move funds out of the vault controlled by a
// derived address. The zero value authorizes nothing.
type Capability struct {
	program solana.PublicKey
	lock    solana.PublicKey
	address solana.PublicKey
	bump    uint8
	valid   bool
}

// Derive recomputes the vault authority of lock from a stored bump.
func Derive(program, lock solana.PublicKey, bump uint8) (Capability, error) {
	addr, err := solana.CreateProgramAddress([][]byte{lock[:], {bump}}, program)
	if err != nil {
		return Capability{}, fmt.Errorf("failed to derive authority for %s with bump %d: %w", lock, bump, err)
	}
	return Capability{
		program: program,
		lock:    lock,
		address: addr,
		bump:    bump,
		valid:   true,
	}, nil
}

// Find derives the vault authority of a new lock using the smallest viable bump.
func Find(program, lock solana.PublicKey) (Capability, error) {
	for bump := 0; bump <= maxBump; bump++ {
		c, err := Derive(program, lock, uint8(bump))
		if err == nil {
			return c, nil
		}
	}
	return Capability{}, ErrNoViableBump
}

// FindAddress returns the program-derived address for seeds and the smallest
// bump that produces it. Used for singleton and per-asset records.
func FindAddress(program solana.PublicKey, seeds ...[]byte) (solana.PublicKey, uint8, error) {
	for bump := 0; bump <= maxBump; bump++ {
		withBump := append(append([][]byte{}, seeds...), []byte{uint8(bump)})
		addr, err := solana.CreateProgramAddress(withBump, program)
		if err == nil {
			return addr, uint8(bump), nil
		}
	}
	return solana.PublicKey{}, 0, ErrNoViableBump
}

// Address returns the derived controller address.
func (c Capability) Address() solana.PublicKey {
	return c.address
}

// Bump returns the bump the capability was derived with.
func (c Capability) Bump() uint8 {
	return c.bump
}

// Lock returns the lock the capability belongs to.
func (c Capability) Lock() solana.PublicKey {
	return c.lock
}

// Verify checks that controller is the address this capability derives.
func (c Capability) Verify(controller solana.PublicKey) error {
	if !c.Allows(controller) {
		return fmt.Errorf("%w: derived %s, vault controlled by %s", ErrAuthorityMismatch, c.address, controller)
	}
	return nil
}

// Allows reports whether the capability may act as addr.
func (c Capability) Allows(addr solana.PublicKey) bool {
	if !c.valid {
		return false
	}
	return subtle.ConstantTimeCompare(c.address[:], addr[:]) == 1
}

func (c Capability) String() string {
	return c.address.String()
}
