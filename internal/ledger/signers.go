package ledger

import (
	"github.com/gagliardetto/solana-go"
)

// Authorizer decides whether an operation may act on behalf of an address.
type Authorizer interface {
	Allows(addr solana.PublicKey) bool
}

// Signers is the set of addresses that signed the current operation. The
// signature check itself happens outside the ledger. Program-derived
// addresses are off the ed25519 curve and have no private key, so a signer
// set never contains one; only a derived capability may act for them.
type Signers struct {
	keys map[solana.PublicKey]struct{}
}

// NewSigners returns a signer set containing the on-curve keys among keys
func NewSigners(keys ...solana.PublicKey) Signers {
	s := Signers{keys: make(map[solana.PublicKey]struct{}, len(keys))}
	for _, k := range keys {
		if !CanSign(k) {
			continue
		}
		s.keys[k] = struct{}{}
	}
	return s
}

// CanSign reports whether addr is a key pair address that could produce a
// signature.
func CanSign(addr solana.PublicKey) bool {
	return solana.IsOnCurve(addr[:])
}

// Allows reports whether addr signed
func (s Signers) Allows(addr solana.PublicKey) bool {
	_, ok := s.keys[addr]
	return ok
}

// Keys returns the signing addresses
func (s Signers) Keys() []solana.PublicKey {
	keys := make([]solana.PublicKey, 0, len(s.keys))
	for k := range s.keys {
		keys = append(keys, k)
	}
	return keys
}
