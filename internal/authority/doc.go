// Package authority derives key-less controller addresses for lock vaults.
//
// A vault authority is a program-derived address:
//   - sha256(lock address || bump || program id || "ProgramDerivedAddress")
//   - rejected when the hash is a valid ed25519 point, so no private key exists
//   - bump is the smallest value in 0..255 that yields an off-curve address
//
// The only way to obtain a Capability is to derive it. A Capability checks a
// vault's declared controller before any transfer and is never stored as a
// credential; the lock record keeps only the bump.
package authority
