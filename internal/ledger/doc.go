// Package ledger provides the BBolt-backed value ledger the locker engine runs on.
//
// Database structure uses five buckets:
//   - meta: schema version and creation time
//   - mints: asset definitions (authority, decimals, supply, transfer fee)
//   - tokens: value-holding accounts (mint, controlling authority, balance)
//   - native: native ledger-unit balances used for flat fees
//   - records: program-owned records, an 8-byte discriminator followed by borsh data
//
// Every Update call is one BBolt read-write transaction. BBolt admits a single
// writer at a time, so transitions against the same records are serialized
// and a transition that returns an error leaves no trace.
//
// Transfers out of an account must be authorized by an Authorizer that allows
// the account's controlling authority: a set of signers, or a derived
// capability for key-less vault authorities.
package ledger
