// Package locker implements time-locked escrow of fungible assets.
//
// A lock escrows a balance in a vault account that no key controls. The
// vault's authority is derived from the lock address and the program
// identity, so only the engine can move funds out of it, and only after the
// owner signs and the unlock date has passed.
//
// Lifecycle:
//
//	CreateLock -> (Relock | TransferOwnership | Increment | Split)* -> Withdraw* -> Close
//
// Every operation runs as one ledger update: the clock is read once, all
// state is re-read inside the transaction, and any error leaves the ledger
// untouched. Failures carry an *Error with a stable numeric code, see
// CodeOf.
//
// Deposits are charged a fee from the Config record, either a flat amount
// of native units or a proportional cut of the deposited asset, paid on top
// of the deposit.
package locker
