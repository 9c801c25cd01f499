package locker

import (
	"errors"
	"fmt"
)

// Error is a typed engine failure with a stable numeric code.
type Error struct {
	Code uint32
	Name string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

var (
	ErrUnlockInThePast            = &Error{6000, "UnlockInThePast", "the given unlock date is in the past"}
	ErrInvalidTimestamp           = &Error{6001, "InvalidTimestamp", "invalid timestamp"}
	ErrIntegerOverflow            = &Error{6002, "IntegerOverflow", "integer overflow"}
	ErrNothingToLock              = &Error{6003, "NothingToLock", "nothing to lock"}
	ErrInvalidAmountTransferred   = &Error{6004, "InvalidAmountTransferred", "transferred amount does not match the requested amount"}
	ErrInvalidPeriod              = &Error{6005, "InvalidPeriod", "lock period too long"}
	ErrCannotUnlockToEarlierDate  = &Error{6006, "CannotUnlockToEarlierDate", "cannot unlock to an earlier date"}
	ErrTooEarlyToWithdraw         = &Error{6007, "TooEarlyToWithdraw", "too early to withdraw"}
	ErrInvalidAmount              = &Error{6008, "InvalidAmount", "invalid amount"}
	ErrInitAssetInfoNotAuthorized = &Error{6009, "InitAssetInfoNotAuthorized", "asset info change not authorized"}
	ErrUnauthorized               = &Error{6010, "Unauthorized", "required signer missing"}
	ErrInvalidVaultAuthority      = &Error{6011, "InvalidVaultAuthority", "vault is not controlled by the derived authority"}
	ErrInvalidFeeRate             = &Error{6012, "InvalidFeeRate", "invalid fee configuration"}
	ErrConfigAlreadyInitialized   = &Error{6013, "ConfigAlreadyInitialized", "config already initialized"}
	ErrConfigNotInitialized       = &Error{6014, "ConfigNotInitialized", "config not initialized"}
	ErrVaultNotEmpty              = &Error{6015, "VaultNotEmpty", "vault still holds funds"}
	ErrMintMismatch               = &Error{6016, "MintMismatch", "account holds a different asset"}
)

// CodeOf returns the engine error code carried by err.
func CodeOf(err error) (uint32, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

// NameOf returns the engine error name carried by err, or "" if none.
func NameOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Name
	}
	return ""
}
