package service

import "errors"

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrCallbackRejected     = errors.New("redirect callback rejected")
	ErrChecksumMismatch     = errors.New("checksum mismatch")
	ErrInconsistentTokens   = errors.New("more than one vault token stored for customer")
	ErrRecurringDisabled    = errors.New("recurring payments are disabled for the gateway")
	ErrOrderNotPending      = errors.New("order is no longer awaiting payment")
	ErrBatchDisabled        = errors.New("recurring and / or vaulting not enabled for the gateway")
	ErrBatchEmptied         = errors.New("every batch line was rejected by paybatch")
	ErrBatchConfirmRejected = errors.New("paybatch rejected the batch confirmation")
	ErrBatchExhausted       = errors.New("paybatch authorisation did not converge")
)
