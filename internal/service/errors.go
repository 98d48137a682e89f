package service

import "errors"

var (
	// ErrMalformedCallback: the callback is missing its pay_id or status.
	// Rejected before any store access, no side effects.
	ErrMalformedCallback = errors.New("malformed callback: pay_id and status are required")

	// ErrUnknownTransaction: no stored transaction carries the callback's
	// pay_id. The callback is logged and dropped; a record is never
	// created implicitly.
	ErrUnknownTransaction = errors.New("unknown transaction")

	// ErrConcurrentUpdate: the CAS retry budget was exhausted because the
	// row kept changing under us.
	ErrConcurrentUpdate = errors.New("concurrent update, retries exhausted")

	// ErrAlreadyFinal: an administrative action targeted a transaction
	// that already reached a terminal status.
	ErrAlreadyFinal = errors.New("transaction already in a terminal status")
)
