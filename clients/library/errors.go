package storelib

import "errors"

var (
	ErrNotStarted          = errors.New("client not started")
	ErrNotReady            = errors.New("grant has not arrived")
	ErrNoActiveTransaction = errors.New("no active transaction")
	ErrTransactionActive   = errors.New("transaction already active")
	ErrRequestRejected     = errors.New("coordinator rejected request")
)
