package server

import "errors"

var (
	ErrServerStartFailed = errors.New("failed to start coordinator server")
	ErrServerStopFailed  = errors.New("failed to stop coordinator server")

	ErrInvalidPayloadType   = errors.New("invalid payload type for message")
	ErrHandlerNotRegistered = errors.New("no handler registered for message type")
)
