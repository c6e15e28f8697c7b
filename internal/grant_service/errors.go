package grant_service

import "errors"

var (
	ErrNotInitialized = errors.New("grant service not started")
	ErrAlreadyStarted = errors.New("grant service already started")
	ErrUnknownAction  = errors.New("unknown grant action")
)
