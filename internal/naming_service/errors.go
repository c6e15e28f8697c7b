package naming_service

import "errors"

var (
	ErrInvalidMetadata = errors.New("invalid file metadata")
	ErrHookFailed      = errors.New("naming hook failed")
)
