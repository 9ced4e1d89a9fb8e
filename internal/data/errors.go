package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	ErrUserIDRequired = errors.New("user_id is required")
	ErrKeyRequired    = errors.New("key cannot be empty")
)
