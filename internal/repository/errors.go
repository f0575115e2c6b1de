package repository

import "errors"

// Repository errors
var (
	// ErrUnknownDriver indicates no backend is registered under the configured driver name.
	ErrUnknownDriver = errors.New("unknown database driver")
)
