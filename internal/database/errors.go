package database

import "errors"

// Sentinels returned by every store implementation, wrapped with %w
var (
	ErrNotFound  = errors.New("document not found")
	ErrDuplicate = errors.New("duplicate key")
)
