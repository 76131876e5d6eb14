package store

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrCapacity = errors.New("daily appointment capacity reached")
)
