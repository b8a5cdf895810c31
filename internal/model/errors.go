package model

import (
	"errors"
)

var (
	ErrTooBig  = errors.New("file too big")
	ErrNoMatch = errors.New("no match")
	// ErrUnsupportedDataSource is returned for a data source type without
	// an implementation.
	ErrUnsupportedDataSource = errors.New("unsupported data source")
)
