package model

import "errors"

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrUpstream          = errors.New("upstream failure")
	ErrNotFound          = errors.New("not found")
)
