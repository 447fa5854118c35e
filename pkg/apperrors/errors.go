package apperrors

import "errors"

var (
	ErrCacheMiss         = errors.New("cache miss")
	ErrNotFound          = errors.New("not found")
	ErrPipelineCancelled = errors.New("pipeline cancelled")
)
