package service

import "errors"

var (
	ErrTooManyRequests = errors.New("too many booking requests, try again later")
	ErrValidation      = errors.New("validation failed")
)
