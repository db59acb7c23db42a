package database

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrNotAvailable           = errors.New("resource is not available for the requested window")
	ErrConcurrentModification = errors.New("record was modified concurrently")
	ErrInvalidWindow          = errors.New("start must be before end")
	ErrPastDate               = errors.New("window starts in the past")
	ErrDateTooFar             = errors.New("window is too far in the future")
	ErrResourceNotBookable    = errors.New("resource is not bookable")
	ErrInvalidTransition      = errors.New("status transition is not allowed")
)
