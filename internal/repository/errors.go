package repository

import "errors"

var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrQueueEmpty        = errors.New("queue is empty")
	ErrBrowserLaunch     = errors.New("failed to launch browser")
	ErrNavigationFailed  = errors.New("navigation failed")
	ErrSelectorTimeout   = errors.New("timed out waiting for selector")
	ErrAIUnavailable     = errors.New("ai provider unavailable")
)
