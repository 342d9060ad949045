// Package services defines the business logic for conversations and
// complaints. This file centralizes common service-level error values so that
// they can be consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrEmptyMessage is returned when a conversation request contains an
	// empty message.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTooLong is returned when a message exceeds the maximum configured
	// length limit.
	ErrTooLong = errors.New("message too long")

	// ErrComplaintNotFound indicates that the requested complaint does not
	// exist.
	ErrComplaintNotFound = errors.New("complaint not found")

	// ErrSessionNotFound indicates that the requested session has no state
	// on this server.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidStatus is returned when a status update names a value outside
	// the allowed set (Open, In Progress, Resolved).
	ErrInvalidStatus = errors.New("invalid complaint status")
)
