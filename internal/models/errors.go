package models

import "errors"

// Sentinel errors for round and market operations.
// The api layer maps these to HTTP status codes.
var (
	ErrRoundNotFound         = errors.New("round not found")
	ErrRoundFull             = errors.New("round is full")
	ErrRoundNotWaiting       = errors.New("round has already started")
	ErrRoundNotInProgress    = errors.New("round is not in progress")
	ErrNotEnoughParticipants = errors.New("at least two participants are required")
	ErrParticipantsNotReady  = errors.New("all participants must be ready")
	ErrParticipantNotFound   = errors.New("participant not in round")
	ErrOrderNotFound         = errors.New("order not found")
	ErrAlreadyJoined         = errors.New("participant already in round")
	ErrMarketExists          = errors.New("market question already exists")
	ErrUnknownLevel          = errors.New("unknown bot level")
	ErrShuttingDown          = errors.New("server is shutting down")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Sentinel errors for users and authentication.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid token")
)
