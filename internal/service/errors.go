package service

import "errors"

// Common service errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("resource not found")
)

// Matchmaking errors
var (
	ErrInvalidMode    = errors.New("invalid game mode")
	ErrNotInQueue     = errors.New("player not in queue")
	ErrNoProblems     = errors.New("no problems available")
	ErrScanInProgress = errors.New("scan already in progress")
)

// Match engine errors
var (
	ErrMatchNotFound    = errors.New("match not found")
	ErrRoomNotFound     = errors.New("room not found for match")
	ErrRoomExists       = errors.New("room already exists for match")
	ErrPlayerNotInMatch = errors.New("player not in match")
	ErrUnknownProblem   = errors.New("problem not in match")
	ErrBadTransition    = errors.New("invalid match state transition")
)

// Submission pipeline errors
var (
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrMalformedJob       = errors.New("malformed submission job")
)
