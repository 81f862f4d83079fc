package domain

import "errors"

var (
	ErrInvalidState      = errors.New("invalid game state")
	ErrRoundCountChanged = errors.New("round count changed")
	ErrNoActiveRound     = errors.New("no active round")
	ErrGameNotFinished   = errors.New("game not finished")
	ErrUnknownSuspect    = errors.New("unknown suspect")
)
