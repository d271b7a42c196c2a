package model

import "errors"

// Common errors used across the application
var (
	// Lobby errors
	ErrLobbyNotFound    = errors.New("lobby not found")
	ErrLobbyFull        = errors.New("lobby is full")
	ErrGameInProgress   = errors.New("game is in progress")
	ErrNotEnoughPlayers = errors.New("no connected players to start the game")
	ErrWrongPasscode    = errors.New("wrong lobby passcode")
	ErrInvalidName      = errors.New("invalid display name")
	ErrMemberNotFound   = errors.New("member not found")
	ErrNameTaken        = errors.New("display name or address already in use")
	ErrAnomaly          = errors.New("reservation collides with a live connection")

	// Credential errors
	ErrMalformedToken = errors.New("malformed token")
	ErrTokenExpired   = errors.New("token expired")
	ErrMissingClaims  = errors.New("token is missing required claims")
)
