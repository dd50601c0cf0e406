package services

import (
	"errors"

	"amega-vpn-bot/internal/db"
)

var (
	ErrNotFound             = db.ErrNotFound
	ErrNoKeyAvailable       = errors.New("no key available")
	ErrAlreadyProcessed     = errors.New("payment already processed")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrMalformedInput       = errors.New("malformed input")
)
