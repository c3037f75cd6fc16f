package platform

import (
	"errors"
	"fmt"
)

// Error is a structured error returned by the platform API.
// Callers extract it with errors.As:
//
//	var perr *platform.Error
//	if errors.As(err, &perr) && perr.Code == platform.CodeUnknownChannel { ... }
type Error struct {
	// Code is the platform's JSON error code (zero when the body carried none).
	Code int `json:"code"`
	// Message is the human-readable error from the platform.
	Message string `json:"message"`
	// Status is the HTTP status of the response.
	Status int `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("platform: %d (%d): %s", e.Code, e.Status, e.Message)
}

// Known platform error codes.
const (
	CodeUnknownChannel     = 10003
	CodeUnknownGuild       = 10004
	CodeUnknownInteraction = 10062
	CodeMissingAccess      = 50001
	CodeMissingPermissions = 50013
)

// ErrNoGuild is returned when the bot is not a member of any server.
var ErrNoGuild = errors.New("bot is not in any Discord server")

// IsCode checks whether err is an *Error with the given code.
func IsCode(err error, code int) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Code == code
	}
	return false
}
