package relay

import (
	"errors"
	"fmt"

	"github.com/spec-kit/ticket-relay/internal/platform"
)

// ErrUnknownTicket is returned for operations on a ticket that is not open.
var ErrUnknownTicket = errors.New("ticket not found")

// ErrorKind is the relay's classification of a platform failure.
type ErrorKind int

const (
	// KindTransient failures leave the ticket open; the sender may retry.
	KindTransient ErrorKind = iota
	// KindChannelGone failures mean the ticket's channel or our access to it was removed.
	KindChannelGone
)

func (k ErrorKind) String() string {
	switch k {
	case KindChannelGone:
		return "channel_gone"
	default:
		return "transient"
	}
}

// channelGoneCodes are the platform codes that terminally end a ticket.
var channelGoneCodes = map[int]struct{}{
	platform.CodeUnknownChannel: {},
	platform.CodeMissingAccess:  {},
}

// Classify maps a raw collaborator error onto the relay's error kinds.
func Classify(err error) ErrorKind {
	var perr *platform.Error
	if errors.As(err, &perr) {
		if _, ok := channelGoneCodes[perr.Code]; ok {
			return KindChannelGone
		}
	}
	return KindTransient
}

// PlatformError reports a ticket that could not be created because the platform refused.
type PlatformError struct {
	Op  string
	Err error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}
