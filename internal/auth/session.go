package auth

import (
	"time"

	"github.com/google/uuid"
)

// State says what is known about the caller of a request.
type State int

const (
	// Unresolved means no token has been looked at yet.
	Unresolved State = iota
	// Anonymous means the caller presented no usable token.
	Anonymous
	// Authenticated means the caller presented a valid, unrevoked token.
	Authenticated
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	default:
		return "unresolved"
	}
}

// Session is the resolved identity of a caller. Handlers receive it as an
// argument; the zero value is an unresolved session.
type Session struct {
	State     State
	UserID    uuid.UUID
	TokenID   string
	ExpiresAt time.Time
}

func (s Session) Authenticated() bool {
	return s.State == Authenticated
}

// AnonymousSession is the session of a caller without a usable token.
func AnonymousSession() Session {
	return Session{State: Anonymous}
}
