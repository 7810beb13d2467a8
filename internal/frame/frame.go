// Package frame holds the small set of types shared by everything that
// talks about one of the two embedded documents: an opaque handle used to
// identify message sources, the liveness status enum, and the navigation
// target the host exposes per frame.
package frame

import "fmt"

// Handle identifies a frame endpoint on the message channel. It is opaque:
// callers compare handles, they never look inside the document behind one.
type Handle string

// NoHandle is the zero Handle. It never matches a registered frame.
const NoHandle Handle = ""

// Status is the per-frame liveness state.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusChecking
	StatusLoaded
	StatusBlocked
)

var statusNames = [...]string{
	StatusIdle:     "idle",
	StatusLoading:  "loading",
	StatusChecking: "checking",
	StatusLoaded:   "loaded",
	StatusBlocked:  "blocked",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// Terminal reports whether no further transition happens until the URL changes.
func (s Status) Terminal() bool {
	return s == StatusLoaded || s == StatusBlocked
}

// Target is the frame-hosting surface for a single frame: a handle to send
// it messages plus its current navigation target.
type Target interface {
	Handle() Handle
	// URL returns the frame's current navigation target.
	URL() string
	// SetURL reassigns the navigation target, which reloads the frame.
	SetURL(url string)
}
