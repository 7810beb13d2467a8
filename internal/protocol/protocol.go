// Package protocol defines the messages exchanged between the host and the
// agents running inside each embedded frame.
//
// Every payload is a flat JSON object carrying a "type" discriminator, the
// same shape a postMessage payload has. Anything arriving from a frame is
// untrusted: Decode rejects payloads whose discriminator is missing or
// unknown, and callers drop those without further inspection.
package protocol

import (
	"errors"
	"fmt"

	json "github.com/json-iterator/go"
)

// Type is the message discriminator.
type Type string

const (
	TypeScrollReport Type = "SCROLL_REPORT" // frame -> host
	TypeScrollSet    Type = "SCROLL_SET"    // host -> frame
	TypeNavIntent    Type = "NAV_INTENT"    // frame -> host, before an anchor navigation
	TypeNavigate     Type = "NAVIGATE"      // frame -> host, after the location changed
	TypePing         Type = "PING"          // host -> frame
	TypePong         Type = "PONG"          // frame -> host
)

var (
	// ErrMalformed is returned for payloads that are not a JSON object or
	// lack a field their type requires.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType is returned when the discriminator is missing or unrecognized.
	ErrUnknownType = errors.New("unknown message type")
)

var knownTypes = map[Type]struct{}{
	TypeScrollReport: {},
	TypeScrollSet:    {},
	TypeNavIntent:    {},
	TypeNavigate:     {},
	TypePing:         {},
	TypePong:         {},
}

// Known reports whether t is one of the protocol discriminators.
func (t Type) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// FromFrame reports whether messages of this type originate in a frame.
func (t Type) FromFrame() bool {
	switch t {
	case TypeScrollReport, TypeNavIntent, TypeNavigate, TypePong:
		return true
	}
	return false
}

// Message is the decoded form of any protocol payload. Only the fields
// relevant to Type are populated.
//
// The scroll fields are pointers so that a receiver can tell "absent" from
// zero: percentages win over the legacy pixel fields when both are present.
type Message struct {
	Type Type `json:"type"`

	ScrollTopPct  *float64 `json:"scrollTopPct,omitempty"`
	ScrollLeftPct *float64 `json:"scrollLeftPct,omitempty"`
	// Legacy pixel offsets, kept for senders that only know pixels.
	ScrollTop  *float64 `json:"scrollTop,omitempty"`
	ScrollLeft *float64 `json:"scrollLeft,omitempty"`

	URL   string `json:"url,omitempty"`
	Token string `json:"token,omitempty"`
}

// ScrollReport builds a SCROLL_REPORT carrying both fractions and the raw
// pixel offsets they were computed from.
func ScrollReport(topPct, leftPct, top, left float64) Message {
	return Message{
		Type:          TypeScrollReport,
		ScrollTopPct:  ptr(Clamp01(topPct)),
		ScrollLeftPct: ptr(Clamp01(leftPct)),
		ScrollTop:     ptr(finite(top)),
		ScrollLeft:    ptr(finite(left)),
	}
}

// ScrollSet builds a SCROLL_SET command from fractions.
func ScrollSet(topPct, leftPct float64) Message {
	return Message{
		Type:          TypeScrollSet,
		ScrollTopPct:  ptr(Clamp01(topPct)),
		ScrollLeftPct: ptr(Clamp01(leftPct)),
	}
}

func NavIntent(url string) Message { return Message{Type: TypeNavIntent, URL: url} }
func Navigate(url string) Message { return Message{Type: TypeNavigate, URL: url} }
func Ping(token string) Message { return Message{Type: TypePing, Token: token} }
func Pong(token, url string) Message { return Message{Type: TypePong, Token: token, URL: url} }

// AsCommand turns a scroll report into the SCROLL_SET that mirrors it onto
// another frame. Percentages are clamped; a report that only carried legacy
// pixels is forwarded with its pixels so the receiver can convert them.
func (m Message) AsCommand() Message {
	out := Message{Type: TypeScrollSet}
	if m.ScrollTopPct != nil {
		out.ScrollTopPct = ptr(Clamp01(*m.ScrollTopPct))
	} else if m.ScrollTop != nil {
		out.ScrollTop = ptr(finite(*m.ScrollTop))
	}
	if m.ScrollLeftPct != nil {
		out.ScrollLeftPct = ptr(Clamp01(*m.ScrollLeftPct))
	} else if m.ScrollLeft != nil {
		out.ScrollLeft = ptr(finite(*m.ScrollLeft))
	}
	return out
}

// Position is a scroll position resolved against a local extent. An axis
// the message did not carry is reported absent and left at zero.
type Position struct {
	Top, Left       float64
	HasTop, HasLeft bool
}

// Position resolves the scroll position carried by m against the local
// extent. Percentage fields take precedence; legacy pixels are converted.
// Present axes are always within [0,1].
func (m Message) Position(local Extent) Position {
	var p Position
	switch {
	case m.ScrollTopPct != nil:
		p.Top, p.HasTop = Clamp01(*m.ScrollTopPct), true
	case m.ScrollTop != nil:
		p.Top, p.HasTop = Fraction(*m.ScrollTop, local.ScrollHeight, local.ClientHeight), true
	}
	switch {
	case m.ScrollLeftPct != nil:
		p.Left, p.HasLeft = Clamp01(*m.ScrollLeftPct), true
	case m.ScrollLeft != nil:
		p.Left, p.HasLeft = Fraction(*m.ScrollLeft, local.ScrollWidth, local.ClientWidth), true
	}
	return p
}

func (m Message) hasPosition() bool {
	return m.ScrollTopPct != nil || m.ScrollLeftPct != nil || m.ScrollTop != nil || m.ScrollLeft != nil
}

// Decode parses and validates a payload. Callers treat any error as a
// reason to drop the payload silently.
func Decode(data []byte) (Message, error) {
	var m Message
	if len(data) == 0 {
		return m, ErrMalformed
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Validate checks the discriminator and the fields its type requires.
func (m Message) Validate() error {
	if !m.Type.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownType, string(m.Type))
	}
	switch m.Type {
	case TypeScrollReport, TypeScrollSet:
		if !m.hasPosition() {
			return fmt.Errorf("%w: %s without a position", ErrMalformed, m.Type)
		}
	case TypeNavIntent, TypeNavigate:
		if m.URL == "" {
			return fmt.Errorf("%w: %s without url", ErrMalformed, m.Type)
		}
	case TypePing, TypePong:
		if m.Token == "" {
			return fmt.Errorf("%w: %s without token", ErrMalformed, m.Type)
		}
	}
	return nil
}

// Encode serializes m. The message is validated first so a bad value never
// leaves the process.
func Encode(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", m.Type, err)
	}
	return data, nil
}

func ptr(f float64) *float64 { return &f }
