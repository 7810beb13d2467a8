package host

import (
	"fmt"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/dualview/internal/agent"
)

// SignalKind identifies what a binding call reports.
type SignalKind string

const (
	// Sent by the shim inside a frame document.
	SignalHello    SignalKind = "hello"
	SignalScroll   SignalKind = "scroll"
	SignalMetrics  SignalKind = "metrics"
	SignalLocation SignalKind = "location"
	SignalAnchor   SignalKind = "anchor"

	// Sent by the host page itself.
	SignalReady SignalKind = "ready"
	SignalLoad  SignalKind = "load"
)

// Signal is one binding payload. Frame documents are untrusted, so every
// field is optional and validated by the consumer.
type Signal struct {
	Kind    SignalKind     `json:"kind"`
	Href    string         `json:"href,omitempty"`
	Metrics *agent.Metrics `json:"metrics,omitempty"`
	RawHref string         `json:"rawHref,omitempty"`
	// Frame names the iframe a host page signal is about.
	Frame string `json:"frame,omitempty"`
}

// DecodeSignal parses a binding payload.
func DecodeSignal(payload string) (Signal, error) {
	var s Signal
	if err := json.UnmarshalFromString(payload, &s); err != nil {
		return Signal{}, fmt.Errorf("failed to decode signal: %w", err)
	}
	switch s.Kind {
	case SignalHello, SignalScroll, SignalMetrics, SignalLocation, SignalAnchor, SignalReady, SignalLoad:
		return s, nil
	}
	return Signal{}, fmt.Errorf("unknown signal kind %q", s.Kind)
}

// contextAux is the auxData of runtime.ExecutionContextDescription.
type contextAux struct {
	IsDefault bool   `json:"isDefault"`
	Type      string `json:"type"`
	FrameID   string `json:"frameId"`
}

func decodeContextAux(raw []byte) (contextAux, error) {
	var aux contextAux
	if len(raw) == 0 {
		return aux, fmt.Errorf("empty auxData")
	}
	if err := json.Unmarshal(raw, &aux); err != nil {
		return aux, fmt.Errorf("failed to decode auxData: %w", err)
	}
	return aux, nil
}
