package models

import (
	"time"
)

// Direction classifies a call or span relative to the owning service.
type Direction string

const (
	// Inbound spans act as the server side of a call ("server"/"consumer").
	Inbound Direction = "Inbound"
	// Outbound spans initiate a call ("client"/"producer").
	Outbound Direction = "Outbound"
	// Unknown covers spans without a kind tag, and halves of corrupted calls.
	Unknown Direction = "Unknown"
)

// DirectionFromKind maps a span.kind tag value to a Direction.
func DirectionFromKind(kind string) Direction {
	switch kind {
	case "server", "consumer":
		return Inbound
	case "client", "producer":
		return Outbound
	default:
		return Unknown
	}
}

// ParseDirection maps the canonical textual form back to a Direction.
// Unrecognised input yields Unknown.
func ParseDirection(s string) Direction {
	switch s {
	case string(Inbound):
		return Inbound
	case string(Outbound):
		return Outbound
	default:
		return Unknown
	}
}

// Service describes the process that emitted a span, flattened from the
// bundle's process map.
type Service struct {
	Name          string `json:"name"`
	ServerName    string `json:"server_name,omitempty"`
	IP            string `json:"ip,omitempty"`
	TracerVersion string `json:"tracer_version,omitempty"`
}

// NoParent marks a span without a parent reference.
const NoParent = -1

// Span is a single reconstructed unit of work within a trace. Parent is an
// index into the owning trace's span list, NoParent for a (potential) root.
// IsLeaf and Rooted are derived by the reconstructor, never set by callers.
type Span struct {
	SpanID        string            `json:"span_id"`
	Parent        int               `json:"parent"`
	IsLeaf        bool              `json:"is_leaf"`
	Rooted        bool              `json:"rooted"`
	OperationName string            `json:"operation_name"`
	// FullOperationName retains the original name when unification rewrote it.
	FullOperationName string        `json:"full_operation_name,omitempty"`
	Process       *Service          `json:"process,omitempty"`
	StartTime     time.Time         `json:"start_time"`
	DurationMicros int64            `json:"duration_micros"`
	Kind          Direction         `json:"kind"`
	HTTPStatusCode *int             `json:"http_status_code,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	Logs          []SpanLog         `json:"logs,omitempty"`
}

// SpanLog is a log record attached to a span.
type SpanLog struct {
	TimestampMicros int64  `json:"timestamp_micros"`
	Level           string `json:"level"`
	Message         string `json:"message"`
}

// ProcessName returns the emitting service's name, "-" when the process
// reference could not be resolved.
func (s *Span) ProcessName() string {
	if s.Process == nil {
		return "-"
	}
	return s.Process.Name
}

// HTTPNotOK returns the status code when it is present and not 200.
func (s *Span) HTTPNotOK() (int, bool) {
	if s.HTTPStatusCode != nil && *s.HTTPStatusCode != 200 {
		return *s.HTTPStatusCode, true
	}
	return 0, false
}

// ErrorLogs returns the messages of all ERROR-level log records.
func (s *Span) ErrorLogs() []string {
	var msgs []string
	for _, l := range s.Logs {
		if l.Level == "ERROR" {
			msgs = append(msgs, l.Message)
		}
	}
	return msgs
}
