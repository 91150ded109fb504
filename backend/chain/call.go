// Package chain models call chains: the canonical path from a trace's root
// to a particular span, plus the textual key format used in catalogue files,
// CSV output and serialised statistics.
package chain

import (
	"fmt"
	"strings"

	"github.com/spanlens/spanlens/internal/models"
)

// Call is a single step on a path: one service/operation with the direction
// the call was observed in.
type Call struct {
	Service   string           `json:"process" msgpack:"process"`
	Operation string           `json:"method" msgpack:"method"`
	Direction models.Direction `json:"call_direction" msgpack:"call_direction"`
}

// ServiceOper returns the "service/operation" label of this call.
func (c Call) ServiceOper() string {
	return c.Service + "/" + c.Operation
}

// String renders the canonical form; the direction suffix is omitted for
// Unknown.
func (c Call) String() string {
	if c.Direction == models.Unknown || c.Direction == "" {
		return c.Service + "/" + c.Operation
	}
	return c.Service + "/" + c.Operation + " [" + string(c.Direction) + "]"
}

// Equal ignores the direction: two calls match when service and operation
// match. Repair and graph lookups compare this way.
func (c Call) Equal(other Call) bool {
	return c.Service == other.Service && c.Operation == other.Operation
}

// ParseCall parses a single canonical call ("svc/oper" or "svc/oper [Dir]").
func ParseCall(s string) (Call, error) {
	s = strings.TrimSpace(s)
	svc, operDir, found := strings.Cut(s, "/")
	if !found {
		return Call{}, fmt.Errorf("cannot split %q into a service/operation pair", s)
	}
	oper, dir, hasDir := strings.Cut(operDir, "[")
	direction := models.Unknown
	if hasDir {
		direction = models.ParseDirection(strings.TrimSuffix(strings.TrimSpace(dir), "]"))
	}
	return Call{
		Service:   strings.TrimSpace(svc),
		Operation: strings.TrimSpace(oper),
		Direction: direction,
	}, nil
}
