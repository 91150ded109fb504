// Package floatfmt renders floating-point values for CSV output. A
// process-wide flag switches the decimal separator from '.' to ',' so the
// files open correctly in spreadsheets configured for comma-decimal locales.
package floatfmt

import (
	"strconv"
	"strings"
	"sync/atomic"
)

var commaFloat atomic.Bool

// SetCommaFloat switches the decimal separator used by Format. Set once
// during bootstrap; safe for concurrent reads.
func SetCommaFloat(enabled bool) {
	commaFloat.Store(enabled)
}

// CommaFloat reports the current separator mode.
func CommaFloat() bool {
	return commaFloat.Load()
}

// Format renders val with the shortest representation that round-trips,
// applying the comma-separator flag.
func Format(val float64) string {
	s := strconv.FormatFloat(val, 'f', -1, 64)
	if commaFloat.Load() {
		return strings.ReplaceAll(s, ".", ",")
	}
	return s
}

// FormatOpt renders an optional value; nil becomes "--".
func FormatOpt(val *float64) string {
	if val == nil {
		return "--"
	}
	return Format(*val)
}

// Join renders a slice of optional values separated by sep. Nil entries
// become empty cells.
func Join(vals []*float64, sep string) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		if v != nil {
			parts[i] = Format(*v)
		}
	}
	return strings.Join(parts, sep)
}
