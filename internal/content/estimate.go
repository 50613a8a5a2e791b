// File: internal/content/estimate.go
package content

import (
	"unicode/utf8"
)

// Estimate is the size of a string once encoded as a JSON string value.
type Estimate struct {
	// Bytes is the encoded size, including the surrounding quotes.
	Bytes int `json:"bytes"`
	Runes int `json:"runes"`
	Units int `json:"units"`
}

// Estimator converts strings into budget units in a single pass. It mirrors
// the escaping rules of the response encoder (HTML-safe JSON).
type Estimator struct {
	BytesPerUnit int
	// EscapeHTML accounts for <, > and & being written as \u003c style escapes.
	EscapeHTML bool
}

// NewEstimator returns an estimator with HTML escaping enabled.
func NewEstimator(bytesPerUnit int) Estimator {
	if bytesPerUnit < 1 {
		bytesPerUnit = 1
	}
	return Estimator{BytesPerUnit: bytesPerUnit, EscapeHTML: true}
}

// Estimate walks s once and returns its encoded size.
func (e Estimator) Estimate(s string) Estimate {
	bytes := 2
	runes := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		bytes += e.runeCost(r, size)
		runes++
		i += size
	}
	return Estimate{Bytes: bytes, Runes: runes, Units: e.UnitsFor(bytes)}
}

// UnitsFor converts an encoded byte count into units, rounding up.
func (e Estimator) UnitsFor(bytes int) int {
	per := e.BytesPerUnit
	if per < 1 {
		per = 1
	}
	return (bytes + per - 1) / per
}

// BytesFor is the largest encoded byte count that fits in units.
func (e Estimator) BytesFor(units int) int {
	per := e.BytesPerUnit
	if per < 1 {
		per = 1
	}
	return units * per
}

// runeCost is the number of bytes the JSON encoder writes for one decoded rune.
// size is the number of source bytes the rune occupied.
func (e Estimator) runeCost(r rune, size int) int {
	if r == utf8.RuneError && size == 1 {
		// Invalid UTF-8 is written as \ufffd.
		return 6
	}
	if r < utf8.RuneSelf {
		switch {
		case r == '"' || r == '\\':
			return 2
		case r == '\n' || r == '\r' || r == '\t':
			return 2
		case r < 0x20:
			return 6
		case e.EscapeHTML && (r == '<' || r == '>' || r == '&'):
			return 6
		default:
			return 1
		}
	}
	if r == '\u2028' || r == '\u2029' {
		return 6
	}
	return size
}
