// File: internal/content/chunker.go
package content

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// cutPoint returns the byte length of the longest prefix of s whose encoded
// size fits in limit bytes (quotes included). When the whole string does not
// fit, it prefers to cut after the last newline, then after the last space,
// then at a rune boundary. It always returns at least one rune so splitting
// makes progress.
func (e Estimator) cutPoint(s string, limit int, preferBreaks bool) int {
	used := 2
	lastNewline, lastSpace := -1, -1
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		cost := e.runeCost(r, size)
		if used+cost > limit {
			if i == 0 {
				return size
			}
			if preferBreaks {
				if lastNewline > 0 {
					return lastNewline
				}
				if lastSpace > 0 {
					return lastSpace
				}
			}
			return i
		}
		used += cost
		i += size
		switch r {
		case '\n':
			lastNewline = i
		case ' ', '\t':
			lastSpace = i
		}
	}
	return len(s)
}

// splitText cuts s into pieces of at most limit encoded bytes each, breaking
// at newlines or spaces where possible.
func (e Estimator) splitText(s string, limit int) []string {
	var out []string
	for len(s) > 0 {
		n := e.cutPoint(s, limit, true)
		out = append(out, s[:n])
		s = s[n:]
	}
	return out
}

// splitRaw cuts s at rune boundaries only. Used for encoded binary payloads.
func (e Estimator) splitRaw(s string, limit int) []string {
	var out []string
	for len(s) > 0 {
		n := e.cutPoint(s, limit, false)
		out = append(out, s[:n])
		s = s[n:]
	}
	return out
}

// splitHTML packs whole tokens into pieces of at most limit encoded bytes.
// Pieces only end on token boundaries, except for a single token that is
// larger than limit on its own, which is split as text.
func (e Estimator) splitHTML(s string, limit int) []string {
	var (
		out     []string
		current strings.Builder
		used    = 2
		offset  int
	)

	flush := func() {
		if current.Len() > 0 {
			out = append(out, current.String())
			current.Reset()
			used = 2
		}
	}

	add := func(raw string) {
		cost := e.Estimate(raw).Bytes - 2
		if used+cost <= limit {
			current.WriteString(raw)
			used += cost
			return
		}
		flush()
		if 2+cost <= limit {
			current.WriteString(raw)
			used += cost
			return
		}
		pieces := e.splitText(raw, limit)
		out = append(out, pieces[:len(pieces)-1]...)
		last := pieces[len(pieces)-1]
		current.WriteString(last)
		used += e.Estimate(last).Bytes - 2
	}

	z := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := z.Next()
		// Raw is only valid until the next call to Next.
		raw := string(z.Raw())
		if tt == html.ErrorToken {
			if raw != "" {
				add(raw)
				offset += len(raw)
			}
			// io.EOF or a tokenizer error; the remainder is handled below.
			break
		}
		add(raw)
		offset += len(raw)
	}

	// The tokenizer consumes the whole input; anything left over is kept
	// verbatim so the pieces always reassemble to s.
	if offset < len(s) {
		add(s[offset:])
	}
	flush()
	return out
}
