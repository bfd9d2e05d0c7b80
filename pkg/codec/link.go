package codec

import (
	"bytes"
	"fmt"
	"strings"
)

// Param is one link attribute. An empty Value renders as a bare key.
type Param struct {
	Key   string
	Value string
}

// Link is one CoRE link-format entry (RFC 6690).
type Link struct {
	Target string
	Params []Param
}

// Param returns the value of attribute key.
func (l Link) Param(key string) (string, bool) {
	for _, p := range l.Params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// String renders the link as "<target>;key=value".
func (l Link) String() string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(l.Target)
	b.WriteByte('>')
	for _, p := range l.Params {
		b.WriteByte(';')
		b.WriteString(p.Key)
		if p.Value != "" {
			b.WriteByte('=')
			b.WriteString(p.Value)
		}
	}
	return b.String()
}

// FormatLinks renders links separated by commas.
func FormatLinks(links []Link) []byte {
	var b bytes.Buffer
	for i, l := range links {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(l.String())
	}
	return b.Bytes()
}

// ParseLinks parses a link-format document.
func ParseLinks(data []byte) ([]Link, error) {
	s := strings.TrimSpace(string(data))
	if s == "" {
		return nil, nil
	}

	var links []Link
	for _, entry := range splitOutside(s, ',') {
		entry = strings.TrimSpace(entry)
		if !strings.HasPrefix(entry, "<") {
			return nil, fmt.Errorf("%w: link %q does not start with <", ErrInvalidPayload, entry)
		}
		end := strings.IndexByte(entry, '>')
		if end < 0 {
			return nil, fmt.Errorf("%w: link %q has no closing >", ErrInvalidPayload, entry)
		}
		l := Link{Target: entry[1:end]}
		for _, attr := range splitOutside(entry[end+1:], ';') {
			attr = strings.TrimSpace(attr)
			if attr == "" {
				continue
			}
			k, v, _ := strings.Cut(attr, "=")
			l.Params = append(l.Params, Param{Key: k, Value: v})
		}
		links = append(links, l)
	}
	return links, nil
}

// splitOutside splits s on sep, ignoring separators inside <> and quotes.
func splitOutside(s string, sep byte) []string {
	var (
		parts   []string
		start   int
		inAngle bool
		inQuote bool
	)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '"':
			inQuote = !inQuote
		case c == '<' && !inQuote:
			inAngle = true
		case c == '>' && !inQuote:
			inAngle = false
		case c == sep && !inAngle && !inQuote:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
