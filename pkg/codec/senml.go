package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lwm2m-node/lwm2m-go/pkg/model"
	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

// senmlRecord is one SenML record (RFC 8428). CBOR uses the integer labels
// from the RFC; JSON uses the short names.
type senmlRecord struct {
	BaseName    string   `json:"bn,omitempty" cbor:"-2,keyasint,omitempty"`
	Name        string   `json:"n,omitempty" cbor:"0,keyasint,omitempty"`
	Value       *float64 `json:"v,omitempty" cbor:"2,keyasint,omitempty"`
	StringValue *string  `json:"vs,omitempty" cbor:"3,keyasint,omitempty"`
	BoolValue   *bool    `json:"vb,omitempty" cbor:"4,keyasint,omitempty"`
	DataValue   []byte   `json:"-" cbor:"8,keyasint,omitempty"`

	// DataText carries vd in JSON as base64url.
	DataText string `json:"vd,omitempty" cbor:"-"`
}

func (r *senmlRecord) set(v any) bool {
	switch x := v.(type) {
	case string:
		r.StringValue = &x
	case bool:
		r.BoolValue = &x
	case []byte:
		r.DataValue = x
	default:
		f, ok := model.ToFloat64(v)
		if !ok {
			return false
		}
		r.Value = &f
	}
	return true
}

func (r *senmlRecord) value() (any, bool) {
	switch {
	case r.Value != nil:
		return *r.Value, true
	case r.StringValue != nil:
		return *r.StringValue, true
	case r.BoolValue != nil:
		return *r.BoolValue, true
	case r.DataValue != nil:
		return r.DataValue, true
	default:
		return nil, false
	}
}

// senmlRecords flattens value into records. The first record carries the
// numeric path as base name.
func (c *Codec) senmlRecords(p model.Path, value any) []senmlRecord {
	base := p.Numeric(c.resolver)
	v := c.wireKeys(p, value)

	var recs []senmlRecord
	if _, ok := v.(map[string]any); ok {
		base += "/"
		flatten(&recs, "", v)
	} else {
		var r senmlRecord
		if r.set(v) {
			recs = append(recs, r)
		}
	}
	if len(recs) == 0 {
		recs = append(recs, senmlRecord{})
	}
	recs[0].BaseName = base
	return recs
}

func flatten(recs *[]senmlRecord, prefix string, v any) {
	if m, ok := v.(map[string]any); ok {
		for _, k := range sortedKeys(m) {
			name := k
			if prefix != "" {
				name = prefix + "/" + k
			}
			flatten(recs, name, m[k])
		}
		return
	}
	// Composite reads report placeholders for resources that cannot be read
	if s, ok := v.(string); ok && (s == model.Unreadable || s == model.Executable) {
		return
	}
	r := senmlRecord{Name: prefix}
	if r.set(v) {
		*recs = append(*recs, r)
	}
}

// fromSenML rebuilds the value for path p from records.
func (c *Codec) fromSenML(p model.Path, recs []senmlRecord) (any, error) {
	target := wire.SplitPath(p.Numeric(c.resolver))

	var (
		base   string
		scalar any
		result = map[string]any{}
		found  bool
	)
	for i := range recs {
		r := &recs[i]
		if r.BaseName != "" {
			base = r.BaseName
		}
		v, ok := r.value()
		if !ok {
			continue
		}
		segs := wire.SplitPath(base + r.Name)
		if len(segs) < len(target) || !samePrefix(target, segs) {
			return nil, fmt.Errorf("%w: record %q outside %s", ErrInvalidPayload, base+r.Name, p)
		}
		rest := segs[len(target):]
		found = true
		if len(rest) == 0 {
			scalar = v
			continue
		}
		keys := c.symbolicPath(p, rest)
		insert(result, keys, v)
	}

	switch {
	case !found:
		return nil, fmt.Errorf("%w: no values for %s", ErrInvalidPayload, p)
	case len(result) == 0:
		return scalar, nil
	default:
		return result, nil
	}
}

// symbolicPath converts the segments below p to tree keys.
func (c *Codec) symbolicPath(p model.Path, rest []string) []string {
	keys := append([]string(nil), rest...)
	switch p.Level() {
	case model.LevelObject:
		if len(keys) > 1 {
			keys[1] = c.resolver.ResourceKey(p.Object, keys[1])
		}
	case model.LevelInstance:
		keys[0] = c.resolver.ResourceKey(p.Object, keys[0])
	}
	return keys
}

// samePrefix compares numeric path segments, so "03" matches "3".
func samePrefix(prefix, segs []string) bool {
	for i, s := range prefix {
		if s == segs[i] {
			continue
		}
		a, errA := strconv.Atoi(s)
		b, errB := strconv.Atoi(segs[i])
		if errA != nil || errB != nil || a != b {
			return false
		}
	}
	return true
}

func insert(m map[string]any, keys []string, v any) {
	for _, k := range keys[:len(keys)-1] {
		next, ok := m[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[k] = next
		}
		m = next
	}
	m[keys[len(keys)-1]] = v
}

func encodeSenMLJSON(recs []senmlRecord) ([]byte, error) {
	for i := range recs {
		if recs[i].DataValue != nil {
			recs[i].DataText = base64.RawURLEncoding.EncodeToString(recs[i].DataValue)
		}
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return data, nil
}

func decodeSenMLJSON(data []byte) ([]senmlRecord, error) {
	var recs []senmlRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	for i := range recs {
		if recs[i].DataText == "" {
			continue
		}
		b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(recs[i].DataText, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: vd: %v", ErrInvalidPayload, err)
		}
		recs[i].DataValue = b
	}
	return recs, nil
}
