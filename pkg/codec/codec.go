package codec

import (
	"errors"
	"fmt"
	"sort"

	"github.com/lwm2m-node/lwm2m-go/pkg/model"
	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

// Codec errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported content format")
	ErrInvalidPayload    = errors.New("invalid payload")
)

// Codec encodes values for a given path using numeric wire identifiers.
type Codec struct {
	resolver model.Resolver
}

// New creates a codec that resolves identifiers with r.
func New(r model.Resolver) *Codec {
	return &Codec{resolver: r}
}

// Supports returns true if f can be both encoded and decoded.
func (c *Codec) Supports(f wire.Format) bool {
	switch f {
	case wire.FormatTextPlain, wire.FormatOpaque, wire.FormatJSON,
		wire.FormatSenMLJSON, wire.FormatSenMLCBOR, wire.FormatLinkFormat:
		return true
	default:
		return false
	}
}

// Encode renders value, the content at path, in format f.
func (c *Codec) Encode(f wire.Format, path model.Path, value any) ([]byte, error) {
	switch f {
	case wire.FormatTextPlain:
		return encodeText(value)
	case wire.FormatOpaque:
		return encodeOpaque(value)
	case wire.FormatJSON:
		return encodeJSON(c.wireKeys(path, value))
	case wire.FormatSenMLJSON:
		return encodeSenMLJSON(c.senmlRecords(path, value))
	case wire.FormatSenMLCBOR:
		return encodeSenMLCBOR(c.senmlRecords(path, value))
	case wire.FormatLinkFormat:
		links, ok := value.([]Link)
		if !ok {
			return nil, fmt.Errorf("%w: link-format needs []Link, got %T", ErrInvalidPayload, value)
		}
		return FormatLinks(links), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
}

// Decode parses data, the content for path, in format f.
func (c *Codec) Decode(f wire.Format, path model.Path, data []byte) (any, error) {
	switch f {
	case wire.FormatTextPlain:
		return string(data), nil
	case wire.FormatOpaque:
		return append([]byte(nil), data...), nil
	case wire.FormatJSON:
		v, err := decodeJSON(data)
		if err != nil {
			return nil, err
		}
		return c.symbolicKeys(path, v), nil
	case wire.FormatSenMLJSON:
		recs, err := decodeSenMLJSON(data)
		if err != nil {
			return nil, err
		}
		return c.fromSenML(path, recs)
	case wire.FormatSenMLCBOR:
		recs, err := decodeSenMLCBOR(data)
		if err != nil {
			return nil, err
		}
		return c.fromSenML(path, recs)
	case wire.FormatLinkFormat:
		return ParseLinks(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
}

// wireKeys rewrites the symbolic keys of a read result to numeric ids.
func (c *Codec) wireKeys(p model.Path, v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	switch p.Level() {
	case model.LevelObject:
		for iid, inst := range m {
			out[iid] = c.wireKeys(model.InstancePath(p.Object, 0), inst)
		}
	case model.LevelInstance:
		for rid, e := range m {
			out[c.resolver.ResourceID(p.Object, rid)] = e
		}
	default:
		return v
	}
	return out
}

// symbolicKeys is the inverse of wireKeys.
func (c *Codec) symbolicKeys(p model.Path, v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	switch p.Level() {
	case model.LevelObject:
		for iid, inst := range m {
			out[iid] = c.symbolicKeys(model.InstancePath(p.Object, 0), inst)
		}
	case model.LevelInstance:
		for rid, e := range m {
			out[c.resolver.ResourceKey(p.Object, rid)] = e
		}
	default:
		return v
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return idLess(keys[i], keys[j])
	})
	return keys
}
