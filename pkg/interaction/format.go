package interaction

import (
	"strings"

	"github.com/lwm2m-node/lwm2m-go/pkg/model"
	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

// responseFormat picks the content format for a response carrying the
// value at p: the Accept option if the codec supports it, otherwise
// text/plain for resources and SenML-JSON for instances and objects.
func (d *Dispatcher) responseFormat(req *wire.Request, p model.Path) wire.Format {
	if req.Accept.IsSet() && req.Accept != wire.FormatLinkFormat && d.codec.Supports(req.Accept) {
		return req.Accept
	}
	if p.Level() == model.LevelResource {
		return wire.FormatTextPlain
	}
	return wire.FormatSenMLJSON
}

// encode renders v in format f. Composite values cannot travel as text,
// so resources holding maps fall back to SenML-JSON.
func (d *Dispatcher) encode(f wire.Format, p model.Path, v any) ([]byte, error) {
	if _, composite := v.(map[string]any); composite && (f == wire.FormatTextPlain || f == wire.FormatOpaque) {
		f = wire.FormatSenMLJSON
	}
	return d.codec.Encode(f, p, v)
}

// decode parses the payload of req for p. A request without content
// format is read as text/plain for resources and SenML-JSON otherwise.
// Text written to a plain value is converted to the stored kind.
func (d *Dispatcher) decode(req *wire.Request, p model.Path) (any, error) {
	f := req.ContentFormat
	if !f.IsSet() {
		f = wire.FormatSenMLJSON
		if p.Level() == model.LevelResource {
			f = wire.FormatTextPlain
		}
	}
	v, err := d.codec.Decode(f, p, req.Payload)
	if err != nil {
		return nil, err
	}
	if s, ok := v.(string); ok && f == wire.FormatTextPlain && p.Level() == model.LevelResource {
		if kind, ok := d.tree.KindAt(p); ok && kind != model.KindInvalid {
			return model.ParseScalar(s, kind)
		}
	}
	return v, nil
}

// splitArgs splits an execute payload on commas. An empty payload has no
// arguments.
func splitArgs(payload []byte) []string {
	if len(payload) == 0 {
		return nil
	}
	args := strings.Split(string(payload), ",")
	for i, a := range args {
		args[i] = strings.TrimSpace(a)
	}
	return args
}
