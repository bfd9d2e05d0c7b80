package coap

import (
	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"

	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

// encodeUint encodes v as a CoAP uint option value (minimal length,
// big endian).
func encodeUint(v uint32) []byte {
	switch {
	case v == 0:
		return nil
	case v <= 0xFF:
		return []byte{byte(v)}
	case v <= 0xFFFF:
		return []byte{byte(v >> 8), byte(v)}
	case v <= 0xFFFFFF:
		return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	default:
		return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	}
}

// requestOptions converts the query, accept and observe fields of req.
func requestOptions(req *wire.Request) message.Options {
	var opts message.Options
	for _, q := range req.Query {
		opts = append(opts, message.Option{ID: message.URIQuery, Value: []byte(q)})
	}
	if req.Accept.IsSet() {
		opts = append(opts, message.Option{ID: message.Accept, Value: encodeUint(uint32(req.Accept))})
	}
	if req.Observe != nil {
		opts = append(opts, message.Option{ID: message.Observe, Value: encodeUint(*req.Observe)})
	}
	return opts
}

// locationPath collects the Location-Path options in order.
func locationPath(opts message.Options) []string {
	var segs []string
	for _, o := range opts {
		if o.ID == message.LocationPath {
			segs = append(segs, string(o.Value))
		}
	}
	return segs
}

func methodOf(c codes.Code) wire.Method {
	switch c {
	case codes.GET:
		return wire.MethodGet
	case codes.POST:
		return wire.MethodPost
	case codes.PUT:
		return wire.MethodPut
	case codes.DELETE:
		return wire.MethodDelete
	default:
		return wire.MethodEmpty
	}
}

func formatOf(mt message.MediaType, err error) wire.Format {
	if err != nil {
		return wire.FormatNone
	}
	return wire.Format(mt)
}

func coapCode(c wire.Code) codes.Code {
	return codes.Code(uint8(c))
}

func wireCode(c codes.Code) wire.Code {
	return wire.Code(uint8(c))
}
