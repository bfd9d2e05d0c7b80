package log

import (
	"time"

	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

// RequestMessage builds the MessageEvent of req.
func RequestMessage(req *wire.Request) *MessageEvent {
	m := &MessageEvent{
		Type:        MessageTypeRequest,
		Method:      req.Method,
		Path:        req.Path,
		Query:       req.Query,
		Observe:     req.Observe,
		Token:       req.Token,
		PayloadSize: len(req.Payload),
		Payload:     CapturePayload(req.Payload),
	}
	if req.ContentFormat.IsSet() {
		f := req.ContentFormat
		m.ContentFormat = &f
	}
	return m
}

// ResponseMessage builds the MessageEvent of a response to a request on
// path. A zero elapsed leaves ProcessingTime unset.
func ResponseMessage(path string, resp *wire.Response, elapsed time.Duration) *MessageEvent {
	code := resp.Code
	m := &MessageEvent{
		Type:        MessageTypeResponse,
		Path:        path,
		Code:        &code,
		PayloadSize: len(resp.Payload),
		Payload:     CapturePayload(resp.Payload),
	}
	if resp.ContentFormat.IsSet() {
		f := resp.ContentFormat
		m.ContentFormat = &f
	}
	if elapsed > 0 {
		m.ProcessingTime = &elapsed
	}
	return m
}
