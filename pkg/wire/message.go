package wire

import (
	"net/url"
	"strings"
)

// Observe option values.
const (
	ObserveRegister   uint32 = 0
	ObserveDeregister uint32 = 1
)

// Request is a protocol request as seen by the client node.
type Request struct {
	Method        Method
	Path          string
	Query         []string
	Payload       []byte
	ContentFormat Format
	Accept        Format

	// Observe is nil when the option is absent.
	Observe *uint32

	Token []byte
}

// NewRequest creates a request with no content format and no accept option.
func NewRequest(method Method, path string) *Request {
	return &Request{
		Method:        method,
		Path:          path,
		ContentFormat: FormatNone,
		Accept:        FormatNone,
	}
}

// WithQuery appends a key=value query parameter.
func (r *Request) WithQuery(key, value string) *Request {
	r.Query = append(r.Query, key+"="+value)
	return r
}

// WithPayload sets the payload and its content format.
func (r *Request) WithPayload(format Format, payload []byte) *Request {
	r.ContentFormat = format
	r.Payload = payload
	return r
}

// WithObserve sets the Observe option.
func (r *Request) WithObserve(v uint32) *Request {
	r.Observe = &v
	return r
}

// QueryValue returns the value of query parameter key.
// A parameter without "=" has an empty value.
func (r *Request) QueryValue(key string) (string, bool) {
	for _, q := range r.Query {
		k, v, _ := strings.Cut(q, "=")
		if k == key {
			return v, true
		}
	}
	return "", false
}

// QueryMap returns the query parameters as a map. Later duplicates win.
func (r *Request) QueryMap() map[string]string {
	m := make(map[string]string, len(r.Query))
	for _, q := range r.Query {
		k, v, _ := strings.Cut(q, "=")
		m[k] = v
	}
	return m
}

// IsEmpty returns true for an empty message (CoAP ping or reset).
func (r *Request) IsEmpty() bool {
	return r.Method == MethodEmpty
}

// URI renders the path and query, for logs.
func (r *Request) URI() string {
	if len(r.Query) == 0 {
		return r.Path
	}
	return r.Path + "?" + strings.Join(r.Query, "&")
}

// Response is a protocol response.
type Response struct {
	Code          Code
	ContentFormat Format
	Payload       []byte

	// Location holds the Location-Path segments.
	Location []string
}

// NewResponse creates a response without payload.
func NewResponse(code Code) *Response {
	return &Response{Code: code, ContentFormat: FormatNone}
}

// LocationPath returns the Location-Path segments joined as a path.
func (r *Response) LocationPath() string {
	if len(r.Location) == 0 {
		return ""
	}
	segs := make([]string, len(r.Location))
	for i, s := range r.Location {
		segs[i] = url.PathEscape(s)
	}
	return "/" + strings.Join(segs, "/")
}

// SplitPath splits a URI path into segments, ignoring empty ones.
func SplitPath(p string) []string {
	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}
