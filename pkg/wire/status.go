package wire

import "fmt"

// Code is a CoAP response code.
type Code uint8

const (
	CodeEmpty Code = 0

	// Success (2.xx)
	CodeCreated  Code = 65 // 2.01
	CodeDeleted  Code = 66 // 2.02
	CodeValid    Code = 67 // 2.03
	CodeChanged  Code = 68 // 2.04
	CodeContent  Code = 69 // 2.05
	CodeContinue Code = 95 // 2.31

	// Client error (4.xx)
	CodeBadRequest               Code = 128 // 4.00
	CodeUnauthorized             Code = 129 // 4.01
	CodeBadOption                Code = 130 // 4.02
	CodeForbidden                Code = 131 // 4.03
	CodeNotFound                 Code = 132 // 4.04
	CodeMethodNotAllowed         Code = 133 // 4.05
	CodeNotAcceptable            Code = 134 // 4.06
	CodeConflict                 Code = 137 // 4.09
	CodePreconditionFailed       Code = 140 // 4.12
	CodeRequestEntityTooLarge    Code = 141 // 4.13
	CodeUnsupportedContentFormat Code = 143 // 4.15

	// Server error (5.xx)
	CodeInternalServerError Code = 160 // 5.00
	CodeNotImplemented      Code = 161 // 5.01
	CodeServiceUnavailable  Code = 163 // 5.03
	CodeGatewayTimeout      Code = 164 // 5.04
)

// String returns the code name.
func (c Code) String() string {
	switch c {
	case CodeEmpty:
		return "EMPTY"
	case CodeCreated:
		return "CREATED"
	case CodeDeleted:
		return "DELETED"
	case CodeValid:
		return "VALID"
	case CodeChanged:
		return "CHANGED"
	case CodeContent:
		return "CONTENT"
	case CodeContinue:
		return "CONTINUE"
	case CodeBadRequest:
		return "BAD_REQUEST"
	case CodeUnauthorized:
		return "UNAUTHORIZED"
	case CodeBadOption:
		return "BAD_OPTION"
	case CodeForbidden:
		return "FORBIDDEN"
	case CodeNotFound:
		return "NOT_FOUND"
	case CodeMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case CodeNotAcceptable:
		return "NOT_ACCEPTABLE"
	case CodeConflict:
		return "CONFLICT"
	case CodePreconditionFailed:
		return "PRECONDITION_FAILED"
	case CodeRequestEntityTooLarge:
		return "REQUEST_ENTITY_TOO_LARGE"
	case CodeUnsupportedContentFormat:
		return "UNSUPPORTED_CONTENT_FORMAT"
	case CodeInternalServerError:
		return "INTERNAL_SERVER_ERROR"
	case CodeNotImplemented:
		return "NOT_IMPLEMENTED"
	case CodeServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	case CodeGatewayTimeout:
		return "GATEWAY_TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// Dotted returns the code in class.detail notation, e.g. "2.05".
func (c Code) Dotted() string {
	return fmt.Sprintf("%d.%02d", uint8(c)>>5, uint8(c)&0x1f)
}

// Class returns the code class (2, 4 or 5 for responses).
func (c Code) Class() uint8 {
	return uint8(c) >> 5
}

// IsSuccess returns true for 2.xx codes.
func (c Code) IsSuccess() bool {
	return c.Class() == 2
}

// IsError returns true for 4.xx and 5.xx codes.
func (c Code) IsError() bool {
	return c.Class() >= 4
}

// Method is a CoAP request method.
type Method uint8

const (
	MethodEmpty  Method = 0
	MethodGet    Method = 1
	MethodPost   Method = 2
	MethodPut    Method = 3
	MethodDelete Method = 4
)

// String returns the method name.
func (m Method) String() string {
	switch m {
	case MethodEmpty:
		return "EMPTY"
	case MethodGet:
		return "GET"
	case MethodPost:
		return "POST"
	case MethodPut:
		return "PUT"
	case MethodDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}
