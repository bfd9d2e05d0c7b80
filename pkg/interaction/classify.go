package interaction

import (
	"strings"

	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

// Operation is the kind of an inbound request.
type Operation uint8

const (
	OpUnknown Operation = iota
	OpEmpty
	OpRead
	OpDiscover
	OpWrite
	OpWriteAttributes
	OpExecute
	OpCreate
	OpDelete
	OpObserve
	OpCancelObserve
	OpPing
	OpAnnounce
)

// Reserved paths for POST requests.
const (
	PingPath     = "/ping"
	AnnouncePath = "/announce"
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpEmpty:
		return "empty"
	case OpRead:
		return "read"
	case OpDiscover:
		return "discover"
	case OpWrite:
		return "write"
	case OpWriteAttributes:
		return "write-attributes"
	case OpExecute:
		return "execute"
	case OpCreate:
		return "create"
	case OpDelete:
		return "delete"
	case OpObserve:
		return "observe"
	case OpCancelObserve:
		return "cancel-observe"
	case OpPing:
		return "ping"
	case OpAnnounce:
		return "announce"
	default:
		return "unknown"
	}
}

// Classify determines the operation of req from its method, options and
// path.
func Classify(req *wire.Request) Operation {
	switch req.Method {
	case wire.MethodEmpty:
		return OpEmpty

	case wire.MethodGet:
		if req.Observe != nil {
			switch *req.Observe {
			case wire.ObserveRegister:
				return OpObserve
			case wire.ObserveDeregister:
				return OpCancelObserve
			}
		}
		if req.Accept == wire.FormatLinkFormat {
			return OpDiscover
		}
		return OpRead

	case wire.MethodPut:
		if len(req.Payload) == 0 {
			return OpWriteAttributes
		}
		return OpWrite

	case wire.MethodPost:
		switch cleanPath(req.Path) {
		case PingPath:
			return OpPing
		case AnnouncePath:
			return OpAnnounce
		}
		if len(wire.SplitPath(req.Path)) == 1 {
			return OpCreate
		}
		return OpExecute

	case wire.MethodDelete:
		return OpDelete
	}
	return OpUnknown
}

// cleanPath returns p with a single leading slash and no trailing one.
func cleanPath(p string) string {
	return "/" + strings.Trim(p, "/")
}
