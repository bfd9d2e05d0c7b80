package wire

import "strconv"

// Format is a CoAP Content-Format identifier.
type Format uint16

const (
	FormatTextPlain  Format = 0
	FormatLinkFormat Format = 40
	FormatOpaque     Format = 42
	FormatJSON       Format = 50
	FormatCBOR       Format = 60
	FormatSenMLJSON  Format = 110
	FormatSenMLCBOR  Format = 112
	FormatTLV        Format = 11542
	FormatLwM2MJSON  Format = 11543

	// FormatNone marks an absent option.
	FormatNone Format = 0xFFFF
)

// String returns the media type name.
func (f Format) String() string {
	switch f {
	case FormatTextPlain:
		return "text/plain"
	case FormatLinkFormat:
		return "application/link-format"
	case FormatOpaque:
		return "application/octet-stream"
	case FormatJSON:
		return "application/json"
	case FormatCBOR:
		return "application/cbor"
	case FormatSenMLJSON:
		return "application/senml+json"
	case FormatSenMLCBOR:
		return "application/senml+cbor"
	case FormatTLV:
		return "application/vnd.oma.lwm2m+tlv"
	case FormatLwM2MJSON:
		return "application/vnd.oma.lwm2m+json"
	case FormatNone:
		return "none"
	default:
		return "format/" + strconv.Itoa(int(f))
	}
}

// IsSet returns true unless f is FormatNone.
func (f Format) IsSet() bool {
	return f != FormatNone
}
