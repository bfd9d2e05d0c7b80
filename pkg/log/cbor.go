package log

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Event files are a plain concatenation of CBOR items. Timestamps keep
// nanoseconds; keys unknown to this version are skipped on read.
var (
	eventEnc cbor.EncMode
	eventDec cbor.DecMode
)

func init() {
	var err error
	eventEnc, err = cbor.EncOptions{
		Sort:          cbor.SortCoreDeterministic,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("log: cbor encoder options: %v", err))
	}
	eventDec, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("log: cbor decoder options: %v", err))
	}
}

// EncodeEvent returns the CBOR form of a single event.
func EncodeEvent(event Event) ([]byte, error) {
	return eventEnc.Marshal(event)
}

// DecodeEvent parses one CBOR-encoded event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	err := eventDec.Unmarshal(data, &event)
	return event, err
}

// NewEncoder returns an event stream encoder writing to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return eventEnc.NewEncoder(w)
}

// NewDecoder returns an event stream decoder reading from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return eventDec.NewDecoder(r)
}
