package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// SenML CBOR packs use the integer labels of RFC 8428 (see senmlRecord).
// Servers may send indefinite-length arrays, so decoding accepts them.
var (
	senmlEnc = mustEncMode(cbor.EncOptions{
		Sort:          cbor.SortCoreDeterministic,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	})
	senmlDec = mustDecMode(cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	})
)

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	m, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: cbor encoder options: %v", err))
	}
	return m
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	m, err := opts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: cbor decoder options: %v", err))
	}
	return m
}

func encodeSenMLCBOR(recs []senmlRecord) ([]byte, error) {
	data, err := senmlEnc.Marshal(recs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return data, nil
}

func decodeSenMLCBOR(data []byte) ([]senmlRecord, error) {
	var recs []senmlRecord
	if err := senmlDec.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return recs, nil
}
