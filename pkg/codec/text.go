package codec

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/lwm2m-node/lwm2m-go/pkg/model"
)

func encodeText(v any) ([]byte, error) {
	switch x := v.(type) {
	case string:
		return []byte(x), nil
	case bool:
		if x {
			return []byte("1"), nil
		}
		return []byte("0"), nil
	case []byte:
		return []byte(base64.StdEncoding.EncodeToString(x)), nil
	case float32:
		return []byte(strconv.FormatFloat(float64(x), 'g', -1, 32)), nil
	case float64:
		return []byte(strconv.FormatFloat(x, 'g', -1, 64)), nil
	}
	if model.IsNumber(v) {
		return []byte(fmt.Sprint(v)), nil
	}
	return nil, fmt.Errorf("%w: text/plain cannot carry %T", ErrUnsupportedFormat, v)
}

func encodeOpaque(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	default:
		return nil, fmt.Errorf("%w: opaque cannot carry %T", ErrUnsupportedFormat, v)
	}
}

// idLess orders numeric ids numerically and before symbolic ones.
func idLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
