package observe

import (
	"math"

	"github.com/lwm2m-node/lwm2m-go/pkg/attribute"
	"github.com/lwm2m-node/lwm2m-go/pkg/model"
)

// ShouldReport decides whether value differs enough from prev, the last
// reported value, to be pushed under attrs.
//
// Maps report when any leaf differs and non-numeric scalars when the value
// differs. Numeric values must change and then pass the thresholds:
//   - gt and lt with lt > gt: the value lies strictly inside (gt, lt)
//   - only gt or only lt: the value crossed that threshold
//   - gt and lt with lt <= gt: the value crossed either threshold
//
// A step additionally requires |value - prev| > step.
func ShouldReport(attrs attribute.Record, value, prev any) bool {
	if prev == nil {
		return true
	}
	if _, ok := value.(map[string]any); ok {
		return !model.Equal(value, prev)
	}

	v, ok := model.ToFloat64(value)
	if !ok {
		return !model.Equal(value, prev)
	}
	p, ok := model.ToFloat64(prev)
	if !ok {
		return true
	}
	if v == p {
		return false
	}

	gt, lt := attrs.Gt, attrs.Lt
	pass := true
	switch {
	case gt != nil && lt != nil && *lt > *gt:
		pass = v > *gt && v < *lt
	case gt != nil && lt != nil:
		pass = crossedAbove(p, v, *gt) || crossedBelow(p, v, *lt)
	case gt != nil:
		pass = crossedAbove(p, v, *gt)
	case lt != nil:
		pass = crossedBelow(p, v, *lt)
	}
	if attrs.Step != nil {
		pass = pass && math.Abs(v-p) > *attrs.Step
	}
	return pass
}

func crossedAbove(prev, v, t float64) bool {
	return (prev > t) != (v > t)
}

func crossedBelow(prev, v, t float64) bool {
	return (prev < t) != (v < t)
}
