package codec

import (
	"math"

	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

// NegativeZeroPlugin keeps the sign of the zero, plain JSON numbers cannot distinguish -0 and 0.
type NegativeZeroPlugin struct{}

func (NegativeZeroPlugin) Name() string {
	return "NegativeZero"
}

func (NegativeZeroPlugin) Test(value any) bool {
	f, ok := toFloat(value)
	return ok && f == 0 && math.Signbit(f)
}

func (NegativeZeroPlugin) Encode(_ any, _ Deferrer) (any, error) {
	return "", nil
}

func (NegativeZeroPlugin) Decode(form any) (any, error) {
	if form != "" {
		return nil, errors.Errorf(`expected an empty string, found "%v"`, form)
	}
	return math.Copysign(0, -1), nil
}

type InfinityPlugin struct{}

func (InfinityPlugin) Name() string {
	return "Infinity"
}

func (InfinityPlugin) Test(value any) bool {
	f, ok := toFloat(value)
	return ok && math.IsInf(f, 0)
}

func (InfinityPlugin) Encode(value any, _ Deferrer) (any, error) {
	f, _ := toFloat(value)
	if f > 0 {
		return "Infinity", nil
	}
	return "-Infinity", nil
}

func (InfinityPlugin) Decode(form any) (any, error) {
	switch form {
	case "Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	default:
		return nil, errors.Errorf(`expected "Infinity" or "-Infinity", found "%v"`, form)
	}
}

type NaNPlugin struct{}

func (NaNPlugin) Name() string {
	return "NaN"
}

func (NaNPlugin) Test(value any) bool {
	f, ok := toFloat(value)
	return ok && math.IsNaN(f)
}

func (NaNPlugin) Encode(_ any, _ Deferrer) (any, error) {
	return "", nil
}

func (NaNPlugin) Decode(form any) (any, error) {
	if form != "" {
		return nil, errors.Errorf(`expected an empty string, found "%v"`, form)
	}
	return math.NaN(), nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	default:
		return 0, false
	}
}
