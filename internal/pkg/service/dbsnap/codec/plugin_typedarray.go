package codec

import (
	"encoding/base64"
	"encoding/binary"
	"math"

	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

// TypedArrayPlugin encodes slices of fixed-size numbers as [typeName, base64 little-endian content].
// The binary form keeps exact float values, including -0, NaN and infinities.
type TypedArrayPlugin struct{}

const (
	typeInt8    = "Int8Array"
	typeUint8   = "Uint8Array"
	typeInt16   = "Int16Array"
	typeUint16  = "Uint16Array"
	typeInt32   = "Int32Array"
	typeUint32  = "Uint32Array"
	typeFloat32 = "Float32Array"
	typeFloat64 = "Float64Array"
	typeInt64   = "BigInt64Array"
	typeUint64  = "BigUint64Array"
)

func (TypedArrayPlugin) Name() string {
	return "TypedArray"
}

func (TypedArrayPlugin) Test(value any) bool {
	switch value.(type) {
	case []int8, []byte, []int16, []uint16, []int32, []uint32, []float32, []float64, []int64, []uint64:
		return true
	default:
		return false
	}
}

func (TypedArrayPlugin) Encode(value any, _ Deferrer) (any, error) {
	le := binary.LittleEndian
	var typeName string
	var data []byte
	switch v := value.(type) {
	case []int8:
		typeName = typeInt8
		for _, n := range v {
			data = append(data, byte(n))
		}
	case []byte:
		typeName, data = typeUint8, v
	case []int16:
		typeName = typeInt16
		for _, n := range v {
			data = le.AppendUint16(data, uint16(n))
		}
	case []uint16:
		typeName = typeUint16
		for _, n := range v {
			data = le.AppendUint16(data, n)
		}
	case []int32:
		typeName = typeInt32
		for _, n := range v {
			data = le.AppendUint32(data, uint32(n))
		}
	case []uint32:
		typeName = typeUint32
		for _, n := range v {
			data = le.AppendUint32(data, n)
		}
	case []float32:
		typeName = typeFloat32
		for _, n := range v {
			data = le.AppendUint32(data, math.Float32bits(n))
		}
	case []float64:
		typeName = typeFloat64
		for _, n := range v {
			data = le.AppendUint64(data, math.Float64bits(n))
		}
	case []int64:
		typeName = typeInt64
		for _, n := range v {
			data = le.AppendUint64(data, uint64(n))
		}
	case []uint64:
		typeName = typeUint64
		for _, n := range v {
			data = le.AppendUint64(data, n)
		}
	default:
		return nil, errors.Errorf(`unexpected type "%T"`, value)
	}
	return []any{typeName, base64.StdEncoding.EncodeToString(data)}, nil
}

func (TypedArrayPlugin) Decode(form any) (any, error) {
	typeName, encoded, err := pairForm(form)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.New("invalid base64 content")
	}

	size := map[string]int{
		typeInt8: 1, typeUint8: 1, typeInt16: 2, typeUint16: 2, typeInt32: 4, typeUint32: 4,
		typeFloat32: 4, typeFloat64: 8, typeInt64: 8, typeUint64: 8,
	}[typeName]
	if size == 0 {
		return nil, errors.Errorf(`unknown typed array "%s"`, typeName)
	}
	if len(data)%size != 0 {
		return nil, errors.Errorf(`length %d of "%s" is not a multiple of %d`, len(data), typeName, size)
	}

	le := binary.LittleEndian
	n := len(data) / size
	switch typeName {
	case typeInt8:
		out := make([]int8, n)
		for i := range out {
			out[i] = int8(data[i])
		}
		return out, nil
	case typeUint8:
		return data, nil
	case typeInt16:
		out := make([]int16, n)
		for i := range out {
			out[i] = int16(le.Uint16(data[i*2:]))
		}
		return out, nil
	case typeUint16:
		out := make([]uint16, n)
		for i := range out {
			out[i] = le.Uint16(data[i*2:])
		}
		return out, nil
	case typeInt32:
		out := make([]int32, n)
		for i := range out {
			out[i] = int32(le.Uint32(data[i*4:]))
		}
		return out, nil
	case typeUint32:
		out := make([]uint32, n)
		for i := range out {
			out[i] = le.Uint32(data[i*4:])
		}
		return out, nil
	case typeFloat32:
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(le.Uint32(data[i*4:]))
		}
		return out, nil
	case typeFloat64:
		out := make([]float64, n)
		for i := range out {
			out[i] = math.Float64frombits(le.Uint64(data[i*8:]))
		}
		return out, nil
	case typeInt64:
		out := make([]int64, n)
		for i := range out {
			out[i] = int64(le.Uint64(data[i*8:]))
		}
		return out, nil
	default:
		out := make([]uint64, n)
		for i := range out {
			out[i] = le.Uint64(data[i*8:])
		}
		return out, nil
	}
}
