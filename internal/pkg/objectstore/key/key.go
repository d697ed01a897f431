// Package key encodes keys of the object store into order-preserving bytes.
//
// Supported key types and their order: number < date < string < binary < array.
// All numeric kinds are normalized to float64, dates to UTC time.Time, arrays to []any.
// The bytes.Compare of two encoded keys matches the order of the keys.
package key

import (
	"bytes"
	"encoding/binary"
	"math"
	"reflect"
	"time"

	"github.com/spf13/cast"

	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

const (
	tagNumber = 0x10
	tagDate   = 0x20
	tagString = 0x30
	tagBinary = 0x40
	tagArray  = 0x50

	escape     = 0x00
	escapedNul = 0xFF
	terminator = 0x01
	arrayEnd   = 0x00

	signBit = uint64(1) << 63
)

// InvalidKeyError is returned for a value which cannot be used as a key.
type InvalidKeyError struct {
	Value  any
	Reason string
}

func (e InvalidKeyError) Error() string {
	return "invalid key " + describe(e.Value) + ": " + e.Reason
}

// Normalize converts the key to the canonical form, it is returned by cursors.
func Normalize(k any) (any, error) {
	switch v := k.(type) {
	case nil:
		return nil, InvalidKeyError{Value: k, Reason: "key cannot be nil"}
	case string:
		return v, nil
	case []byte:
		return bytes.Clone(v), nil
	case time.Time:
		return v.UTC(), nil
	case bool:
		return nil, InvalidKeyError{Value: k, Reason: "bool is not a valid key type"}
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			n, err := Normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}

	value := reflect.ValueOf(k)
	switch value.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(value.Convert(reflect.TypeOf(float64(0))).Interface())
		if err != nil {
			return nil, InvalidKeyError{Value: k, Reason: err.Error()}
		}
		if math.IsNaN(f) {
			return nil, InvalidKeyError{Value: k, Reason: "NaN is not a valid key"}
		}
		if f == 0 {
			f = 0 // -0 and 0 are the same key
		}
		return f, nil
	case reflect.Slice, reflect.Array:
		out := make([]any, value.Len())
		for i := range value.Len() {
			n, err := Normalize(value.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return nil, InvalidKeyError{Value: k, Reason: "unsupported key type"}
	}
}

// Encode normalizes the key and encodes it to order-preserving bytes.
func Encode(k any) ([]byte, error) {
	n, err := Normalize(k)
	if err != nil {
		return nil, err
	}
	return appendKey(nil, n), nil
}

// MustEncode is used in tests and for keys which are already normalized.
func MustEncode(k any) []byte {
	out, err := Encode(k)
	if err != nil {
		panic(err)
	}
	return out
}

// Decode returns the normalized key from the encoded bytes.
func Decode(data []byte) (any, error) {
	k, rest, err := decodeKey(data)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, errors.Errorf("cannot decode key: unexpected %d trailing bytes", len(rest))
	}
	return k, nil
}

// Compare returns -1, 0 or +1, according to the order of the keys.
func Compare(a, b any) (int, error) {
	aBytes, err := Encode(a)
	if err != nil {
		return 0, err
	}
	bBytes, err := Encode(b)
	if err != nil {
		return 0, err
	}
	return bytes.Compare(aBytes, bBytes), nil
}

func appendKey(out []byte, k any) []byte {
	switch v := k.(type) {
	case float64:
		bits := math.Float64bits(v)
		if bits&signBit == 0 {
			bits ^= signBit
		} else {
			bits = ^bits
		}
		out = append(out, tagNumber)
		return binary.BigEndian.AppendUint64(out, bits)
	case time.Time:
		// Seconds do not overflow for any representable time, UnixNano does outside of years 1678-2262
		out = append(out, tagDate)
		out = binary.BigEndian.AppendUint64(out, uint64(v.Unix())^signBit)
		return binary.BigEndian.AppendUint32(out, uint32(v.Nanosecond()))
	case string:
		return appendEscaped(append(out, tagString), []byte(v))
	case []byte:
		return appendEscaped(append(out, tagBinary), v)
	case []any:
		out = append(out, tagArray)
		for _, item := range v {
			out = appendKey(out, item)
		}
		return append(out, arrayEnd)
	default:
		panic(errors.Errorf(`unexpected normalized key type "%T"`, k))
	}
}

func appendEscaped(out []byte, data []byte) []byte {
	for _, b := range data {
		if b == escape {
			out = append(out, escape, escapedNul)
		} else {
			out = append(out, b)
		}
	}
	return append(out, escape, terminator)
}

func decodeKey(data []byte) (any, []byte, error) {
	if len(data) == 0 {
		return nil, nil, errors.New("cannot decode key: unexpected end of data")
	}

	tag, data := data[0], data[1:]
	switch tag {
	case tagDate:
		if len(data) < 12 {
			return nil, nil, errors.New("cannot decode key: date is too short")
		}
		sec := int64(binary.BigEndian.Uint64(data[:8]) ^ signBit)
		nsec := binary.BigEndian.Uint32(data[8:12])
		if nsec >= uint32(time.Second) {
			return nil, nil, errors.Errorf("cannot decode key: invalid nanoseconds %d", nsec)
		}
		return time.Unix(sec, int64(nsec)).UTC(), data[12:], nil
	case tagNumber:
		if len(data) < 8 {
			return nil, nil, errors.New("cannot decode key: number is too short")
		}
		bits, rest := binary.BigEndian.Uint64(data[:8]), data[8:]
		if bits&signBit != 0 {
			bits ^= signBit
		} else {
			bits = ^bits
		}
		return math.Float64frombits(bits), rest, nil
	case tagString, tagBinary:
		raw, rest, err := decodeEscaped(data)
		if err != nil {
			return nil, nil, err
		}
		if tag == tagString {
			return string(raw), rest, nil
		}
		return raw, rest, nil
	case tagArray:
		out := make([]any, 0)
		for {
			if len(data) == 0 {
				return nil, nil, errors.New("cannot decode key: unterminated array")
			}
			if data[0] == arrayEnd {
				return out, data[1:], nil
			}
			item, rest, err := decodeKey(data)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, item)
			data = rest
		}
	default:
		return nil, nil, errors.Errorf("cannot decode key: unexpected tag 0x%02x", tag)
	}
}

func decodeEscaped(data []byte) ([]byte, []byte, error) {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != escape {
			out = append(out, data[i])
			continue
		}
		if i+1 >= len(data) {
			break
		}
		switch data[i+1] {
		case escapedNul:
			out = append(out, escape)
			i++
		case terminator:
			return out, data[i+2:], nil
		default:
			return nil, nil, errors.Errorf("cannot decode key: unexpected escape sequence 0x00 0x%02x", data[i+1])
		}
	}
	return nil, nil, errors.New("cannot decode key: unterminated string")
}

func describe(v any) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}
