package gguf

// ValueType represents the type tag of a GGUF metadata value in the binary format.
type ValueType uint32

const (
	TypeUint8   ValueType = 0
	TypeInt8    ValueType = 1
	TypeUint16  ValueType = 2
	TypeInt16   ValueType = 3
	TypeUint32  ValueType = 4
	TypeInt32   ValueType = 5
	TypeFloat32 ValueType = 6
	TypeBool    ValueType = 7
	TypeString  ValueType = 8
	TypeArray   ValueType = 9
	TypeUint64  ValueType = 10
	TypeInt64   ValueType = 11
	TypeFloat64 ValueType = 12
)

// KeyValue represents a metadata key-value pair from a GGUF file.
type KeyValue struct {
	Key string
	Value
}

// Value wraps a GGUF metadata value with typed accessors.
// Accessors return zero values when the underlying type doesn't match,
// rather than returning errors.
type Value struct {
	data any
}

// Raw returns the underlying value without type conversion.
func (v Value) Raw() any {
	return v.data
}

// String returns the value as a string, or "" if it is not a string.
func (v Value) String() string {
	s, _ := v.data.(string)
	return s
}

// Strings returns the value as a string slice, or nil if it is not one.
func (v Value) Strings() []string {
	s, _ := v.data.([]string)
	return s
}

// Bool returns the value as a bool, or false if it is not a bool.
func (v Value) Bool() bool {
	b, _ := v.data.(bool)
	return b
}

// Int returns the value as an int64. Works for any signed or unsigned integer type.
// Returns 0 if the value is not an integer.
func (v Value) Int() int64 {
	switch n := v.data.(type) {
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	}
	return 0
}

// IsInt returns whether the value is a (scalar) integer.
func (v Value) IsInt() bool {
	switch v.data.(type) {
	case int8, int16, int32, int64, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

// Float returns the value as a float64. Works for float32 and float64.
// Returns 0 if the value is not a float.
func (v Value) Float() float64 {
	switch n := v.data.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

func convertSlice[Out, In number](in []In) []Out {
	out := make([]Out, len(in))
	for i, n := range in {
		out[i] = Out(n)
	}
	return out
}

// Floats returns the value as a float64 slice, or nil if it is not a float array.
func (v Value) Floats() []float64 {
	switch s := v.data.(type) {
	case []float64:
		return s
	case []float32:
		return convertSlice[float64](s)
	}
	return nil
}

// Ints returns the value as an int64 slice, or nil if it is not an integer array.
func (v Value) Ints() []int64 {
	switch s := v.data.(type) {
	case []int64:
		return s
	case []int32:
		return convertSlice[int64](s)
	case []int16:
		return convertSlice[int64](s)
	case []int8:
		return convertSlice[int64](s)
	case []uint64:
		return convertSlice[int64](s)
	case []uint32:
		return convertSlice[int64](s)
	case []uint16:
		return convertSlice[int64](s)
	case []uint8:
		return convertSlice[int64](s)
	}
	return nil
}
