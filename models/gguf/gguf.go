// Package gguf reads the metadata of GGUF files (the llama.cpp model format), where the
// tokenizer of a model is stored under the "tokenizer.ggml.*" keys.
//
// Only the header is parsed: the file is memory-mapped, so the tensor data (usually
// gigabytes) is never read.
package gguf

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

const (
	ggufMagic           = "GGUF"
	minSupportedVersion = 2

	// maxStringLength is a sanity check for a single string.
	maxStringLength = 1 << 20
)

// File holds the parsed metadata of a GGUF file. Create one with Open or Parse.
type File struct {
	// Version is the GGUF format version (2 or 3).
	Version uint32

	// TensorCount is the number of tensors in the file. Their descriptions are not parsed.
	TensorCount uint64

	// KeyValues holds all metadata key-value pairs from the file header, in file order.
	KeyValues []KeyValue

	kvByKey map[string]int
}

// Open memory-maps and parses the metadata of a GGUF file.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "gguf: open %s", path)
	}
	defer func() { _ = f.Close() }()

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "gguf: mmap %s", path)
	}
	// Values are copied out of the mapping, so it can be released once parsed.
	defer func() { _ = data.Unmap() }()

	file, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "gguf file %s", path)
	}
	return file, nil
}

// Parse parses the metadata at the start of GGUF contents. Trailing data (tensor infos and
// tensor data) is ignored.
func Parse(data []byte) (*File, error) {
	d := &decoder{data: data}
	magic, err := d.take(4)
	if err != nil {
		return nil, errors.WithMessage(err, "gguf: read magic")
	}
	if string(magic) != ggufMagic {
		return nil, errors.Errorf("gguf: invalid magic %q, expected %q", magic, ggufMagic)
	}

	file := &File{}
	if file.Version, err = d.uint32(); err != nil {
		return nil, errors.WithMessage(err, "gguf: read version")
	}
	if file.Version < minSupportedVersion {
		return nil, errors.Errorf("gguf: unsupported version %d (minimum %d)", file.Version, minSupportedVersion)
	}
	if file.TensorCount, err = d.uint64(); err != nil {
		return nil, errors.WithMessage(err, "gguf: read tensor count")
	}
	kvCount, err := d.uint64()
	if err != nil {
		return nil, errors.WithMessage(err, "gguf: read kv count")
	}
	// Each key-value takes at least 12 bytes.
	if kvCount > uint64(d.remaining()/12) {
		return nil, errors.Errorf("gguf: kv count %d larger than the file", kvCount)
	}

	file.KeyValues = make([]KeyValue, 0, kvCount)
	file.kvByKey = make(map[string]int, kvCount)
	for range kvCount {
		kv, err := d.keyValue()
		if err != nil {
			return nil, errors.WithMessagef(err, "gguf: read kv pair %d/%d", len(file.KeyValues), kvCount)
		}
		file.kvByKey[kv.Key] = len(file.KeyValues)
		file.KeyValues = append(file.KeyValues, kv)
	}
	return file, nil
}

// GetKeyValue looks up a metadata key-value pair by its key.
func (f *File) GetKeyValue(key string) (KeyValue, bool) {
	idx, ok := f.kvByKey[key]
	if !ok {
		return KeyValue{}, false
	}
	return f.KeyValues[idx], true
}

// Architecture returns the model architecture string (e.g., "llama", "gemma"),
// or "" if the metadata key "general.architecture" is not present.
func (f *File) Architecture() string {
	kv, _ := f.GetKeyValue("general.architecture")
	return kv.String()
}

// decoder reads little-endian GGUF values from a byte slice.
type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) remaining() int {
	return len(d.data) - d.pos
}

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || n > d.remaining() {
		return nil, errors.Errorf("unexpected end of data at offset %d: need %d bytes, %d left", d.pos, n, d.remaining())
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) uint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *decoder) uint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// string reads a GGUF string: uint64 length prefix followed by that many bytes.
func (d *decoder) string() (string, error) {
	length, err := d.uint64()
	if err != nil {
		return "", errors.WithMessage(err, "read string length")
	}
	if length > maxStringLength {
		return "", errors.Errorf("string length %d exceeds 1MB limit", length)
	}
	b, err := d.take(int(length))
	if err != nil {
		return "", errors.WithMessage(err, "read string data")
	}
	return string(b), nil
}

func (d *decoder) keyValue() (KeyValue, error) {
	key, err := d.string()
	if err != nil {
		return KeyValue{}, errors.WithMessage(err, "read key")
	}
	typeTag, err := d.uint32()
	if err != nil {
		return KeyValue{}, errors.WithMessagef(err, "read value type for %q", key)
	}
	val, err := d.value(ValueType(typeTag))
	if err != nil {
		return KeyValue{}, errors.WithMessagef(err, "read value for %q (type %d)", key, typeTag)
	}
	return KeyValue{Key: key, Value: val}, nil
}

// scalar decodes the fixed size scalar types. It returns the size of the type, or 0 if
// vtype is not a fixed size scalar.
func scalar(vtype ValueType) (size int, decode func([]byte) any) {
	le := binary.LittleEndian
	switch vtype {
	case TypeUint8:
		return 1, func(b []byte) any { return b[0] }
	case TypeInt8:
		return 1, func(b []byte) any { return int8(b[0]) }
	case TypeBool:
		return 1, func(b []byte) any { return b[0] != 0 }
	case TypeUint16:
		return 2, func(b []byte) any { return le.Uint16(b) }
	case TypeInt16:
		return 2, func(b []byte) any { return int16(le.Uint16(b)) }
	case TypeUint32:
		return 4, func(b []byte) any { return le.Uint32(b) }
	case TypeInt32:
		return 4, func(b []byte) any { return int32(le.Uint32(b)) }
	case TypeFloat32:
		return 4, func(b []byte) any { return math.Float32frombits(le.Uint32(b)) }
	case TypeUint64:
		return 8, func(b []byte) any { return le.Uint64(b) }
	case TypeInt64:
		return 8, func(b []byte) any { return int64(le.Uint64(b)) }
	case TypeFloat64:
		return 8, func(b []byte) any { return math.Float64frombits(le.Uint64(b)) }
	}
	return 0, nil
}

func (d *decoder) value(vtype ValueType) (Value, error) {
	switch vtype {
	case TypeString:
		s, err := d.string()
		return Value{data: s}, err
	case TypeArray:
		return d.array()
	}
	size, decode := scalar(vtype)
	if size == 0 {
		return Value{}, errors.Errorf("unknown value type %d", vtype)
	}
	b, err := d.take(size)
	if err != nil {
		return Value{}, err
	}
	return Value{data: decode(b)}, nil
}

// array reads a GGUF typed array: uint32 element type, uint64 count, then elements.
func (d *decoder) array() (Value, error) {
	elemTag, err := d.uint32()
	if err != nil {
		return Value{}, errors.WithMessage(err, "read array element type")
	}
	count, err := d.uint64()
	if err != nil {
		return Value{}, errors.WithMessage(err, "read array count")
	}
	elemType := ValueType(elemTag)
	if elemType == TypeString {
		// Each string takes at least its 8 bytes length.
		if count > uint64(d.remaining()/8) {
			return Value{}, errors.Errorf("string array of %d elements larger than the file", count)
		}
		vals := make([]string, count)
		for i := range vals {
			if vals[i], err = d.string(); err != nil {
				return Value{}, errors.WithMessagef(err, "read string array element %d", i)
			}
		}
		return Value{data: vals}, nil
	}
	size, _ := scalar(elemType)
	if size == 0 {
		return Value{}, errors.Errorf("unsupported array element type %d", elemTag)
	}
	if count > uint64(d.remaining()/size) {
		return Value{}, errors.Errorf("array of %d elements of type %d larger than the file", count, elemTag)
	}
	b, _ := d.take(int(count) * size)
	switch elemType {
	case TypeUint8:
		return Value{data: append([]uint8(nil), b...)}, nil
	case TypeInt8:
		return Value{data: decodeArray(b, 1, func(b []byte) int8 { return int8(b[0]) })}, nil
	case TypeBool:
		return Value{data: decodeArray(b, 1, func(b []byte) bool { return b[0] != 0 })}, nil
	case TypeUint16:
		return Value{data: decodeArray(b, 2, binary.LittleEndian.Uint16)}, nil
	case TypeInt16:
		return Value{data: decodeArray(b, 2, func(b []byte) int16 { return int16(binary.LittleEndian.Uint16(b)) })}, nil
	case TypeUint32:
		return Value{data: decodeArray(b, 4, binary.LittleEndian.Uint32)}, nil
	case TypeInt32:
		return Value{data: decodeArray(b, 4, func(b []byte) int32 { return int32(binary.LittleEndian.Uint32(b)) })}, nil
	case TypeFloat32:
		return Value{data: decodeArray(b, 4, func(b []byte) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b)) })}, nil
	case TypeUint64:
		return Value{data: decodeArray(b, 8, binary.LittleEndian.Uint64)}, nil
	case TypeInt64:
		return Value{data: decodeArray(b, 8, func(b []byte) int64 { return int64(binary.LittleEndian.Uint64(b)) })}, nil
	default: // TypeFloat64
		return Value{data: decodeArray(b, 8, func(b []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b)) })}, nil
	}
}

func decodeArray[T any](b []byte, size int, decode func([]byte) T) []T {
	vals := make([]T, len(b)/size)
	for i := range vals {
		vals[i] = decode(b[i*size : (i+1)*size])
	}
	return vals
}
