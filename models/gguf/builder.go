package gguf

import (
	"encoding/binary"
	"math"

	"github.com/gomlx/go-tokenizers/internal/files"
)

// Builder writes the metadata section of a GGUF (version 3) file with no tensors.
//
// It is used to create tokenizer-only GGUF files, and in tests.
type Builder struct {
	kvCount uint64
	buf     []byte
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) writeUint32(v uint32) { b.buf = binary.LittleEndian.AppendUint32(b.buf, v) }
func (b *Builder) writeUint64(v uint64) { b.buf = binary.LittleEndian.AppendUint64(b.buf, v) }

func (b *Builder) writeString(s string) {
	b.writeUint64(uint64(len(s)))
	b.buf = append(b.buf, s...)
}

func (b *Builder) writeKey(key string, vtype ValueType) {
	b.kvCount++
	b.writeString(key)
	b.writeUint32(uint32(vtype))
}

// String adds a string value.
func (b *Builder) String(key, value string) *Builder {
	b.writeKey(key, TypeString)
	b.writeString(value)
	return b
}

// Uint32 adds an uint32 value.
func (b *Builder) Uint32(key string, value uint32) *Builder {
	b.writeKey(key, TypeUint32)
	b.writeUint32(value)
	return b
}

// Uint64 adds an uint64 value.
func (b *Builder) Uint64(key string, value uint64) *Builder {
	b.writeKey(key, TypeUint64)
	b.writeUint64(value)
	return b
}

// Float32 adds a float32 value.
func (b *Builder) Float32(key string, value float32) *Builder {
	b.writeKey(key, TypeFloat32)
	b.writeUint32(math.Float32bits(value))
	return b
}

// Bool adds a bool value.
func (b *Builder) Bool(key string, value bool) *Builder {
	b.writeKey(key, TypeBool)
	if value {
		b.buf = append(b.buf, 1)
	} else {
		b.buf = append(b.buf, 0)
	}
	return b
}

// Strings adds an array of strings.
func (b *Builder) Strings(key string, values []string) *Builder {
	b.writeKey(key, TypeArray)
	b.writeUint32(uint32(TypeString))
	b.writeUint64(uint64(len(values)))
	for _, v := range values {
		b.writeString(v)
	}
	return b
}

// Int32s adds an array of int32.
func (b *Builder) Int32s(key string, values []int32) *Builder {
	b.writeKey(key, TypeArray)
	b.writeUint32(uint32(TypeInt32))
	b.writeUint64(uint64(len(values)))
	for _, v := range values {
		b.writeUint32(uint32(v))
	}
	return b
}

// Float32s adds an array of float32.
func (b *Builder) Float32s(key string, values []float32) *Builder {
	b.writeKey(key, TypeArray)
	b.writeUint32(uint32(TypeFloat32))
	b.writeUint64(uint64(len(values)))
	for _, v := range values {
		b.writeUint32(math.Float32bits(v))
	}
	return b
}

// Bytes returns the GGUF file contents.
func (b *Builder) Bytes() []byte {
	out := make([]byte, 0, 24+len(b.buf))
	out = append(out, ggufMagic...)
	out = binary.LittleEndian.AppendUint32(out, 3)
	out = binary.LittleEndian.AppendUint64(out, 0)
	out = binary.LittleEndian.AppendUint64(out, b.kvCount)
	return append(out, b.buf...)
}

// WriteFile writes the GGUF file to filePath.
func (b *Builder) WriteFile(filePath string) error {
	return files.WriteLocked(filePath, b.Bytes(), 0644)
}
