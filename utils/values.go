package utils

import (
	"math"
	"unsafe"
)

// Fixed size value helpers. Hosts of one cluster share an architecture, so values cross the wire
// in their in-memory (little endian) layout.

func SizeOf[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// Views a slice of plain values as bytes, without copying.
func AsBytes[T any](vals []T) []byte {
	if len(vals) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&vals[0])), len(vals)*SizeOf[T]())
}

// Appends the raw bytes of vals to buf.
func AppendValues[T any](buf []byte, vals ...T) []byte {
	return append(buf, AsBytes(vals)...)
}

// Decodes count values from the front of buf, returning the rest of buf.
// Returns ok=false if buf is too short.
func ReadValues[T any](buf []byte, count int) (vals []T, rest []byte, ok bool) {
	n := count * SizeOf[T]()
	if n > len(buf) {
		return nil, buf, false
	}
	vals = make([]T, count)
	copy(AsBytes(vals), buf[:n])
	return vals, buf[n:], true
}

func IsFloat[T Number]() bool {
	half := 0.5
	return T(half) != 0
}

func IsSigned[T Number]() bool {
	var zero T
	one := zero + 1
	return zero-one < zero
}

// Largest value of T; +Inf for floats.
func MaxOf[T Number]() (v T) {
	if IsFloat[T]() {
		inf := math.Inf(1)
		return T(inf)
	}
	out := unsafe.Slice((*byte)(unsafe.Pointer(&v)), SizeOf[T]())
	for i := range out {
		out[i] = 0xFF
	}
	if IsSigned[T]() {
		out[len(out)-1] = 0x7F
	}
	return v
}

// Smallest value of T; -Inf for floats.
func MinOf[T Number]() (v T) {
	if IsFloat[T]() {
		inf := math.Inf(-1)
		return T(inf)
	}
	if IsSigned[T]() {
		out := unsafe.Slice((*byte)(unsafe.Pointer(&v)), SizeOf[T]())
		out[len(out)-1] = 0x80
	}
	return v
}
