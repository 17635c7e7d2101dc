package utils

import (
	"sync/atomic"
	"unsafe"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/constraints"
)

// Field and accumulator element types.
type Number interface {
	constraints.Integer | constraints.Float
}

//go:nosplit
func Noescape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}

// Atomically applies fn to the value behind target, for 4 or 8 byte numbers.
// fn returns the new value and whether to store it. Returns the value fn was applied to.
//
//go:nosplit
func atomicUpdate[T Number](target *T, fn func(old T) (T, bool)) (old T) {
	switch unsafe.Sizeof(old) {
	case 8:
		p := (*uint64)(Noescape(unsafe.Pointer(target)))
		for {
			oldU := atomic.LoadUint64(p)
			old = fromBits64[T](oldU)
			n, store := fn(old)
			if !store || atomic.CompareAndSwapUint64(p, oldU, toBits64(n)) {
				return old
			}
		}
	case 4:
		p := (*uint32)(Noescape(unsafe.Pointer(target)))
		for {
			oldU := atomic.LoadUint32(p)
			old = fromBits32[T](oldU)
			n, store := fn(old)
			if !store || atomic.CompareAndSwapUint32(p, oldU, toBits32(n)) {
				return old
			}
		}
	}
	log.Panic().Msg("Atomic update needs a 4 or 8 byte type, got " + V(unsafe.Sizeof(old)) + " bytes")
	return old
}

// Atomically adds delta; returns the old value.
func AtomicAdd[T Number](target *T, delta T) (old T) {
	return atomicUpdate(target, func(o T) (T, bool) { return o + delta, delta != 0 })
}

// Atomically lowers target to new if smaller; returns the old value.
func AtomicMin[T Number](target *T, new T) (old T) {
	return atomicUpdate(target, func(o T) (T, bool) { return new, new < o })
}

// Atomically raises target to new if larger; returns the old value.
func AtomicMax[T Number](target *T, new T) (old T) {
	return atomicUpdate(target, func(o T) (T, bool) { return new, new > o })
}

func AtomicLoad[T Number](target *T) T {
	return atomicUpdate(target, func(o T) (T, bool) { return o, false })
}

//go:nosplit
func fromBits64[T Number](b uint64) T {
	return *(*T)(unsafe.Pointer(&b))
}

//go:nosplit
func toBits64[T Number](f T) uint64 {
	return *(*uint64)(unsafe.Pointer(&f))
}

//go:nosplit
func fromBits32[T Number](b uint32) T {
	return *(*T)(unsafe.Pointer(&b))
}

//go:nosplit
func toBits32[T Number](f T) uint32 {
	return *(*uint32)(unsafe.Pointer(&f))
}
