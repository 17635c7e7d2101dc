package utils

import (
	"time"

	"golang.org/x/exp/constraints"
)

// Sleeps a little longer on each failed attempt, up to 200ms.
func BackOff(count int) {
	if count > 2000 {
		count = 2000
	}
	time.Sleep(time.Duration((count+1)*100) * time.Microsecond)
}

func Max[T constraints.Ordered](x, y T) T {
	if x < y {
		return y
	}
	return x
}

func Min[T constraints.Ordered](x, y T) T {
	if y < x {
		return y
	}
	return x
}
