package graph

import (
	"github.com/ScottSallinen/dgsync/utils"
)

// Folds a mirror's contribution into its master.
//
// Additive reducers receive the change made to a mirror since it was last synchronized,
// so a contribution is counted once no matter how many rounds the mirror takes part in.
type Reducer[T utils.Number] struct {
	Name     string
	Combine  func(master *T, incoming T)
	additive bool
}

func ReduceMin[T utils.Number]() Reducer[T] {
	return Reducer[T]{Name: "min", Combine: func(m *T, v T) {
		if v < *m {
			*m = v
		}
	}}
}

func ReduceMax[T utils.Number]() Reducer[T] {
	return Reducer[T]{Name: "max", Combine: func(m *T, v T) {
		if v > *m {
			*m = v
		}
	}}
}

func ReduceAdd[T utils.Number]() Reducer[T] {
	return Reducer[T]{Name: "add", additive: true, Combine: func(m *T, v T) { *m += v }}
}

// Last writer wins; with several writing mirrors the highest host id wins.
func ReduceReplace[T utils.Number]() Reducer[T] {
	return Reducer[T]{Name: "replace", Combine: func(m *T, v T) { *m = v }}
}

func overwrite[T utils.Number](mirror *T, master T) {
	*mirror = master
}
