// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package rvsim

import "fmt"

// An Item is the content of a stream's item slot for one tick: either a value
// on offer or nothing.
//
type Item[T any] struct {
	v     T
	valid bool
}

// Some returns an Item holding v.
//
func Some[T any](v T) Item[T] {
	return Item[T]{v: v, valid: true}
}

// None returns an empty Item.
//
func None[T any]() Item[T] {
	return Item[T]{}
}

// Get returns the item's value and whether it is present.
//
func (i Item[T]) Get() (T, bool) {
	return i.v, i.valid
}

// Valid returns true if a value is present.
//
func (i Item[T]) Valid() bool { return i.valid }

// Value returns the item's value. The result is the zero value of T if the
// item is empty.
//
func (i Item[T]) Value() T { return i.v }

func (i Item[T]) String() string {
	if !i.valid {
		return "-"
	}
	return fmt.Sprint(i.v)
}
