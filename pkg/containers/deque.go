// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package containers

import (
	"github.com/edwingeng/deque"
)

// Deque is a FIFO queue backed by edwingeng/deque.
// It is not thread-safe, callers serialize access with their own lock.
type Deque[T any] struct {
	deque deque.Deque
}

// NewDeque creates a new Deque instance
func NewDeque[T any]() *Deque[T] {
	return &Deque[T]{
		deque: deque.NewDeque(),
	}
}

// Push appends elem to the back.
func (d *Deque[T]) Push(elem T) {
	d.deque.PushBack(elem)
}

// Pop removes the front element.
func (d *Deque[T]) Pop() (T, bool) {
	if d.deque.Empty() {
		var noVal T
		return noVal, false
	}
	return d.deque.PopFront().(T), true
}

// Peek returns the front element without removing it.
func (d *Deque[T]) Peek() (T, bool) {
	if d.deque.Empty() {
		var noVal T
		return noVal, false
	}
	return d.deque.Front().(T), true
}

// Back returns the last element without removing it.
func (d *Deque[T]) Back() (T, bool) {
	if d.deque.Empty() {
		var noVal T
		return noVal, false
	}
	return d.deque.Back().(T), true
}

// Size returns the number of elements.
func (d *Deque[T]) Size() int {
	return d.deque.Len()
}

// RemoveIf drops every element for which pred returns true, keeping the order
// of the others. It returns the removed elements.
func (d *Deque[T]) RemoveIf(pred func(T) bool) []T {
	var removed []T
	n := d.deque.Len()
	for i := 0; i < n; i++ {
		elem := d.deque.PopFront().(T)
		if pred(elem) {
			removed = append(removed, elem)
			continue
		}
		d.deque.PushBack(elem)
	}
	return removed
}
