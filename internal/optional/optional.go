// Package optional models a value that may be absent without resorting to nil pointers.
package optional

// Value holds either a present value of T or nothing.
type Value[T any] struct {
	value   T
	present bool
}

// Some wraps a present value.
func Some[T any](value T) Value[T] {
	return Value[T]{value: value, present: true}
}

// None returns an absent value.
func None[T any]() Value[T] {
	return Value[T]{}
}

// Get returns the wrapped value and whether it is present.
func (v Value[T]) Get() (T, bool) {
	return v.value, v.present
}

// IsPresent reports whether a value is held.
func (v Value[T]) IsPresent() bool {
	return v.present
}

// OrElse returns the wrapped value or fallback when absent.
func (v Value[T]) OrElse(fallback T) T {
	if !v.present {
		return fallback
	}
	return v.value
}
