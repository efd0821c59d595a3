package aggregate

// Snapshot is a per-source result: either a present value or absent.
type Snapshot[T any] struct {
	Value T
	OK    bool
}

// Present wraps a successfully fetched value.
func Present[T any](v T) Snapshot[T] {
	return Snapshot[T]{Value: v, OK: true}
}

// Absent returns the absence marker for T.
func Absent[T any]() Snapshot[T] {
	return Snapshot[T]{}
}

// Take converts an outcome into a typed snapshot. Failed outcomes and values of
// an unexpected type are both treated as absent.
func Take[T any](o Outcome) Snapshot[T] {
	if !o.OK() {
		return Absent[T]()
	}
	v, ok := o.Value.(T)
	if !ok {
		return Absent[T]()
	}
	return Present(v)
}
