package resource

// Typed is a TypedTable view over a UnifiedTable restricted to one type ID.
// Several Typed views may share a table.
type Typed[T any] struct {
	table  *UnifiedTable
	typeID uint32
}

// NewTyped creates a typed view of table for typeID.
func NewTyped[T any](table *UnifiedTable, typeID uint32) *Typed[T] {
	return &Typed[T]{table: table, typeID: typeID}
}

// Insert adds a value and returns its handle.
func (t *Typed[T]) Insert(value T) Handle {
	return t.table.Insert(t.typeID, value)
}

// Get retrieves a value by handle.
func (t *Typed[T]) Get(handle Handle) (T, bool) {
	var zero T
	value, ok := t.table.GetTyped(handle, t.typeID)
	if !ok {
		return zero, false
	}
	v, ok := value.(T)
	return v, ok
}

// Borrow pins a registration for the duration of a call.
func (t *Typed[T]) Borrow(handle Handle) (T, bool) {
	var zero T
	if typeID, ok := t.table.backend.TypeID(handle); !ok || typeID != t.typeID {
		return zero, false
	}
	value, ok := t.table.Borrow(handle)
	if !ok {
		return zero, false
	}
	v, ok := value.(T)
	if !ok {
		t.table.ReturnBorrow(handle)
		return zero, false
	}
	return v, true
}

// ReturnBorrow releases a pin taken by Borrow.
func (t *Typed[T]) ReturnBorrow(handle Handle) {
	t.table.ReturnBorrow(handle)
}

// Remove drops a registration and returns (value, true) if this call
// destroyed it.
func (t *Typed[T]) Remove(handle Handle) (T, bool) {
	var zero T
	if typeID, ok := t.table.backend.TypeID(handle); !ok || typeID != t.typeID {
		return zero, false
	}
	value, ok := t.table.Remove(handle)
	if !ok {
		return zero, false
	}
	v, _ := value.(T)
	return v, true
}

// Len returns the number of live registrations of this type.
func (t *Typed[T]) Len() int {
	n := 0
	t.table.backend.Each(func(_ Handle, typeID uint32, _ any) bool {
		if typeID == t.typeID {
			n++
		}
		return true
	})
	return n
}

// Each iterates over all live registrations of this type.
func (t *Typed[T]) Each(fn func(Handle, T) bool) {
	t.table.backend.Each(func(h Handle, typeID uint32, value any) bool {
		if typeID != t.typeID {
			return true
		}
		v, ok := value.(T)
		if !ok {
			return true
		}
		return fn(h, v)
	})
}

var _ TypedTable[int] = (*Typed[int])(nil)
