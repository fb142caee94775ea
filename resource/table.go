package resource

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// UnifiedTable implements the Table interface using a Backend for storage.
// Destructors (Dropper.Drop) run outside the backend lock and a panicking
// destructor is recovered and logged, never propagated.
type UnifiedTable struct {
	backend   *LocalBackend
	observers []Observer
	obsMu     sync.RWMutex
	closed    bool
	closeMu   sync.RWMutex
}

// NewTable creates a new unified table with a LocalBackend.
func NewTable() *UnifiedTable {
	return &UnifiedTable{
		backend: NewLocalBackend(),
	}
}

// Insert adds a value and returns its handle, or 0 once the table is closed.
func (t *UnifiedTable) Insert(typeID uint32, value any) Handle {
	t.closeMu.RLock()
	if t.closed {
		t.closeMu.RUnlock()
		return 0
	}
	t.closeMu.RUnlock()

	handle, err := t.backend.Create(typeID, value)
	if err != nil {
		return 0
	}

	t.notify(Event{
		Type:   EventCreated,
		Handle: handle,
		TypeID: typeID,
		Value:  value,
	})

	return handle
}

// Get retrieves a value by handle.
func (t *UnifiedTable) Get(handle Handle) (any, bool) {
	return t.backend.Get(handle)
}

// GetTyped retrieves a value only if it matches the expected type.
func (t *UnifiedTable) GetTyped(handle Handle, typeID uint32) (any, bool) {
	actualTypeID, ok := t.backend.TypeID(handle)
	if !ok || actualTypeID != typeID {
		return nil, false
	}
	return t.backend.Get(handle)
}

// Remove drops a registration and returns (value, true) if this call
// destroyed it. A registration pinned by Borrow is destroyed by the final
// ReturnBorrow instead and Remove reports false.
func (t *UnifiedTable) Remove(handle Handle) (any, bool) {
	typeID, _ := t.backend.TypeID(handle)
	value, ok := t.backend.Drop(handle)
	if !ok {
		return nil, false
	}

	t.destroy(handle, typeID, value)
	return value, true
}

// Borrow pins a registration so that a concurrent Remove cannot destroy the
// value while it is in use.
func (t *UnifiedTable) Borrow(handle Handle) (any, bool) {
	if !t.backend.Borrow(handle) {
		return nil, false
	}
	value, ok := t.backend.Get(handle)
	if !ok {
		return nil, false
	}
	typeID, _ := t.backend.TypeID(handle)
	t.notify(Event{
		Type:   EventBorrowed,
		Handle: handle,
		TypeID: typeID,
		Value:  value,
	})
	return value, true
}

// ReturnBorrow releases a pin taken by Borrow. If a Remove happened while the
// registration was pinned, the value is destroyed now.
func (t *UnifiedTable) ReturnBorrow(handle Handle) {
	typeID, _ := t.backend.TypeID(handle)
	value, dropped := t.backend.ReturnBorrow(handle)
	t.notify(Event{
		Type:   EventBorrowReturned,
		Handle: handle,
		TypeID: typeID,
	})
	if dropped {
		t.destroy(handle, typeID, value)
	}
}

// Subscribe adds an observer for lifecycle events.
func (t *UnifiedTable) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *UnifiedTable) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of live registrations.
func (t *UnifiedTable) Len() int {
	return t.backend.Len()
}

// Clear drops all registrations.
func (t *UnifiedTable) Clear() {
	// Collect handles first to avoid holding lock during Remove
	var handles []Handle
	t.backend.Each(func(h Handle, typeID uint32, value any) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		t.Remove(h)
	}
}

// Close destroys all live registrations and stops accepting operations.
// Destructor panics are collected into the returned error.
func (t *UnifiedTable) Close() error {
	t.closeMu.Lock()
	t.closed = true
	t.closeMu.Unlock()

	values, err := t.backend.Close()
	for _, v := range values {
		if derr := runDropper(v); derr != nil {
			err = multierr.Append(err, derr)
		}
		t.notify(Event{Type: EventDropped, Value: v})
	}
	return err
}

func (t *UnifiedTable) destroy(handle Handle, typeID uint32, value any) {
	if err := runDropper(value); err != nil {
		Logger().Error("resource destructor panicked",
			zap.Uint64("handle", uint64(handle)),
			zap.Uint32("type", typeID),
			zap.Error(err))
	}

	t.notify(Event{
		Type:   EventDropped,
		Handle: handle,
		TypeID: typeID,
		Value:  value,
	})
}

// runDropper calls Drop on values implementing Dropper and converts a panic
// into an error.
func runDropper(value any) (err error) {
	d, ok := value.(Dropper)
	if !ok {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("drop %T: %v", value, r)
		}
	}()
	d.Drop()
	return nil
}

func (t *UnifiedTable) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
