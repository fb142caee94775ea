package resource

// Handle is an opaque key to a registration in a table.
// The low 32 bits select a slot, the high 32 bits carry the slot generation,
// so a handle is never valid again once its registration is dropped.
// Handle 0 is reserved and always invalid.
type Handle uint64

func makeHandle(slot, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(slot))
}

func (h Handle) slot() uint32 { return uint32(h) }
func (h Handle) gen() uint32  { return uint32(h >> 32) }

// Event types for registration lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
	EventBorrowed
	EventBorrowReturned
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	case EventBorrowed:
		return "borrowed"
	case EventBorrowReturned:
		return "borrow_returned"
	}
	return "unknown"
}

// Event represents a registration lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	TypeID uint32
	Type   EventType
}

// Observer receives notifications about registration lifecycle events.
// Observers may be notified from a collector goroutine and must not block.
type Observer interface {
	OnResourceEvent(Event)
}

// Backend provides the underlying storage mechanism for registrations.
type Backend interface {
	// Create stores a value and returns a handle.
	Create(typeID uint32, value any) (Handle, error)

	// Get retrieves a value by handle.
	Get(handle Handle) (any, bool)

	// Drop removes a registration and returns (value, true) if the destructor
	// should run now. With outstanding borrows the drop is deferred until the
	// last ReturnBorrow, which then reports the value instead.
	Drop(handle Handle) (any, bool)

	// Borrow pins a registration for the duration of a call.
	Borrow(handle Handle) bool

	// ReturnBorrow releases a pin. It returns (value, true) when a deferred
	// drop completed with this return.
	ReturnBorrow(handle Handle) (any, bool)

	// Close drops every registration and returns the values that were live.
	Close() ([]any, error)
}

// Table manages registrations with type information and observer support.
type Table interface {
	// Insert adds a value and returns its handle.
	Insert(typeID uint32, value any) Handle

	// Get retrieves a value by handle.
	Get(handle Handle) (any, bool)

	// GetTyped retrieves a value only if it matches the expected type.
	GetTyped(handle Handle, typeID uint32) (any, bool)

	// Remove drops a registration and returns (value, true) if this call
	// destroyed it.
	Remove(handle Handle) (any, bool)

	// Subscribe adds an observer for lifecycle events.
	Subscribe(Observer)

	// Unsubscribe removes an observer.
	Unsubscribe(Observer)

	// Len returns the number of live registrations.
	Len() int

	// Clear drops all registrations.
	Clear()

	// Close releases all registrations and stops accepting operations.
	Close() error
}

// TypedTable provides type-safe access to registrations of a specific type.
type TypedTable[T any] interface {
	// Insert adds a value and returns its handle.
	Insert(value T) Handle

	// Get retrieves a value by handle.
	Get(handle Handle) (T, bool)

	// Remove drops a registration and returns (value, true) if found.
	Remove(handle Handle) (T, bool)

	// Len returns the number of live registrations.
	Len() int

	// Each iterates over all live registrations.
	Each(func(Handle, T) bool)
}

// Dropper is optionally implemented by values that need cleanup when their
// registration is destroyed.
type Dropper interface {
	Drop()
}
