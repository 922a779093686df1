package nkdi

// Disposable is implemented by services that hold resources.
// The container calls Close when the scope that owns the instance is released,
// when the service is released, or on ReleaseAll. Transient instances and
// instances supplied by the host are never closed by the container.
//
// Example:
//
//	type Connection struct {
//	    conn net.Conn
//	}
//
//	func (c *Connection) Close() error {
//	    return c.conn.Close()
//	}
type Disposable interface {
	Close() error
}

// Initializer is implemented by services that need a hook after construction
// and injection have completed. A returned error fails the resolution.
type Initializer interface {
	Initialize() error
}

// Prototype is a template that can produce fresh copies of itself.
// Component registrations clone their prototype on every resolution and then
// run member injection on the clone.
type Prototype interface {
	// Clone returns a new instance based on the receiver. parent is the value
	// passed with the Parent registration option, or nil.
	Clone(parent any) any
}
