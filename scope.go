package nkdi

// ScopeService exposes the scope operations of a Container. The container
// registers itself under this interface, so services can depend on it.
type ScopeService interface {
	// CurrentScope returns the id new Scoped resolutions land in.
	CurrentScope() int

	// CreateScope allocates the next scope id and makes it current.
	CreateScope() int

	// SetCurrentScope switches the current scope.
	SetCurrentScope(id int) error

	// ReleaseScope disposes everything built in scope id and removes it.
	ReleaseScope(id int) error
}

var _ ScopeService = (*Container)(nil)

// CurrentScope returns the id of the scope that receives new Scoped
// instances. The main scope is 0.
func (c *Container) CurrentScope() int {
	return int(c.store.current.Load())
}

// CreateScope allocates the next scope id, starting at 1, and makes it
// current. Ids are never reused, even after the scope is released.
func (c *Container) CreateScope() int {
	id := int(c.store.counter.Add(1))
	c.store.scopes.Store(id, newScopeTable(id))
	c.store.current.Store(int64(id))

	c.logger.Debug("scope created", "scope", id)
	return id
}

// SetCurrentScope makes id the current scope. It fails with a ScopeError when
// id was never created or has been released.
func (c *Container) SetCurrentScope(id int) error {
	if _, ok := c.store.table(id); !ok {
		return ScopeError{ScopeID: id, Cause: ErrScopeNotFound}
	}

	c.store.current.Store(int64(id))
	return nil
}

// ReleaseScope closes every disposable built in scope id, in reverse build
// order, then removes the scope. When id was current, the main scope becomes
// current again.
//
// Releasing the main scope is refused with a warning and returns nil. An id
// that was never created is a ScopeError; an id already released, or a scope
// in which nothing was resolved, only logs a warning.
func (c *Container) ReleaseScope(id int) error {
	if id <= mainScope {
		c.logger.Warn("main scope cannot be released", "scope", id, "error", ErrMainScope)
		return nil
	}
	if int64(id) > c.store.counter.Load() {
		return ScopeError{ScopeID: id, Cause: ErrScopeNotFound}
	}

	c.store.mu.Lock()
	table, ok := c.store.table(id)
	if !ok {
		c.store.mu.Unlock()
		c.logger.Warn("scope already released", "scope", id)
		return nil
	}
	c.store.scopes.Delete(id)
	empty := len(table.entries) == 0
	pending := table.release()
	c.store.mu.Unlock()

	if empty {
		c.logger.Warn("releasing an empty scope", "scope", id)
	}

	c.store.current.CompareAndSwap(int64(id), mainScope)

	errs := closeAll(pending)
	c.logger.Debug("scope released", "scope", id, "disposed", len(pending))

	if len(errs) > 0 {
		return DisposalError{Context: "scope", Errors: errs}
	}
	return nil
}
