package nkdi

import (
	"fmt"
	"reflect"
)

// lifecycleManager keeps the descriptors of one scope table that captured a
// disposer, in the order they were built.
type lifecycleManager struct {
	tracked []*descriptor
}

// pendingClose is a disposer detached from its descriptor, waiting to be closed.
type pendingClose struct {
	serviceType reflect.Type
	disposer    Disposable
}

// track records a descriptor that owns a disposer.
func (m *lifecycleManager) track(d *descriptor) {
	if d.disposer == nil {
		return
	}
	m.tracked = append(m.tracked, d)
}

// forget stops tracking d without disposing it.
func (m *lifecycleManager) forget(d *descriptor) {
	for i, t := range m.tracked {
		if t == d {
			m.tracked = append(m.tracked[:i], m.tracked[i+1:]...)
			return
		}
	}
}

// drain detaches every tracked disposer in reverse build order (LIFO) and
// stops tracking them. The caller closes them with closeAll, outside any lock.
func (m *lifecycleManager) drain() []pendingClose {
	tracked := m.tracked
	m.tracked = nil

	pending := make([]pendingClose, 0, len(tracked))
	for i := len(tracked) - 1; i >= 0; i-- {
		if disposer := tracked[i].detach(); disposer != nil {
			pending = append(pending, pendingClose{serviceType: tracked[i].serviceType, disposer: disposer})
		}
	}
	return pending
}

// count returns the number of tracked descriptors.
func (m *lifecycleManager) count() int {
	return len(m.tracked)
}

// closeAll closes every pending disposer in order. Errors are collected, not
// short-circuited.
func closeAll(pending []pendingClose) []error {
	var errs []error
	for _, p := range pending {
		if err := p.disposer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", formatType(p.serviceType), err))
		}
	}
	return errs
}
