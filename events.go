package nkdi

import (
	"sync"
)

// Events is the host notification hub. The host publishes application
// lifecycle notifications and services subscribe to them; the container
// never publishes by itself. Every subscription returns a function that
// removes it.
type Events struct {
	pause       hub[bool]
	focus       hub[bool]
	sceneLoaded hub[int]
	sceneUnload hub[int]
	update      hub[struct{}]
	fixedUpdate hub[struct{}]
}

// NewEvents creates an empty hub.
func NewEvents() *Events {
	return &Events{}
}

// OnPause subscribes to pause changes.
func (e *Events) OnPause(fn func(paused bool)) (unsubscribe func()) {
	return e.pause.subscribe(fn)
}

// OnFocus subscribes to focus changes.
func (e *Events) OnFocus(fn func(focused bool)) (unsubscribe func()) {
	return e.focus.subscribe(fn)
}

// OnSceneLoaded subscribes to scene loads.
func (e *Events) OnSceneLoaded(fn func(index int)) (unsubscribe func()) {
	return e.sceneLoaded.subscribe(fn)
}

// OnSceneUnloaded subscribes to scene unloads.
func (e *Events) OnSceneUnloaded(fn func(index int)) (unsubscribe func()) {
	return e.sceneUnload.subscribe(fn)
}

// OnUpdate subscribes to per-frame updates.
func (e *Events) OnUpdate(fn func()) (unsubscribe func()) {
	return e.update.subscribe(tick(fn))
}

// OnFixedUpdate subscribes to fixed-step updates.
func (e *Events) OnFixedUpdate(fn func()) (unsubscribe func()) {
	return e.fixedUpdate.subscribe(tick(fn))
}

// PublishPause notifies pause subscribers.
func (e *Events) PublishPause(paused bool) { e.pause.publish(paused) }

// PublishFocus notifies focus subscribers.
func (e *Events) PublishFocus(focused bool) { e.focus.publish(focused) }

// PublishSceneLoaded notifies scene-loaded subscribers.
func (e *Events) PublishSceneLoaded(index int) { e.sceneLoaded.publish(index) }

// PublishSceneUnloaded notifies scene-unloaded subscribers.
func (e *Events) PublishSceneUnloaded(index int) { e.sceneUnload.publish(index) }

// PublishUpdate notifies per-frame subscribers.
func (e *Events) PublishUpdate() { e.update.publish(struct{}{}) }

// PublishFixedUpdate notifies fixed-step subscribers.
func (e *Events) PublishFixedUpdate() { e.fixedUpdate.publish(struct{}{}) }

func tick(fn func()) func(struct{}) {
	if fn == nil {
		return nil
	}
	return func(struct{}) { fn() }
}

// hub is a list of subscribers for one event. Subscribers are called in
// subscription order, outside the lock, so they may subscribe or unsubscribe.
type hub[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

func (h *hub[T]) subscribe(fn func(T)) func() {
	if fn == nil {
		return func() {}
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs = append(h.subs, subscriber[T]{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			for i, s := range h.subs {
				if s.id == id {
					h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (h *hub[T]) publish(v T) {
	h.mu.RLock()
	subs := h.subs
	h.mu.RUnlock()

	for _, s := range subs {
		s.fn(v)
	}
}
