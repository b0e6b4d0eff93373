// Package sync implements the per-field client/server reconciliation
// protocol: versioned optimistic values with stale-update rejection, the
// wire frames that carry mutations and confirmations, and a websocket
// channel binding fields to a server session.
package sync

import (
	"context"
	"sync"

	"github.com/mirageui/mirage/internal/metrics"
)

// SendFunc delivers one mutation to the server. It is invoked on its own
// goroutine; the version it is handed is the field's version at send time,
// and the server's eventual confirmation must be tagged with it.
type SendFunc func(ctx context.Context, m Mutation) error

// Mutation is the outgoing half of the wire contract: enough for the
// server to apply the same logical change and tag its response.
type Mutation struct {
	Field   string
	Version uint64
	Value   any
}

// Listener observes field changes. Notified after the externally visible
// value may have changed, outside any lock.
type Listener func()

// Field is the client-resident state cell for one reactive field.
//
// The externally visible value is always Value. ConfirmedValue and
// ConfirmedVersion track the latest state the server has acknowledged;
// Version counts local optimistic mutations. Invariants:
//
//	ConfirmedVersion <= Version, always
//	Value == ConfirmedValue once Version == ConfirmedVersion
type Field[T any] struct {
	name string

	mu               sync.Mutex
	value            T
	confirmedValue   T
	version          uint64
	confirmedVersion uint64
	unconfirmed      bool // a send failed and no later confirmation arrived

	listeners []Listener
	sendCtx   context.Context
}

// NewField creates a field with value and confirmed value both initial and
// both versions zero, the state of a freshly mounted component.
func NewField[T any](name string, initial T) *Field[T] {
	return &Field[T]{
		name:           name,
		value:          initial,
		confirmedValue: initial,
		sendCtx:        context.Background(),
	}
}

// WithContext sets the context handed to SendFuncs. Useful for tying
// in-flight sends to a session lifetime.
func (f *Field[T]) WithContext(ctx context.Context) *Field[T] {
	f.mu.Lock()
	f.sendCtx = ctx
	f.mu.Unlock()
	return f
}

// Name returns the reactive field name this cell synchronizes.
func (f *Field[T]) Name() string { return f.name }

// Value returns the externally visible value.
func (f *Field[T]) Value() T {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Confirmed returns the latest server-acknowledged value and its version.
func (f *Field[T]) Confirmed() (T, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confirmedValue, f.confirmedVersion
}

// Version returns the current optimistic version.
func (f *Field[T]) Version() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version
}

// Pending reports whether an optimistic mutation awaits confirmation.
func (f *Field[T]) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version != f.confirmedVersion
}

// Unconfirmed reports whether a send failed with no later confirmation:
// the perpetually-unconfirmed liveness condition the host is responsible
// for resolving. This package never retries.
func (f *Field[T]) Unconfirmed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unconfirmed
}

// SetOptimistic applies newValue immediately and notifies the server
// asynchronously via send. The UI observes the new value synchronously;
// the server response eventually lands in ConfirmedSet tagged with the
// version captured here. A nil send makes the mutation local-only.
func (f *Field[T]) SetOptimistic(newValue T, send SendFunc) {
	f.mu.Lock()
	f.version++
	f.value = newValue
	m := Mutation{Field: f.name, Version: f.version, Value: newValue}
	ctx := f.sendCtx
	f.mu.Unlock()

	f.notify()

	if send == nil {
		return
	}
	go func() {
		if err := send(ctx, m); err != nil {
			f.mu.Lock()
			if f.confirmedVersion < m.Version {
				f.unconfirmed = true
			}
			f.mu.Unlock()
		}
	}()
}

// ConfirmedSet records a server confirmation for atVersion. The confirmed
// value and version always advance (monotonically), but the visible value
// is overwritten only when no newer optimistic mutation happened since:
// atVersion >= Version. A stale confirmation is dropped without touching
// the visible value, no matter how many times it is redelivered.
//
// Returns whether the visible value was overwritten.
func (f *Field[T]) ConfirmedSet(serverValue T, atVersion uint64) bool {
	f.mu.Lock()

	// A confirmation for a version we never sent is clamped; the server
	// only ever echoes versions it was handed, so this preserves the
	// ConfirmedVersion <= Version invariant against a misbehaving peer.
	if atVersion > f.version {
		atVersion = f.version
	}

	if atVersion > f.confirmedVersion {
		f.confirmedVersion = atVersion
		f.confirmedValue = serverValue
		f.unconfirmed = false
	}

	applied := atVersion >= f.version
	if applied {
		f.value = serverValue
	}
	f.mu.Unlock()

	metrics.RecordConfirmation(applied)
	if applied {
		f.notify()
	}
	return applied
}

// Subscribe registers a change listener and returns an unsubscribe
// function.
func (f *Field[T]) Subscribe(l Listener) func() {
	f.mu.Lock()
	f.listeners = append(f.listeners, l)
	idx := len(f.listeners) - 1
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		if idx < len(f.listeners) {
			f.listeners[idx] = nil
		}
		f.mu.Unlock()
	}
}

// notify calls listeners outside the lock, copy-before-notify.
func (f *Field[T]) notify() {
	f.mu.Lock()
	ls := make([]Listener, len(f.listeners))
	copy(ls, f.listeners)
	f.mu.Unlock()

	for _, l := range ls {
		if l != nil {
			l()
		}
	}
}
