// Package reactive provides Value, an observable cell used to publish
// state changes from the sync core to UI observers.
//
// A Value is created in one of two delivery modes:
//
//   - Broadcast: every subscriber receives every update, in order, through
//     its own mailbox. Slow subscribers never block the writer.
//   - SingleConsumer: updates go to one shared channel of capacity one.
//     Whichever subscriber reads first consumes the value; an unread value
//     is replaced by a newer one and is never delivered twice.
//
// Writes that do not change the value (per the configured equality) are
// suppressed unless forced. The onChanged hook runs synchronously before
// subscribers are notified, so derived cells can be recomputed first.
package reactive

import (
	"context"
	"reflect"
	"sync"

	"github.com/google/go-cmp/cmp"
)

// Mode selects how updates are delivered to subscribers.
type Mode int

const (
	Broadcast Mode = iota
	SingleConsumer
)

func (m Mode) String() string {
	if m == SingleConsumer {
		return "single_consumer"
	}
	return "broadcast"
}

// Snapshot is one delivered update. Present is false after ClearValue on a
// cell without an initial value.
type Snapshot[T any] struct {
	Value   T
	Present bool
}

// CancelFunc detaches a subscriber. It is safe to call more than once.
type CancelFunc func()

// Option configures a Value.
type Option[T any] func(*Value[T])

// WithID names the cell for diagnostics.
func WithID[T any](id string) Option[T] {
	return func(v *Value[T]) { v.id = id }
}

// WithInitial sets the value the cell starts with and returns to on ClearValue.
func WithInitial[T any](initial T) Option[T] {
	return func(v *Value[T]) {
		v.initial = initial
		v.hasInitial = true
	}
}

// WithMode selects the delivery mode. Broadcast is the default.
func WithMode[T any](mode Mode) Option[T] {
	return func(v *Value[T]) { v.mode = mode }
}

// WithOnChanged registers a hook invoked with the previous and the new value
// before subscribers are notified. The hook must not write to the same cell.
func WithOnChanged[T any](fn func(prev, next T)) Option[T] {
	return func(v *Value[T]) { v.onChanged = fn }
}

// WithEqual replaces the equality used for no-op suppression.
func WithEqual[T any](eq func(a, b T) bool) Option[T] {
	return func(v *Value[T]) { v.equal = eq }
}

// Value is a single mutable cell of type T.
type Value[T any] struct {
	id         string
	mode       Mode
	initial    T
	hasInitial bool
	equal      func(a, b T) bool
	onChanged  func(prev, next T)

	// publishMu orders whole set-and-notify sequences.
	publishMu sync.Mutex

	mu      sync.Mutex
	current T
	present bool
	subs    []*mailbox[Snapshot[T]]
	single  chan Snapshot[T]
	closed  bool
}

// New creates a Value.
func New[T any](opts ...Option[T]) *Value[T] {
	v := &Value[T]{id: "unknown"}
	for _, opt := range opts {
		opt(v)
	}
	if v.equal == nil {
		v.equal = func(a, b T) bool {
			return cmp.Equal(a, b, cmp.Exporter(func(_ reflect.Type) bool { return true }))
		}
	}
	if v.hasInitial {
		v.current = v.initial
		v.present = true
	}
	if v.mode == SingleConsumer {
		v.single = make(chan Snapshot[T], 1)
	}
	return v
}

// ID returns the diagnostic name of the cell.
func (v *Value[T]) ID() string { return v.id }

// Mode returns the delivery mode of the cell.
func (v *Value[T]) Mode() Mode { return v.mode }

// SetValue stores next and notifies subscribers. Unless force is set, a value
// equal to the current one is a no-op. It reports whether a notification
// was published.
func (v *Value[T]) SetValue(next T, force bool) bool {
	return v.set(next, true, force, true)
}

// SetValueSilently stores next without running the hook or notifying.
func (v *Value[T]) SetValueSilently(next T) {
	v.set(next, true, false, false)
}

// UpdateValue computes the next value from the current one and stores it
// like SetValue.
func (v *Value[T]) UpdateValue(fn func(current T, present bool) T, force bool) bool {
	cur, ok := v.GetValue()
	return v.SetValue(fn(cur, ok), force)
}

// ClearValue resets the cell to its initial value (or to absent) and always
// notifies.
func (v *Value[T]) ClearValue() {
	var zero T
	if v.hasInitial {
		v.set(v.initial, true, true, true)
		return
	}
	v.set(zero, false, true, true)
}

// GetValue returns the current value and whether one is present.
func (v *Value[T]) GetValue() (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current, v.present
}

// RequireValue returns the current value and panics when there is none.
func (v *Value[T]) RequireValue() T {
	cur, ok := v.GetValue()
	if !ok {
		panic("reactive: value " + v.id + " is not set")
	}
	return cur
}

// IsNull reports whether the cell holds no value.
func (v *Value[T]) IsNull() bool {
	_, ok := v.GetValue()
	return !ok
}

// ConsumeValue returns the current value and leaves the cell empty without
// notifying.
func (v *Value[T]) ConsumeValue() (T, bool) {
	var zero T
	v.mu.Lock()
	defer v.mu.Unlock()
	cur, ok := v.current, v.present
	v.current, v.present = zero, false
	return cur, ok
}

// Subscribe registers an observer. For Broadcast cells every subscriber has
// its own ordered channel; for SingleConsumer cells all subscribers share one
// channel. Updates published before Subscribe are not replayed, except an
// unread SingleConsumer value which goes to the first reader.
func (v *Value[T]) Subscribe() (<-chan Snapshot[T], CancelFunc) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.mode == SingleConsumer {
		return v.single, func() {}
	}

	mb := newMailbox[Snapshot[T]]()
	go mb.run()
	if v.closed {
		mb.stop()
		return mb.out, func() {}
	}
	v.subs = append(v.subs, mb)

	var once sync.Once
	return mb.out, func() {
		once.Do(func() {
			v.mu.Lock()
			for i, s := range v.subs {
				if s == mb {
					v.subs = append(v.subs[:i], v.subs[i+1:]...)
					break
				}
			}
			v.mu.Unlock()
			mb.stop()
		})
	}
}

// Observe calls fn for each delivered update until ctx is done. Calls are
// sequential, so fn is never invoked concurrently with itself.
func (v *Value[T]) Observe(ctx context.Context, fn func(Snapshot[T])) CancelFunc {
	ch, cancel := v.Subscribe()
	ctx, stop := context.WithCancel(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-ch:
				if !ok {
					return
				}
				fn(s)
			}
		}
	}()
	return func() {
		stop()
		cancel()
	}
}

// Close detaches every Broadcast subscriber, closing their channels.
// Writes after Close still update the value but reach no one.
func (v *Value[T]) Close() {
	v.mu.Lock()
	subs := v.subs
	v.subs = nil
	v.closed = true
	v.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

func (v *Value[T]) set(next T, present, force, notify bool) bool {
	v.publishMu.Lock()
	defer v.publishMu.Unlock()

	v.mu.Lock()
	prev, hadPrev := v.current, v.present
	changed := force || hadPrev != present || (present && !v.equal(prev, next))
	v.current, v.present = next, present
	v.mu.Unlock()

	if !changed || !notify {
		return changed && notify
	}

	if v.onChanged != nil {
		v.onChanged(prev, next)
	}
	v.publish(Snapshot[T]{Value: next, Present: present})
	return true
}

func (v *Value[T]) publish(s Snapshot[T]) {
	if v.mode == SingleConsumer {
		for {
			select {
			case v.single <- s:
				return
			default:
			}
			// Drop the unread value so the latest one wins.
			select {
			case <-v.single:
			default:
			}
		}
	}

	v.mu.Lock()
	subs := make([]*mailbox[Snapshot[T]], len(v.subs))
	copy(subs, v.subs)
	v.mu.Unlock()

	for _, mb := range subs {
		mb.push(s)
	}
}
