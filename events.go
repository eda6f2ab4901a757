package schemaless

import (
	"errors"
	"sync"
)

// ErrStopDispatch, returned from a HandlerFunc, consumes the event: handlers
// bound after the returning one are not invoked, and the write proceeds.
var ErrStopDispatch = errors.New("schemaless: stop dispatch")

// HandlerFunc observes a committed-to-be write. It runs synchronously inside
// the writing transaction, so further writes it issues join that transaction.
// Returning ErrStopDispatch consumes the event; any other non-nil error
// aborts the write and rolls the transaction back.
type HandlerFunc func(rowKey int64, column string, value any) error

// Subscription is a handle to one bound handler.
type Subscription struct {
	bus  *eventBus
	buck string
	fn   HandlerFunc
}

// Unbind removes the handler. Unbinding twice is a no-op.
func (s *Subscription) Unbind() {
	s.bus.unbind(s)
}

// eventBus holds the handlers of one DB, keyed by keyspace storage name.
// Handlers never leak across DB instances.
type eventBus struct {
	mu   sync.Mutex
	subs map[string][]*Subscription
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[string][]*Subscription)}
}

func (bus *eventBus) bind(buck string, fn HandlerFunc) *Subscription {
	sub := &Subscription{bus: bus, buck: buck, fn: fn}
	bus.mu.Lock()
	bus.subs[buck] = append(bus.subs[buck], sub)
	bus.mu.Unlock()
	return sub
}

func (bus *eventBus) unbind(sub *Subscription) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	list := bus.subs[sub.buck]
	for i, s := range list {
		if s == sub {
			bus.subs[sub.buck] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (bus *eventBus) hasHandlers(buck string) bool {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return len(bus.subs[buck]) > 0
}

// dispatch invokes handlers in binding order. The subscriber list is
// snapshotted up front, so handlers binding or unbinding during dispatch
// take effect on the next event.
func (bus *eventBus) dispatch(buck string, rowKey int64, column string, value any) error {
	bus.mu.Lock()
	list := bus.subs[buck]
	snapshot := make([]*Subscription, len(list))
	copy(snapshot, list)
	bus.mu.Unlock()

	for _, sub := range snapshot {
		err := sub.fn(rowKey, column, value)
		if err != nil {
			if errors.Is(err, ErrStopDispatch) {
				return nil
			}
			return err
		}
	}
	return nil
}
