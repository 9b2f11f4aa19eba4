package compute

import "sync"

// Event is the completion handle of an enqueued device operation.
//
// An Event completes exactly once, either successfully or with the error of
// the operation (or of the first failed operation it depended on). Events
// are safe for concurrent use and may be waited on any number of times.
type Event struct {
	label string
	done  chan struct{}
	once  sync.Once
	err   error
}

// NewEvent returns a pending event. Device implementations call
// [Event.Complete] when the corresponding work has finished.
func NewEvent(label string) *Event {
	return &Event{label: label, done: make(chan struct{})}
}

// Completed returns an event that has already completed with err.
func Completed(label string, err error) *Event {
	e := NewEvent(label)
	e.Complete(err)
	return e
}

// Complete marks the event as finished. Only the first call has an effect.
func (e *Event) Complete(err error) {
	e.once.Do(func() {
		e.err = err
		close(e.done)
	})
}

// Label returns the label given at creation, used in logs.
func (e *Event) Label() string { return e.label }

// Done returns a channel that is closed when the event completes.
func (e *Event) Done() <-chan struct{} { return e.done }

// Wait blocks until the event completes and returns its error.
func (e *Event) Wait() error {
	<-e.done
	return e.err
}

// Err returns the completion error, or nil if the event is still pending
// or completed successfully.
func (e *Event) Err() error {
	select {
	case <-e.done:
		return e.err
	default:
		return nil
	}
}

// IsDone reports whether the event has completed.
func (e *Event) IsDone() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// WaitAll waits for every event in events and returns the first error in
// list order. Nil entries are skipped.
func WaitAll(events []*Event) error {
	var first error
	for _, e := range events {
		if e == nil {
			continue
		}
		if err := e.Wait(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Join returns an event that completes when all of events have completed.
// The joined event carries the first error in list order.
func Join(label string, events []*Event) *Event {
	pending := make([]*Event, 0, len(events))
	for _, e := range events {
		if e != nil {
			pending = append(pending, e)
		}
	}
	if len(pending) == 0 {
		return Completed(label, nil)
	}
	if len(pending) == 1 {
		return pending[0]
	}
	j := NewEvent(label)
	go func() {
		j.Complete(WaitAll(pending))
	}()
	return j
}

// Deps builds a waitFor list from events, dropping nil entries.
func Deps(events ...*Event) []*Event {
	out := make([]*Event, 0, len(events))
	for _, e := range events {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}
