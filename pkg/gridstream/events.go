package gridstream

import "sync"

// EventKind identifies a stream notification.
type EventKind int

const (
	EventOpen EventKind = iota
	EventData
	EventPause
	EventResume
	EventEnd
	EventClose
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventData:
		return "data"
	case EventPause:
		return "pause"
	case EventResume:
		return "resume"
	case EventEnd:
		return "end"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one stream notification.
//
// For EventData, Data holds the raw chunk and Text its decoded form when an
// encoding is set. The final data event of an encoded stream may carry only
// Text (bytes held back at a chunk boundary). Err is set for EventError.
type Event struct {
	Kind EventKind
	Data []byte
	Text string
	Err  error
}

// Listener receives stream events. Listeners run synchronously on the
// goroutine that produced the event and may call back into the stream.
type Listener func(Event)

type subscription struct {
	fn   Listener
	once bool
}

// emitter dispatches events to listeners registered per kind.
type emitter struct {
	mu        sync.Mutex
	listeners map[EventKind][]*subscription
}

// On registers fn for every event of kind.
func (e *emitter) On(kind EventKind, fn Listener) {
	e.add(kind, &subscription{fn: fn})
}

// Once registers fn for the next event of kind only.
func (e *emitter) Once(kind EventKind, fn Listener) {
	e.add(kind, &subscription{fn: fn, once: true})
}

func (e *emitter) add(kind EventKind, sub *subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.listeners == nil {
		e.listeners = make(map[EventKind][]*subscription)
	}
	e.listeners[kind] = append(e.listeners[kind], sub)
}

func (e *emitter) emit(ev Event) {
	e.mu.Lock()
	subs := e.listeners[ev.Kind]
	kept := subs[:0:0]
	for _, sub := range subs {
		if !sub.once {
			kept = append(kept, sub)
		}
	}
	if len(kept) != len(subs) {
		e.listeners[ev.Kind] = kept
	}
	e.mu.Unlock()

	for _, sub := range subs {
		sub.fn(ev)
	}
}
