package manager

import (
	"sync"
	"time"
)

// EventType identifies a slot lifecycle notification.
type EventType string

const (
	EventSlotSaved    EventType = "slot.saved"
	EventSlotLoaded   EventType = "slot.loaded"
	EventSlotSwitched EventType = "slot.switched"
)

// Event tells listeners that something happened to a slot.
type Event struct {
	Type      EventType
	Slot      string
	Timestamp time.Time
}

// Listener receives manager events. Listeners run on the goroutine that
// triggered the event, after the manager has released its lock, so they may
// call back into the manager.
type Listener func(Event)

type listeners struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]Listener
	order  []int
}

func (l *listeners) add(fn Listener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]Listener)
	}
	id := l.nextID
	l.nextID++
	l.fns[id] = fn
	l.order = append(l.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *listeners) remove(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.fns, id)
	for i, v := range l.order {
		if v == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

func (l *listeners) snapshot() []Listener {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Listener, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.fns[id])
	}
	return out
}

// emit delivers events in order to every listener subscribed at call time.
func (l *listeners) emit(events []Event) {
	if len(events) == 0 {
		return
	}
	fns := l.snapshot()
	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}
