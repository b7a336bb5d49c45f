package controller

import (
	"log"

	"github.com/sweeney/verbot/internal/logic"
)

// observerQueue bounds notifications waiting for a slow publisher.
const observerQueue = 64

// event is one queued notification. Exactly one of the fields is set.
type event struct {
	transition *logic.Transition
	toggle     bool
	flushed    chan struct{}
}

// observers delivers transitions and assistant toggles in order on their
// own goroutine, so publisher I/O never holds up the owner loop.
type observers struct {
	pub       Publisher
	assistant Assistant
	events    chan event
	done      chan struct{}
	dropped   int
}

func newObservers(pub Publisher, assistant Assistant) *observers {
	return &observers{
		pub:       pub,
		assistant: assistant,
		events:    make(chan event, observerQueue),
		done:      make(chan struct{}),
	}
}

// run delivers events until close is called.
func (o *observers) run() {
	defer close(o.done)
	for ev := range o.events {
		switch {
		case ev.flushed != nil:
			close(ev.flushed)
		case ev.toggle:
			if o.assistant == nil {
				log.Printf("assistant: no side channel configured")
				continue
			}
			if err := o.assistant.ToggleConversation(); err != nil {
				log.Printf("assistant: toggle error: %v", err)
			}
		case ev.transition != nil:
			if o.pub == nil {
				continue
			}
			if err := o.pub.Publish(*ev.transition); err != nil {
				log.Printf("publish error: %v", err)
			}
		}
	}
}

// send queues ev without blocking. A full queue drops the event.
// Only the owner goroutine calls send.
func (o *observers) send(ev event) {
	select {
	case o.events <- ev:
	default:
		o.dropped++
		log.Printf("observers: queue full, dropped event (total dropped=%d)", o.dropped)
	}
}

// flush blocks until every event queued before it has been delivered.
func (o *observers) flush() {
	ch := make(chan struct{})
	o.events <- event{flushed: ch}
	<-ch
}

// close delivers the remaining events and stops run.
func (o *observers) close() {
	close(o.events)
	<-o.done
}
