package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/i474232898/weather-shell/internal/fetch"
)

// EventKind selects the handler in the dispatch table.
type EventKind string

const (
	EventInstall           EventKind = "install"
	EventActivate          EventKind = "activate"
	EventFetch             EventKind = "fetch"
	EventSync              EventKind = "sync"
	EventPeriodicSync      EventKind = "periodicsync"
	EventPush              EventKind = "push"
	EventNotificationClick EventKind = "notificationclick"
)

// ErrUnknownEvent is returned for kinds missing from the dispatch table.
var ErrUnknownEvent = errors.New("unknown event kind")

// handlerFunc handles one event. Only fetch handlers return a response; work
// that must outlive the handler is registered with Event.WaitUntil.
type handlerFunc func(ctx context.Context, ev *Event) (*fetch.Response, error)

// Event is a single lifecycle or functional event.
type Event struct {
	Kind EventKind

	// Tag is set on sync and periodicsync events.
	Tag string
	// Request is set on fetch events.
	Request *fetch.Request
	// Payload is the push message data; nil means the push had no data.
	Payload []byte
	// NotificationID and Action are set on notificationclick events.
	NotificationID string
	Action         string

	ctx     context.Context
	wg      sync.WaitGroup
	mu      sync.Mutex
	errs    []error
	done    chan struct{}
	owner   *sync.WaitGroup
	settled sync.Once
}

// NewEvent creates an event of kind.
func NewEvent(kind EventKind) *Event {
	return &Event{Kind: kind, done: make(chan struct{})}
}

// WaitUntil extends the event's lifetime until fn returns. fn runs on its own
// goroutine with a context detached from the caller's cancellation, so a
// fetch answered to a disconnected client still finishes its cache write.
// Call it from the handler or from inside another extension, never after the
// handler has returned.
func (e *Event) WaitUntil(fn func(ctx context.Context) error) {
	e.wg.Add(1)
	if e.owner != nil {
		e.owner.Add(1)
	}
	ctx := e.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.addErr(fmt.Errorf("extension panic: %v", r))
				log.Errorf("worker: %s extension panicked: %v\n%s", e.Kind, r, debug.Stack())
			}
			e.wg.Done()
			if e.owner != nil {
				e.owner.Done()
			}
		}()
		if err := fn(ctx); err != nil {
			e.addErr(err)
		}
	}()
}

// Done is closed once the handler returned and all extensions finished.
func (e *Event) Done() <-chan struct{} {
	return e.done
}

// Err joins the errors of every extension. Valid after Done is closed.
func (e *Event) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return errors.Join(e.errs...)
}

func (e *Event) addErr(err error) {
	e.mu.Lock()
	e.errs = append(e.errs, err)
	e.mu.Unlock()
}

// settle closes done after every extension has finished.
func (e *Event) settle() {
	e.settled.Do(func() {
		go func() {
			e.wg.Wait()
			close(e.done)
		}()
	})
}

// Dispatch runs the handler for ev.Kind and returns as soon as the handler
// does. Extensions keep running; use ev.Done to wait for them. A panicking
// handler is recovered and reported as an error.
func (c *Controller) Dispatch(ctx context.Context, ev *Event) (resp *fetch.Response, err error) {
	if ev.done == nil {
		ev.done = make(chan struct{})
	}
	h, ok := c.handlers[ev.Kind]
	if !ok {
		ev.settle()
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Kind)
	}

	ev.ctx = context.WithoutCancel(ctx)
	ev.owner = &c.pending

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("worker: %s handler panicked: %v\n%s", ev.Kind, r, debug.Stack())
			resp, err = nil, fmt.Errorf("%s handler panic: %v", ev.Kind, r)
		}
		ev.settle()
	}()

	return h(ctx, ev)
}

// dispatchAndWait dispatches ev and waits for its extensions.
func (c *Controller) dispatchAndWait(ctx context.Context, ev *Event) error {
	if _, err := c.Dispatch(ctx, ev); err != nil {
		return err
	}
	select {
	case <-ev.Done():
		return ev.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
