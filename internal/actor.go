package internal

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ReceiveFunc processes one mailbox message. The context is cancelled when the
// actor is stopped.
type ReceiveFunc func(ctx context.Context, message interface{}) error

// FaultFunc is called when a ReceiveFunc returns an error or panics.
type FaultFunc func(name string, err error)

type ActorOption func(*Actor)

// WithMailboxBound limits the mailbox to n queued messages. Post blocks while
// the mailbox is full.
func WithMailboxBound(n int) ActorOption {
	return func(a *Actor) {
		a.bound = n
	}
}

// WithFault sets the function called when receive fails.
func WithFault(fault FaultFunc) ActorOption {
	return func(a *Actor) {
		a.fault = fault
	}
}

// Actor runs receive for each posted message, one at a time in FIFO order, on
// its own goroutine.
type Actor struct {
	Logger zerolog.Logger

	ctx    context.Context
	cancel func()

	name    string
	receive ReceiveFunc
	fault   FaultFunc
	bound   int

	mu      sync.Mutex
	queue   []interface{}
	stopped bool

	wake  chan void
	space chan void
	done  chan void
}

// NewActor creates an actor and starts its loop.
func NewActor(logger zerolog.Logger, name string, receive ReceiveFunc, opts ...ActorOption) *Actor {
	a := &Actor{
		Logger: logger.With().Str("actor", name).Logger(),

		name:    name,
		receive: receive,

		wake:  make(chan void, 1),
		space: make(chan void, 1),
		done:  make(chan void),
	}

	for _, opt := range opts {
		opt(a)
	}

	a.ctx, a.cancel = context.WithCancel(context.Background())

	go a.run()

	return a
}

// Name returns the name the actor was created with.
func (a *Actor) Name() string {
	return a.name
}

// Post enqueues a message. It only blocks when the mailbox is bounded and full.
func (a *Actor) Post(message interface{}) error {
	return a.post(message, nil)
}

// PostTimeout enqueues a message, waiting at most timeout for mailbox space.
func (a *Actor) PostTimeout(message interface{}, timeout time.Duration) error {
	t := time.NewTimer(timeout)
	defer t.Stop()

	return a.post(message, t.C)
}

func (a *Actor) post(message interface{}, timeout <-chan time.Time) error {
	for {
		a.mu.Lock()

		if a.stopped {
			a.mu.Unlock()

			return ErrActorStopped
		}

		if a.bound <= 0 || len(a.queue) < a.bound {
			a.queue = append(a.queue, message)
			hasSpace := a.bound > 0 && len(a.queue) < a.bound
			a.mu.Unlock()

			// Pass the space signal on to the next waiting sender.
			if hasSpace {
				signal(a.space)
			}

			signal(a.wake)

			return nil
		}

		a.mu.Unlock()

		select {
		case <-a.space:
		case <-a.ctx.Done():
			return ErrActorStopped
		case <-timeout:
			return ErrMailboxTimeout
		}
	}
}

// Stop cancels the actor loop and discards queued messages. It does not wait
// for the loop to exit, use Done for that.
func (a *Actor) Stop() {
	a.mu.Lock()

	if a.stopped {
		a.mu.Unlock()

		return
	}

	a.stopped = true
	a.queue = nil
	a.mu.Unlock()

	a.cancel()
}

// Done is closed once the actor loop has exited.
func (a *Actor) Done() <-chan void {
	return a.done
}

// Stopped returns if Stop has been called.
func (a *Actor) Stopped() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.stopped
}

// Len returns the number of messages waiting in the mailbox.
func (a *Actor) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.queue)
}

func (a *Actor) run() {
	defer close(a.done)

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.wake:
		}

		for {
			message, ok := a.next()
			if !ok {
				break
			}

			a.handle(message)

			runtime.Gosched()
		}
	}
}

func (a *Actor) next() (message interface{}, ok bool) {
	a.mu.Lock()

	if a.stopped || len(a.queue) == 0 {
		a.mu.Unlock()

		return nil, false
	}

	message = a.queue[0]
	a.queue[0] = nil
	a.queue = a.queue[1:]
	a.mu.Unlock()

	if a.bound > 0 {
		signal(a.space)
	}

	return message, true
}

func (a *Actor) handle(message interface{}) {
	defer func() {
		if r := recover(); r != nil {
			a.reportFault(fmt.Errorf("%w: %s: %v", ErrHandlerPanic, a.name, r))
		}
	}()

	if err := a.receive(a.ctx, message); err != nil {
		a.reportFault(fmt.Errorf("%s: %w", a.name, err))
	}
}

func (a *Actor) reportFault(err error) {
	if a.fault == nil {
		a.Logger.Error().Err(err).Msg("Actor failed to handle message")

		return
	}

	a.fault(a.name, err)
}

func signal(ch chan void) {
	select {
	case ch <- void{}:
	default:
	}
}
