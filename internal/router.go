package internal

import (
	"errors"
	"sync"

	"github.com/WelcomerTeam/Discord/discord"
)

// AnyType matches every event type of an op code in a Subscription.
const AnyType = ""

// Subscription declares which events a handler receives.
type Subscription struct {
	// Event types wanted for each op code.
	Events map[discord.GatewayOp][]string

	// Only deliver events for this guild when set.
	GuildID discord.Snowflake
}

// Handler is an actor that can be registered with the Router.
type Handler interface {
	Name() string
	Subscription() Subscription
	Post(message interface{}) error
	Stop()
}

// Match returns if event should be delivered to a handler with subscription.
func Match(event *Event, subscription Subscription) bool {
	types, ok := subscription.Events[event.Op]
	if !ok {
		return false
	}

	if subscription.GuildID != 0 && subscription.GuildID != event.GuildID {
		return false
	}

	for _, eventType := range types {
		if eventType == AnyType || eventType == event.Type {
			return true
		}
	}

	return false
}

// Route returns the handlers that should receive event, in registration order.
func Route(event *Event, handlers []Handler) []Handler {
	matched := make([]Handler, 0, len(handlers))

	for _, handler := range handlers {
		if Match(event, handler.Subscription()) {
			matched = append(matched, handler)
		}
	}

	return matched
}

// Router holds the registered handlers. Adding a handler replaces the slice so
// deliveries already in progress keep the handlers they started with.
type Router struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewRouter(handlers ...Handler) *Router {
	return &Router{handlers: handlers}
}

// Add registers a handler for future deliveries.
func (r *Router) Add(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handlers := make([]Handler, len(r.handlers), len(r.handlers)+1)
	copy(handlers, r.handlers)

	r.handlers = append(handlers, handler)
}

// Handlers returns a snapshot of the registered handlers.
func (r *Router) Handlers() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.handlers
}

// Deliver posts event to every matching handler and returns how many received
// it. Handlers that have been stopped are skipped.
func (r *Router) Deliver(event *Event) (delivered int, err error) {
	for _, handler := range Route(event, r.Handlers()) {
		if postErr := handler.Post(event); postErr != nil {
			if errors.Is(postErr, ErrActorStopped) {
				continue
			}

			return delivered, postErr
		}

		delivered++
	}

	return delivered, nil
}
