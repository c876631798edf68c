package dispatcher

import (
	"context"

	"github.com/garyjia/excise-workflow/internal/domain/event"
)

// Handler reacts to a committed workflow event. Handlers run after the unit
// of work has committed, so a failing handler never rolls back a move.
type Handler func(ctx context.Context, evt *event.Event) error

// AnyType subscribes a handler to every event type
const AnyType event.Type = ""

// Subscription describes a registered handler
type Subscription struct {
	Name      string
	EventType event.Type // AnyType for catch-all handlers
}

type subscription struct {
	Subscription
	handler Handler
}

func (s subscription) matches(t event.Type) bool {
	return s.EventType == AnyType || s.EventType == t
}

// Stats counts handler runs since the dispatcher was created
type Stats struct {
	Delivered uint64
	Failed    uint64
}
