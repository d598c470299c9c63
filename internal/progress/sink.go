package progress

import "context"

// Sink consumes batches of progress events. Consume is called from the hub's
// single goroutine; Close once at shutdown.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events.
type Emitter interface {
	Emit(evt Event)
}
