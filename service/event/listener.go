package event

import (
	"context"
	"log/slog"
	"time"
)

// Listener consumes events in a background goroutine.
type Listener[T any] struct {
	publisher *Publisher[T]
	handler   func(*Event[T])
	logger    *slog.Logger
	idle      time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewListener creates a listener
func NewListener[T any](publisher *Publisher[T], handler func(*Event[T]), logger *slog.Logger) *Listener[T] {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener[T]{
		publisher: publisher,
		handler:   handler,
		logger:    logger,
		idle:      50 * time.Millisecond,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Stop ends the consuming goroutine and waits for it to exit.
func (l *Listener[T]) Stop() {
	l.cancel()
	<-l.done
}

// Start begins consuming.
func (l *Listener[T]) Start() {
	go func() {
		defer close(l.done)
		for l.ctx.Err() == nil {
			event, err := l.publisher.Consume(l.ctx)
			if err != nil {
				if l.ctx.Err() == nil {
					l.logger.Warn("failed to consume event", "error", err)
					l.sleep()
				}
				continue
			}
			if event == nil {
				l.sleep()
				continue
			}
			l.handler(event)
		}
	}()
}

func (l *Listener[T]) sleep() {
	select {
	case <-l.ctx.Done():
	case <-time.After(l.idle):
	}
}
