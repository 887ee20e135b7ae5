package event

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrDispatcherClosed = errors.New("event dispatcher closed")

type envelope struct {
	ctx   context.Context
	event Event
}

// Dispatcher fans events out to subscribed handlers on a fixed pool of
// workers. Handler errors are logged and dropped.
type Dispatcher struct {
	logger   logrus.FieldLogger
	queue    chan envelope
	workers  int
	hmu      sync.RWMutex
	handlers []Handler
	mu       sync.RWMutex
	closed   bool
	started  bool
	wg       sync.WaitGroup
}

func NewDispatcher(logger logrus.FieldLogger, workers int, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{
		logger:  logger,
		queue:   make(chan envelope, queueSize),
		workers: workers,
	}
}

func (d *Dispatcher) Subscribe(handler Handler) {
	d.hmu.Lock()
	defer d.hmu.Unlock()
	d.handlers = append(d.handlers, handler)
}

func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

// Publish enqueues e. The request context is detached so handlers keep
// running after the HTTP response has been written.
func (d *Dispatcher) Publish(ctx context.Context, e Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.WithField("event", e.Name()).WithError(ErrDispatcherClosed).Warn("event dropped")
		return
	}
	item := envelope{ctx: context.WithoutCancel(ctx), event: e}
	select {
	case d.queue <- item:
	case <-ctx.Done():
		d.logger.WithField("event", e.Name()).WithError(ctx.Err()).Warn("event dropped")
	}
}

// Close stops accepting events and waits until queued events are handled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		for item := range d.queue {
			d.handle(item)
		}
		return
	}
	d.wg.Wait()
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for item := range d.queue {
		d.handle(item)
	}
}

func (d *Dispatcher) handle(item envelope) {
	d.hmu.RLock()
	handlers := make([]Handler, len(d.handlers))
	copy(handlers, d.handlers)
	d.hmu.RUnlock()

	for _, handler := range handlers {
		d.invoke(item, handler)
	}
}

func (d *Dispatcher) invoke(item envelope, handler Handler) {
	entry := d.logger.WithField("event", item.event.Name())
	defer func() {
		if r := recover(); r != nil {
			entry.WithField("panic", r).Error("event handler panicked")
		}
	}()
	if err := handler(item.ctx, item.event); err != nil {
		entry.WithError(err).Error("event handler failed")
	}
}
