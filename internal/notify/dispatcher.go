package notify

import (
	"context"
	"log"
	"sync"
	"time"
)

const sendTimeout = 10 * time.Second

// Dispatcher fans messages out to a Notifier from a fixed pool of
// workers. Enqueue never blocks the caller: when the queue is full the
// message is dropped and logged.
type Dispatcher struct {
	notifier Notifier
	queue    chan Message
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts workers goroutines draining a queue of queueSize.
func NewDispatcher(n Notifier, workers, queueSize int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	d := &Dispatcher{
		notifier: n,
		queue:    make(chan Message, queueSize),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d
}

// Enqueue hands messages to the workers.
func (d *Dispatcher) Enqueue(msgs ...Message) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		log.Printf("WARN: notify dispatcher closed, dropping %d message(s)", len(msgs))
		return
	}
	for _, msg := range msgs {
		select {
		case d.queue <- msg:
		default:
			log.Printf("WARN: notify queue full, dropping kind=%s event=%s recipient=%s",
				msg.Kind, msg.EventID, msg.RecipientUserID)
		}
	}
}

// Close stops accepting messages and waits for the queued ones to be sent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.send(msg)
	}
}

func (d *Dispatcher) send(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: notifier panic kind=%s event=%s: %v", msg.Kind, msg.EventID, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := d.notifier.Notify(ctx, msg); err != nil {
		log.Printf("ERROR: notify kind=%s event=%s recipient=%s: %v",
			msg.Kind, msg.EventID, msg.RecipientUserID, err)
	}
}
