// Package queuetest provides in-memory queue deliveries and publishers for
// tests of packages that drive the job runner.
package queuetest

import (
	"context"
	"sync"

	"crashpipe/internal/queue"
)

var (
	_ queue.Delivery  = (*Delivery)(nil)
	_ queue.Publisher = (*Publisher)(nil)
)

// Delivery records the acknowledgements it receives.
type Delivery struct {
	Payload []byte

	mu      sync.Mutex
	acks    int
	nacks   int
	requeue bool
}

// NewDelivery wraps body.
func NewDelivery(body string) *Delivery { return &Delivery{Payload: []byte(body)} }

// Body implements queue.Delivery.
func (f *Delivery) Body() []byte { return f.Payload }

// Ack implements queue.Delivery.
func (f *Delivery) Ack() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	return nil
}

// Nack implements queue.Delivery.
func (f *Delivery) Nack(requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacks++
	f.requeue = requeue
	return nil
}

// Counts returns the number of acks and nacks and the last requeue flag.
func (f *Delivery) Counts() (acks, nacks int, requeue bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acks, f.nacks, f.requeue
}

// Published is one message captured by Publisher.
type Published struct {
	Queue string
	Body  []byte
}

// Publisher captures published messages in memory.
type Publisher struct {
	mu   sync.Mutex
	Msgs []Published
	Err  error
}

// Publish implements queue.Publisher.
func (f *Publisher) Publish(_ context.Context, name string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Msgs = append(f.Msgs, Published{Queue: name, Body: append([]byte(nil), body...)})
	return nil
}

// Messages returns a copy of the captured messages.
func (f *Publisher) Messages() []Published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Published(nil), f.Msgs...)
}
