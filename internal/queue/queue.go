// Package queue wraps the AMQP 0-9-1 broker used to hand jobs between stages.
//
// Startup is two-phase: WaitForPort polls the broker's TCP port so the first
// AMQP handshake is not spent on a booting broker, then Connect retries the
// handshake with a randomized delay. Both loops are bounded; exhaustion yields
// ErrUnreachable and the process is expected to exit.
package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// ErrUnreachable is returned when the broker cannot be reached within the
// configured attempts.
var ErrUnreachable = errors.New("queue: broker unreachable")

// Delivery is one received message. Exactly one of Ack or Nack must be called.
type Delivery interface {
	Body() []byte
	Ack() error
	Nack(requeue bool) error
}

// Publisher publishes a persistent message to a durable queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// Options bounds the startup loops.
type Options struct {
	PortWaitTries    int
	PortWaitDelay    time.Duration
	ConnectTries     int
	ConnectBaseDelay time.Duration
}

// Test seams.
var (
	dialTCP = func(addr string, timeout time.Duration) (net.Conn, error) {
		return net.DialTimeout("tcp", addr, timeout)
	}
	dialAMQP = amqp.Dial
	jitter   = func() time.Duration { return time.Duration(rand.Int64N(int64(time.Second))) }
)

// WaitForPort polls addr until a TCP connection succeeds, up to tries
// attempts spaced by delay.
func WaitForPort(ctx context.Context, addr string, tries int, delay time.Duration) error {
	if tries <= 0 {
		tries = 1
	}
	for i := 0; i < tries; i++ {
		c, err := dialTCP(addr, 1500*time.Millisecond)
		if err == nil {
			_ = c.Close()
			return nil
		}
		if i == tries-1 {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: port %s not open after %d attempts", ErrUnreachable, addr, tries)
}

// retry calls fn up to tries times, sleeping base plus a random jitter in
// [0, 1s) between attempts.
func retry(ctx context.Context, tries int, base time.Duration, fn func(attempt int) error) error {
	if tries <= 0 {
		tries = 1
	}
	var err error
	for i := 1; i <= tries; i++ {
		if err = fn(i); err == nil {
			return nil
		}
		if i == tries {
			break
		}
		if e := sleep(ctx, base+jitter()); e != nil {
			return e
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrUnreachable, tries, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Client is a connected broker session with one channel.
type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  zerolog.Logger

	mu       sync.Mutex
	declared map[string]bool
}

var _ Publisher = (*Client)(nil)

// Connect waits for the broker port, then dials url with randomized retry.
func Connect(ctx context.Context, url string, opt Options, log zerolog.Logger) (*Client, error) {
	uri, err := amqp.ParseURI(url)
	if err != nil {
		return nil, fmt.Errorf("queue: parse url: %w", err)
	}
	addr := net.JoinHostPort(uri.Host, strconv.Itoa(uri.Port))
	if err := WaitForPort(ctx, addr, opt.PortWaitTries, opt.PortWaitDelay); err != nil {
		return nil, err
	}

	var conn *amqp.Connection
	err = retry(ctx, opt.ConnectTries, opt.ConnectBaseDelay, func(attempt int) error {
		c, err := dialAMQP(url)
		if err != nil {
			switch {
			case attempt == 1:
				log.Info().Str("addr", addr).Msg("waiting for broker")
			case attempt%10 == 0:
				log.Info().Err(err).Int("attempt", attempt).Int("max", opt.ConnectTries).Msg("still waiting for broker")
			}
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("queue: open channel: %w", err)
	}
	log.Info().Str("addr", addr).Msg("connected to broker")
	return &Client{conn: conn, ch: ch, log: log, declared: map[string]bool{}}, nil
}

// Declare declares a durable queue. Repeated declarations of the same name
// from this client are skipped.
func (c *Client) Declare(queue string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declared[queue] {
		return nil
	}
	if _, err := c.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue: declare %s: %w", queue, err)
	}
	c.declared[queue] = true
	return nil
}

// Consume declares queue, sets prefetch to one unacknowledged message and
// starts a manual-ack consumer. The returned channel closes when ctx ends or
// the broker closes the delivery stream.
func (c *Client) Consume(ctx context.Context, queue string) (<-chan Delivery, error) {
	if err := c.Declare(queue); err != nil {
		return nil, err
	}
	if err := c.ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("queue: qos: %w", err)
	}
	tag := "crashpipe-" + uuid.NewString()
	msgs, err := c.ch.ConsumeWithContext(ctx, queue, tag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("queue: consume %s: %w", queue, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- amqpDelivery{d: d}:
				case <-ctx.Done():
					// Unacked; the broker redelivers it after the channel closes.
					return
				}
			}
		}
	}()
	return out, nil
}

// Publish implements Publisher. The queue is declared durable first and the
// message is sent persistent with a fresh message id.
func (c *Client) Publish(ctx context.Context, queue string, body []byte) error {
	if err := c.Declare(queue); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("queue: publish %s: %w", queue, err)
	}
	return nil
}

// Closed returns a channel that receives the connection close reason.
func (c *Client) Closed() <-chan *amqp.Error {
	return c.conn.NotifyClose(make(chan *amqp.Error, 1))
}

// Close closes the channel and connection.
func (c *Client) Close() error {
	var errs []error
	if c.ch != nil {
		if err := c.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type amqpDelivery struct{ d amqp.Delivery }

func (a amqpDelivery) Body() []byte            { return a.d.Body }
func (a amqpDelivery) Ack() error              { return a.d.Ack(false) }
func (a amqpDelivery) Nack(requeue bool) error { return a.d.Nack(false, requeue) }
