package queue

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWaitForPort_Open(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	if err := WaitForPort(context.Background(), ln.Addr().String(), 3, time.Millisecond); err != nil {
		t.Fatalf("WaitForPort: %v", err)
	}
}

func TestWaitForPort_Closed(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	err = WaitForPort(context.Background(), addr, 2, time.Millisecond)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	t.Parallel()
	calls := 0
	err := retry(context.Background(), 5, time.Millisecond, func(attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetry_Exhausted(t *testing.T) {
	t.Parallel()
	calls := 0
	err := retry(context.Background(), 2, time.Millisecond, func(int) error {
		calls++
		return errors.New("refused")
	})
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := retry(ctx, 3, time.Hour, func(int) error { return errors.New("refused") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestConnect_BadURL(t *testing.T) {
	t.Parallel()
	if _, err := Connect(context.Background(), "http://nope", Options{}, zerolog.Nop()); err == nil {
		t.Fatal("expected parse error")
	}
}
