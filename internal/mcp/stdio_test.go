package mcp

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStdioTransportAcquireRespectsContext(t *testing.T) {
	tr := NewStdioTransport(StdioConfig{Command: "echo"})

	// Pre-fill the semaphore to simulate another goroutine holding it.
	tr.sem <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := tr.acquire(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("acquire() = %v, want context.DeadlineExceeded", err)
	}
}

func TestStdioTransportAcquireRelease(t *testing.T) {
	tr := NewStdioTransport(StdioConfig{Command: "echo"})

	if err := tr.acquire(context.Background()); err != nil {
		t.Fatalf("acquire() = %v, want nil", err)
	}
	tr.release()

	// Semaphore must be free again.
	select {
	case tr.sem <- struct{}{}:
		<-tr.sem
	default:
		t.Fatal("semaphore still held after release")
	}
}

func TestStdioTransportAcquireAlreadyCancelled(t *testing.T) {
	tr := NewStdioTransport(StdioConfig{Command: "echo"})

	// Cancel before acquiring with a free semaphore. The post-acquire
	// double-check must catch this and release the token.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tr.acquire(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("acquire() with cancelled context = %v, want context.Canceled", err)
	}

	select {
	case <-tr.sem:
		t.Fatal("semaphore was left held despite cancelled context")
	default:
		// OK: semaphore is free.
	}
}

func TestStdioTransportSendCancelledBeforeStart(t *testing.T) {
	tr := NewStdioTransport(StdioConfig{Command: "definitely-not-a-real-binary"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Send(ctx, NewRequest(1, "ping", nil))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Send() = %v, want context.Canceled before subprocess launch", err)
	}
}

func TestStdioTransportStartFailure(t *testing.T) {
	tr := NewStdioTransport(StdioConfig{Command: "/nonexistent/intake-tool-server"})

	_, err := tr.Send(context.Background(), NewRequest(1, "ping", nil))
	if err == nil {
		t.Fatal("Send() should fail when the subprocess cannot start")
	}

	// The failure must not leave the semaphore held.
	select {
	case tr.sem <- struct{}{}:
		<-tr.sem
	default:
		t.Fatal("semaphore leaked after start failure")
	}
}

func TestStdioTransportCloseWithoutStart(t *testing.T) {
	tr := NewStdioTransport(StdioConfig{Command: "echo"})
	if err := tr.Close(); err != nil {
		t.Errorf("Close() before start = %v, want nil", err)
	}
}
