package bus

import (
	"context"
	"errors"
	"testing"
)

func TestFakeBusPublishConsume(t *testing.T) {
	b := NewFakeBus()
	ctx := context.Background()

	if err := b.Declare(ctx, "q"); err != nil {
		t.Fatalf("Declare: %v", err)
	}
	if err := b.Publish(ctx, "q", []byte("hello"), 0); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	var got []byte
	err := b.Consume(ctx, "q", 1, func(_ context.Context, d Delivery) error {
		got = d.Body
		return d.Ack()
	})
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got = %q, want hello", got)
	}
}

func TestFakeBusRequeueOnHandlerError(t *testing.T) {
	b := NewFakeBus()
	ctx := context.Background()
	_ = b.Publish(ctx, "q", []byte("msg"), 0)

	attempts := 0
	_ = b.Consume(ctx, "q", 1, func(_ context.Context, d Delivery) error {
		attempts++
		return errors.New("transient")
	})

	n, _ := b.Purge(ctx, "q")
	if n != 1 {
		t.Fatalf("expected the failed message to be requeued, Purge drained %d", n)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestFakeBusPurge(t *testing.T) {
	b := NewFakeBus()
	ctx := context.Background()
	_ = b.Publish(ctx, "q", []byte("a"), 0)
	_ = b.Publish(ctx, "q", []byte("b"), 0)

	n, err := b.Purge(ctx, "q")
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 2 {
		t.Fatalf("Purge = %d, want 2", n)
	}
}
