package bus

import (
	"context"
	"sync"
)

// FakeBus is an in-process Bus used by coordinator/worker tests, per
// spec.md §9's dynamic-dispatch design note: no network, no broker.
type FakeBus struct {
	mu      sync.Mutex
	queues  map[string][][]byte
	nextTag uint64
}

// NewFakeBus returns an empty in-memory Bus.
func NewFakeBus() *FakeBus {
	return &FakeBus{queues: make(map[string][][]byte)}
}

func (f *FakeBus) Declare(_ context.Context, queue string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.queues[queue]; !ok {
		f.queues[queue] = nil
	}
	return nil
}

func (f *FakeBus) Publish(_ context.Context, queue string, body []byte, _ uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues[queue] = append(f.queues[queue], body)
	return nil
}

// Consume takes a single snapshot of queue's current contents and
// invokes handler synchronously for each, then returns. Production
// Consume blocks forever watching the broker; the fake returns promptly
// so tests stay deterministic and a requeued message is only picked up
// by the next Consume call, not retried in a tight loop.
func (f *FakeBus) Consume(ctx context.Context, queue string, _ int, handler Handler) error {
	f.mu.Lock()
	msgs := f.queues[queue]
	f.queues[queue] = nil
	f.mu.Unlock()

	for _, body := range msgs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		f.mu.Lock()
		f.nextTag++
		tag := f.nextTag
		f.mu.Unlock()

		d := Delivery{
			Body:        body,
			DeliveryTag: tag,
			ack:         func() error { return nil },
			nack: func(requeue bool) error {
				if requeue {
					f.mu.Lock()
					f.queues[queue] = append(f.queues[queue], body)
					f.mu.Unlock()
				}
				return nil
			},
		}
		if err := handler(ctx, d); err != nil {
			_ = d.Nack(true)
		}
	}
	return nil
}

func (f *FakeBus) Purge(_ context.Context, queue string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.queues[queue])
	f.queues[queue] = nil
	return n, nil
}

func (f *FakeBus) Close() error { return nil }
