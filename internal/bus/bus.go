// Package bus implements the message bus adapter (spec.md §5): durable
// task and file-task queues with at-least-once delivery, a dedicated
// channel per consumer, and persistent delivery mode, over
// rabbitmq/amqp091-go. Grounded on original_source/services/rabbitmq_service.py.
package bus

import "context"

// Queue names spec.md §5 fixes for the two collaborator roles.
const (
	QueueTranslationTasks     = "translation_tasks"
	QueueFileTranslationTasks = "file_translation_tasks"
)

// Delivery is one message handed to a Consume callback. Ack/Nack are
// bound to the channel the delivery arrived on, so a handler never needs
// to track which connection/channel a delivery tag belongs to.
type Delivery struct {
	Body        []byte
	DeliveryTag uint64

	ack  func() error
	nack func(requeue bool) error
}

// Ack acknowledges the delivery.
func (d Delivery) Ack() error { return d.ack() }

// Nack rejects the delivery, requeueing it when requeue is true.
func (d Delivery) Nack(requeue bool) error { return d.nack(requeue) }

// DeliveryForTest builds a Delivery whose Ack/Nack record into the
// supplied bools, for tests outside this package that need to hand a
// bus.Delivery to a Handler without spinning up a real Bus.
func DeliveryForTest(body []byte, acked, nacked *bool) Delivery {
	return Delivery{
		Body: body,
		ack:  func() error { *acked = true; return nil },
		nack: func(requeue bool) error { *nacked = true; return nil },
	}
}

// Handler processes one Delivery. A handler is responsible for calling
// Ack or Nack itself (spec.md §5's at-least-once contract): returning
// without doing either leaves the message unacknowledged and it will be
// redelivered once the consumer's connection drops.
type Handler func(ctx context.Context, d Delivery) error

// Bus is the capability the coordinator and file workers need from the
// message layer.
type Bus interface {
	// Declare ensures queue exists as a durable queue.
	Declare(ctx context.Context, queue string) error

	// Publish sends body to queue with the given priority and
	// persistent delivery mode.
	Publish(ctx context.Context, queue string, body []byte, priority uint8) error

	// Consume starts a dedicated-channel consumer on queue with the
	// given prefetch count, invoking handler for every delivery until
	// ctx is canceled. It blocks until ctx is done or an unrecoverable
	// channel error occurs.
	Consume(ctx context.Context, queue string, prefetch int, handler Handler) error

	// Purge empties queue and reports how many messages it removed; used
	// by tests.
	Purge(ctx context.Context, queue string) (int, error)

	Close() error
}
