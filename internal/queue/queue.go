package queue

import (
	"context"
	"fmt"
	"time"
)

const (
	// RequestQueue receives onboarding requests accepted by the API.
	RequestQueue = "onboarding.requests"
	// CompletedQueue receives one event per finished run.
	CompletedQueue = "onboarding.completed"
)

// Message is a broker payload that can describe its own delivery headers.
type Message interface {
	Validate() error
	Envelope() (messageID, correlationID string)
}

// Publisher publishes onboarding messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg Message) error
	Close() error
}

// MessageHandler handles a consumed onboarding request.
type MessageHandler func(ctx context.Context, msg OnboardingRequestMessage) error

// Consumer consumes onboarding requests from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

// completedEventTTL bounds how long unread completion events stay in CompletedQueue.
const completedEventTTL = 7 * 24 * time.Hour

// QueueDecl describes one durable queue of the onboarding topology.
type QueueDecl struct {
	Name string
	// DeadLetter names the queue that receives rejected messages. Empty means none.
	DeadLetter string
	TTL        time.Duration
	Consumed   bool
}

// DLQName returns the dead-letter queue name for a work queue, e.g. dlq.onboarding.requests.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// Topology lists every queue in declaration order. Dead-letter queues come before the queues
// that route to them.
func Topology() []QueueDecl {
	return []QueueDecl{
		{Name: DLQName(RequestQueue)},
		{Name: RequestQueue, DeadLetter: DLQName(RequestQueue), Consumed: true},
		{Name: CompletedQueue, TTL: completedEventTTL},
	}
}

// WorkQueueNames returns the queues consumed by workers.
func WorkQueueNames() []string {
	var names []string
	for _, decl := range Topology() {
		if decl.Consumed {
			names = append(names, decl.Name)
		}
	}
	return names
}
