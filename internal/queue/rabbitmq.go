package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dlxExchangeName  = "onboarding.dlx"
	dialTimeout      = 15 * time.Second
	reconnectBackoff = time.Second
	maxBackoff       = 30 * time.Second
)

// RabbitMQ owns one broker connection and redials it when it drops. Every channel it hands
// out has the onboarding topology declared.
type RabbitMQ struct {
	url string

	mu     sync.RWMutex
	dialMu sync.Mutex
	conn   *amqp.Connection
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	r := &RabbitMQ{url: url}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if _, err := r.connection(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

// Ping reports whether the broker connection is open. Used by readiness checks.
func (r *RabbitMQ) Ping(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("rabbitmq is not configured")
	}
	_, err := r.connection(ctx)
	return err
}

func (r *RabbitMQ) current() *amqp.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.conn == nil || r.conn.IsClosed() {
		return nil
	}
	return r.conn
}

// connection returns the open connection, dialing with capped exponential backoff until ctx ends.
func (r *RabbitMQ) connection(ctx context.Context) (*amqp.Connection, error) {
	if conn := r.current(); conn != nil {
		return conn, nil
	}

	r.dialMu.Lock()
	defer r.dialMu.Unlock()

	// Another caller may have redialed while we waited.
	if conn := r.current(); conn != nil {
		return conn, nil
	}

	wait := reconnectBackoff
	for {
		conn, err := amqp.Dial(r.url)
		if err == nil {
			r.mu.Lock()
			r.conn = conn
			r.mu.Unlock()
			return conn, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("rabbitmq dial canceled: %w (last error: %v)", ctx.Err(), err)
		case <-time.After(wait):
		}
		wait = nextBackoff(wait)
	}
}

func (r *RabbitMQ) channel(ctx context.Context) (*amqp.Channel, error) {
	conn, err := r.connection(ctx)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		// The connection died between the check and the call; drop it and redial once.
		r.mu.Lock()
		if r.conn == conn {
			r.conn = nil
		}
		r.mu.Unlock()

		if conn, err = r.connection(ctx); err != nil {
			return nil, err
		}
		if ch, err = conn.Channel(); err != nil {
			return nil, fmt.Errorf("failed to open rabbitmq channel after redial: %w", err)
		}
	}

	if err := declareTopology(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return ch, nil
}

func nextBackoff(wait time.Duration) time.Duration {
	wait *= 2
	if wait > maxBackoff {
		return maxBackoff
	}
	return wait
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dlx exchange: %w", err)
	}

	for _, decl := range Topology() {
		if _, err := ch.QueueDeclare(decl.Name, true, false, false, false, queueArgs(decl)); err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", decl.Name, err)
		}
		if decl.DeadLetter != "" {
			if err := ch.QueueBind(decl.DeadLetter, decl.Name, dlxExchangeName, false, nil); err != nil {
				return fmt.Errorf("failed to bind dlq %q: %w", decl.DeadLetter, err)
			}
		}
	}
	return nil
}

func queueArgs(decl QueueDecl) amqp.Table {
	if decl.DeadLetter == "" && decl.TTL <= 0 {
		return nil
	}

	args := amqp.Table{}
	if decl.DeadLetter != "" {
		args["x-dead-letter-exchange"] = dlxExchangeName
		args["x-dead-letter-routing-key"] = decl.Name
	}
	if decl.TTL > 0 {
		args["x-message-ttl"] = decl.TTL.Milliseconds()
	}
	return args
}
