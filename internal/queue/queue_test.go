package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kursadbilgin/onboarding-engine/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func TestTopology(t *testing.T) {
	work := WorkQueueNames()
	if len(work) != 1 || work[0] != "onboarding.requests" {
		t.Fatalf("WorkQueueNames = %v, want [onboarding.requests]", work)
	}

	declared := make(map[string]int)
	for i, decl := range Topology() {
		declared[decl.Name] = i
	}

	for _, decl := range Topology() {
		if decl.DeadLetter == "" {
			continue
		}
		pos, ok := declared[decl.DeadLetter]
		if !ok {
			t.Fatalf("%s dead-letters to undeclared queue %s", decl.Name, decl.DeadLetter)
		}
		if pos > declared[decl.Name] {
			t.Fatalf("%s must be declared before %s", decl.DeadLetter, decl.Name)
		}
	}

	if decl := Topology()[declared[CompletedQueue]]; decl.Consumed || decl.TTL <= 0 {
		t.Fatalf("completed queue = %+v, want publish-only with a ttl", decl)
	}
	if DLQName(RequestQueue) != "dlq.onboarding.requests" {
		t.Fatalf("DLQName = %s", DLQName(RequestQueue))
	}
}

func TestQueueArgs(t *testing.T) {
	args := queueArgs(QueueDecl{Name: "work", DeadLetter: "dlq.work", TTL: 2 * time.Second})
	if args["x-dead-letter-exchange"] != dlxExchangeName || args["x-dead-letter-routing-key"] != "work" {
		t.Fatalf("dead-letter args = %v", args)
	}
	if args["x-message-ttl"] != int64(2000) {
		t.Fatalf("x-message-ttl = %v, want 2000", args["x-message-ttl"])
	}

	if args := queueArgs(QueueDecl{Name: "plain"}); args != nil {
		t.Fatalf("plain queue args = %v, want nil", args)
	}
}

func TestNextBackoff(t *testing.T) {
	if got := nextBackoff(reconnectBackoff); got != 2*reconnectBackoff {
		t.Fatalf("nextBackoff(%s) = %s", reconnectBackoff, got)
	}
	if got := nextBackoff(maxBackoff - time.Second); got != maxBackoff {
		t.Fatalf("nextBackoff near cap = %s, want %s", got, maxBackoff)
	}
}

func TestOnboardingRequestMessageValidate(t *testing.T) {
	valid := OnboardingRequestMessage{RunID: "run-1", Organization: "Acme Corp", ProjectSlug: "cncf"}

	tests := []struct {
		name    string
		mutate  func(m *OnboardingRequestMessage)
		wantErr bool
	}{
		{name: "valid", mutate: func(m *OnboardingRequestMessage) {}},
		{name: "missing run id", mutate: func(m *OnboardingRequestMessage) { m.RunID = " " }, wantErr: true},
		{name: "missing organization", mutate: func(m *OnboardingRequestMessage) { m.Organization = "" }, wantErr: true},
		{name: "missing project", mutate: func(m *OnboardingRequestMessage) { m.ProjectSlug = "" }, wantErr: true},
		{name: "negative batch size", mutate: func(m *OnboardingRequestMessage) { m.BatchSize = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			msg := valid
			tt.mutate(&msg)
			err := msg.Validate()
			if tt.wantErr {
				if !errors.Is(err, domain.ErrValidation) {
					t.Fatalf("Validate() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestRunCompletedMessage(t *testing.T) {
	completed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	msg := NewRunCompletedMessage(domain.RunSummary{
		RunID:        "run-1",
		Organization: "Acme Corp",
		ProjectSlug:  "cncf",
		Status:       domain.RunStatusSuccess,
		Succeeded:    3,
		CompletedAt:  &completed,
	}, "corr-1")

	if err := msg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
	if id, corr := msg.Envelope(); id != "run-1" || corr != "corr-1" {
		t.Fatalf("Envelope() = %q, %q", id, corr)
	}
	if !msg.CompletedAt.Equal(completed) || msg.Succeeded != 3 {
		t.Fatalf("message = %+v", msg)
	}

	msg.Status = domain.RunStatusRunning
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for non-final status")
	}
}

func TestNewPublishing(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	msg := OnboardingRequestMessage{RunID: "run-1", CorrelationID: "corr-1", Organization: "Acme Corp", ProjectSlug: "cncf"}

	publishing, err := newPublishing(RequestQueue, msg, now)
	if err != nil {
		t.Fatalf("newPublishing() error = %v", err)
	}
	if publishing.MessageId != "run-1" || publishing.CorrelationId != "corr-1" {
		t.Fatalf("publishing ids = %q, %q", publishing.MessageId, publishing.CorrelationId)
	}
	if publishing.DeliveryMode != amqp.Persistent || publishing.Timestamp.Location() != time.UTC {
		t.Fatalf("publishing = %+v", publishing)
	}

	var decoded OnboardingRequestMessage
	if err := json.Unmarshal(publishing.Body, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if decoded.Organization != "Acme Corp" {
		t.Fatalf("decoded = %+v", decoded)
	}

	if _, err := newPublishing("", msg, now); err == nil {
		t.Fatal("expected error for empty queue")
	}
	if _, err := newPublishing(RequestQueue, OnboardingRequestMessage{}, now); err == nil {
		t.Fatal("expected error for invalid message")
	}
}

type fakeAcknowledger struct {
	acked    int
	nacked   int
	rejected int
	requeue  bool
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.acked++
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked++
	a.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	a.rejected++
	a.requeue = requeue
	return nil
}

func TestHandleDelivery(t *testing.T) {
	validBody := []byte(`{"runId":"run-1","organization":"Acme Corp","projectSlug":"cncf"}`)

	tests := []struct {
		name        string
		body        []byte
		redelivered bool
		handlerErr  error
		wantAck     int
		wantNack    int
		wantReject  int
		wantRequeue bool
	}{
		{name: "handled", body: validBody, wantAck: 1},
		{name: "invalid json", body: []byte(`{`), wantReject: 1},
		{name: "invalid payload", body: []byte(`{"runId":"run-1"}`), wantReject: 1},
		{name: "transient failure requeued", body: validBody, handlerErr: errors.New("store down"), wantNack: 1, wantRequeue: true},
		{name: "second failure dead-lettered", body: validBody, redelivered: true, handlerErr: errors.New("store down"), wantNack: 1},
		{name: "conflict dead-lettered", body: validBody, handlerErr: fmt.Errorf("%w: duplicate run", domain.ErrConflict), wantNack: 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAcknowledger{}
			consumer := NewRabbitMQConsumer(nil, 1, zap.NewNop())

			var got OnboardingRequestMessage
			err := consumer.handleDelivery(context.Background(), amqp.Delivery{
				Acknowledger:  ack,
				Body:          tt.body,
				Redelivered:   tt.redelivered,
				CorrelationId: "corr-from-header",
			}, func(ctx context.Context, msg OnboardingRequestMessage) error {
				got = msg
				return tt.handlerErr
			})
			if err != nil {
				t.Fatalf("handleDelivery() error = %v", err)
			}

			if ack.acked != tt.wantAck || ack.nacked != tt.wantNack || ack.rejected != tt.wantReject {
				t.Fatalf("ack/nack/reject = %d/%d/%d, want %d/%d/%d",
					ack.acked, ack.nacked, ack.rejected, tt.wantAck, tt.wantNack, tt.wantReject)
			}
			if ack.requeue != tt.wantRequeue {
				t.Fatalf("requeue = %v, want %v", ack.requeue, tt.wantRequeue)
			}
			if tt.wantAck == 1 && got.CorrelationID != "corr-from-header" {
				t.Fatalf("CorrelationID = %q, want header fallback", got.CorrelationID)
			}
		})
	}
}
