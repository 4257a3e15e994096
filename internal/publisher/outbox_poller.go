package publisher

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	r "github.com/shopkart/checkout-service/internal/repository"
)

const Topic = "checkout-events"

// messageWriter is the slice of kafka.Writer the poller uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// OutboxPoller drains the checkout outbox into Kafka and sweeps attempts
// whose verification never got a definitive answer.
type OutboxPoller struct {
	eventTick     time.Duration
	recoveryTick  time.Duration
	verifyTimeout time.Duration
	repo          r.RepoInterface
	writer        messageWriter
}

func NewOutboxPoller(repo r.RepoInterface, verifyTimeout time.Duration, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &OutboxPoller{
		eventTick:     time.Second,
		recoveryTick:  time.Second * 5,
		verifyTimeout: verifyTimeout,
		repo:          repo,
		writer:        w,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	recoveryTicker := time.NewTicker(p.recoveryTick)
	defer eventTicker.Stop()
	defer recoveryTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-recoveryTicker.C:
			p.recoverStuckVerifications(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, 100)
	if err != nil {
		log.Printf("failed to fetch outbox events: %v", err)
		return
	}

	for _, event := range events {
		if errPublish := p.publish(ctx, event); errPublish != nil {
			log.Printf("failed to publish event id = %v with error %v", event.ID, errPublish)
			continue
		}

		if errMark := p.repo.MarkEventAsProcessed(ctx, event.ID); errMark != nil {
			log.Printf("failed to mark event as processed id = %v with error %v", event.ID, errMark)
			continue
		}
	}
}

// recoverStuckVerifications marks attempts that sat in VERIFYING past the
// bound as failed-indeterminate. The order may or may not be paid at the
// gateway; the emitted event hands it to reconciliation instead of letting
// it hang forever.
func (p *OutboxPoller) recoverStuckVerifications(ctx context.Context) {
	attempts, err := p.repo.GetStuckVerifications(ctx, p.verifyTimeout)
	if err != nil {
		log.Printf("failed to get stuck verifications: %v", err)
		return
	}

	for _, attempt := range attempts {
		log.Printf("recovering stuck verification: %v", attempt.ID)

		payload, err := json.Marshal(map[string]interface{}{
			"attempt_id":    attempt.ID,
			"session_id":    attempt.SessionID,
			"order_id":      attempt.OrderID,
			"indeterminate": true,
			"reason":        "verification timed out, outcome unknown at gateway",
		})
		if err != nil {
			log.Printf("failed to marshal recovery payload for attempt %v: %v", attempt.ID, err)
			continue
		}

		if err := p.repo.FailAttempt(ctx, &attempt.ID, "payment indeterminate", payload); err != nil {
			log.Printf("failed to mark attempt %v indeterminate: %v", attempt.ID, err)
			continue
		}

		log.Printf("attempt handed to reconciliation: %v", attempt.ID)
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *r.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateId), // attempt id for ordering
		Value: event.Payload,             // already JSON from the database
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
