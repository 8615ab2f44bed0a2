package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facesort/internal/models"
)

type MessageHandler func(ctx context.Context, msg jetstream.Msg) error

// ControlHandler executes a batch control command and returns the reply to send.
type ControlHandler func(ctx context.Context, cmd models.ControlCommand) models.ControlReply

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// ConsumeEvents starts consuming pipeline events (for the API to broadcast via WebSocket).
func (c *Consumer) ConsumeEvents(ctx context.Context, consumerName string, handler MessageHandler) error {
	stream, err := c.js.Stream(ctx, EventsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", EventsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: EventsSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch events error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				if err := handler(ctx, msg); err != nil {
					slog.Error("process event error", "error", err, "subject", msg.Subject())
					_ = msg.Nak()
				} else {
					_ = msg.Ack()
				}
			}
		}
	}()

	slog.Info("event consumer started", "consumer", consumerName)
	return nil
}

// ServeControl answers batch control requests until ctx is cancelled.
func (c *Consumer) ServeControl(ctx context.Context, handler ControlHandler) error {
	sub, err := c.nc.Subscribe(ControlSubject, func(m *nats.Msg) {
		var cmd models.ControlCommand
		var reply models.ControlReply
		if err := json.Unmarshal(m.Data, &cmd); err != nil {
			reply = models.ControlReply{Error: fmt.Sprintf("decode command: %v", err)}
		} else {
			reply = handler(ctx, cmd)
		}

		data, err := json.Marshal(reply)
		if err != nil {
			slog.Error("marshal control reply", "error", err)
			return
		}
		if err := m.Respond(data); err != nil {
			slog.Warn("respond to control request", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", ControlSubject, err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()

	slog.Info("control subscriber started", "subject", ControlSubject)
	return nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
