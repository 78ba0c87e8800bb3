package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	TopicUserEvents = "user_events"
	writeTimeout    = 5 * time.Second
)

type Type string

const (
	UserRegistered     Type = "user_registered"
	UserLoggedIn       Type = "user_logged_in"
	UserLoggedOut      Type = "user_logged_out"
	UserFederatedLogin Type = "user_federated_login"
	PasswordChanged    Type = "password_changed"
	RoleChanged        Type = "role_changed"
	AccountUpdated     Type = "account_updated"
	TOTPEnabled        Type = "totp_enabled"
	TOTPDisabled       Type = "totp_disabled"
)

type Event struct {
	Type      Type           `json:"type"`
	AccountID string         `json:"account_id"`
	At        time.Time      `json:"at"`
	Data      map[string]any `json:"data,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes account events keyed by account id, so one account's
// events stay ordered within a partition. Writes are async; delivery errors
// go to the logger instead of the request that caused the event.
type Producer struct {
	w     messageWriter
	topic string
}

func NewProducer(brokers []string, topic string, log *slog.Logger) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			WriteTimeout:           writeTimeout,
			Async:                  true,
			ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
				log.Error("kafka_writer", "topic", topic, "error", fmt.Sprintf(msg, args...))
			}),
		},
		topic: topic,
	}
}

func (p *Producer) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka: json.Marshal failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	err = p.w.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(ev.AccountID),
		Value: data,
		Time:  ev.At,
	})
	if err != nil {
		return fmt.Errorf("kafka: write failed: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.w.Close()
}

// Nop is used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
