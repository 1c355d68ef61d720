package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaInitiator publishes one message per approval, keyed by cash-out id so
// all events for a request land on the same partition.
type KafkaInitiator struct {
	writer messageWriter
}

func NewKafkaInitiator(brokers []string, topic string) *KafkaInitiator {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			zap.L().Debug(fmt.Sprintf(msg, args...))
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			zap.L().Warn(fmt.Sprintf(msg, args...))
		}),
	}
	return &KafkaInitiator{writer: writer}
}

func (k *KafkaInitiator) Name() string { return "kafka" }

func (k *KafkaInitiator) Notify(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal settlement event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.CashoutID.String()),
		Value: payload,
		Time:  ev.ApprovedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("cashout.approved")},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish settlement event: %w", err)
	}
	return nil
}

func (k *KafkaInitiator) Close() error {
	return k.writer.Close()
}
