package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/snackline-api/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// AlertDispatcher delivers an operational alert to a recipient. Callers treat
// a failure as best effort: it is logged, never propagated.
type AlertDispatcher interface {
	SendAlert(ctx context.Context, recipient, subject, body string) error
}

// Alert is the envelope published by the broker-backed dispatchers
type Alert struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func newAlert(recipient, subject, body string) Alert {
	return Alert{
		ID:        uuid.NewString(),
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
}

// NewAlertDispatcher builds the dispatcher selected by cfg.AlertTransport.
// The returned close function releases broker connections.
func NewAlertDispatcher(cfg *config.Config, logger *zap.Logger) (AlertDispatcher, func() error, error) {
	switch cfg.AlertTransport {
	case "kafka":
		d := NewKafkaAlertDispatcher(cfg.KafkaBrokers, cfg.KafkaAlertTopic)
		return d, d.Close, nil
	case "amqp":
		d, err := DialAMQPAlertDispatcher(cfg.AMQPURL, cfg.AMQPAlertExchange)
		if err != nil {
			return nil, nil, err
		}
		return d, d.Close, nil
	default:
		return NewLogAlertDispatcher(logger), func() error { return nil }, nil
	}
}

// LogAlertDispatcher writes alerts to the application log
type LogAlertDispatcher struct {
	logger *zap.Logger
}

// NewLogAlertDispatcher creates a dispatcher that only logs
func NewLogAlertDispatcher(logger *zap.Logger) *LogAlertDispatcher {
	return &LogAlertDispatcher{logger: logger}
}

func (d *LogAlertDispatcher) SendAlert(ctx context.Context, recipient, subject, body string) error {
	d.logger.Warn("feedback alert",
		zap.String("recipient", recipient),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}

// KafkaWriter is the part of *kafka.Writer the dispatcher uses
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaAlertDispatcher publishes alerts to a topic, keyed by recipient
type KafkaAlertDispatcher struct {
	writer KafkaWriter
}

// NewKafkaAlertDispatcher creates a synchronous writer for topic
func NewKafkaAlertDispatcher(brokers []string, topic string) *KafkaAlertDispatcher {
	return NewKafkaAlertDispatcherWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	})
}

// NewKafkaAlertDispatcherWithWriter wraps an existing writer
func NewKafkaAlertDispatcherWithWriter(writer KafkaWriter) *KafkaAlertDispatcher {
	return &KafkaAlertDispatcher{writer: writer}
}

func (d *KafkaAlertDispatcher) SendAlert(ctx context.Context, recipient, subject, body string) error {
	alert := newAlert(recipient, subject, body)
	value, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	err = d.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(recipient),
		Value: value,
		Time:  alert.CreatedAt,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte("feedback.alert")},
			{Key: "x-alert-id", Value: []byte(alert.ID)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write alert to kafka: %w", err)
	}
	return nil
}

// Close flushes and closes the writer
func (d *KafkaAlertDispatcher) Close() error {
	return d.writer.Close()
}

// AMQPPublisher is the part of *amqp.Channel the dispatcher uses
type AMQPPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPAlertDispatcher publishes persistent alerts to a fanout exchange
type AMQPAlertDispatcher struct {
	publisher AMQPPublisher
	exchange  string
	closers   []func() error
}

// DialAMQPAlertDispatcher connects to url and declares a durable fanout exchange
func DialAMQPAlertDispatcher(url, exchange string) (*AMQPAlertDispatcher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange, // name
		"fanout", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	d := NewAMQPAlertDispatcherWithPublisher(ch, exchange)
	d.closers = []func() error{ch.Close, conn.Close}
	return d, nil
}

// NewAMQPAlertDispatcherWithPublisher wraps an open channel
func NewAMQPAlertDispatcherWithPublisher(publisher AMQPPublisher, exchange string) *AMQPAlertDispatcher {
	return &AMQPAlertDispatcher{publisher: publisher, exchange: exchange}
}

func (d *AMQPAlertDispatcher) SendAlert(ctx context.Context, recipient, subject, body string) error {
	alert := newAlert(recipient, subject, body)
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	err = d.publisher.PublishWithContext(ctx,
		d.exchange, // exchange
		"",         // routing key, ignored by fanout
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    alert.ID,
			Timestamp:    alert.CreatedAt,
			Body:         payload,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

// Close closes the channel and connection opened by DialAMQPAlertDispatcher
func (d *AMQPAlertDispatcher) Close() error {
	var firstErr error
	for _, closeFn := range d.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
