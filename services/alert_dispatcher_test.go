package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/kendall-kelly/snackline-api/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// MockAlertDispatcher records alerts and can be told to fail
type MockAlertDispatcher struct {
	mock.Mock
}

func (m *MockAlertDispatcher) SendAlert(ctx context.Context, recipient, subject, body string) error {
	args := m.Called(ctx, recipient, subject, body)
	return args.Error(0)
}

type fakeKafkaWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeKafkaWriter) Close() error {
	w.closed = true
	return nil
}

type fakeAMQPPublisher struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (p *fakeAMQPPublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if p.err != nil {
		return p.err
	}
	p.exchange, p.key, p.msg = exchange, key, msg
	return nil
}

func TestLogAlertDispatcher(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	d := NewLogAlertDispatcher(zap.New(core))

	require.NoError(t, d.SendAlert(context.Background(), "admin@snackline.local", "High risk feedback", "order 7"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "feedback alert", entry.Message)
	assert.Equal(t, "admin@snackline.local", entry.ContextMap()["recipient"])
}

func TestKafkaAlertDispatcher(t *testing.T) {
	writer := &fakeKafkaWriter{}
	d := NewKafkaAlertDispatcherWithWriter(writer)

	require.NoError(t, d.SendAlert(context.Background(), "ops@snackline.local", "subject", "body"))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "ops@snackline.local", string(msg.Key))

	var alert Alert
	require.NoError(t, json.Unmarshal(msg.Value, &alert))
	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, "subject", alert.Subject)
	assert.Equal(t, "body", alert.Body)

	require.NoError(t, d.Close())
	assert.True(t, writer.closed)
}

func TestKafkaAlertDispatcherError(t *testing.T) {
	d := NewKafkaAlertDispatcherWithWriter(&fakeKafkaWriter{err: errors.New("leader not available")})

	err := d.SendAlert(context.Background(), "ops@snackline.local", "subject", "body")
	assert.ErrorContains(t, err, "leader not available")
}

func TestAMQPAlertDispatcher(t *testing.T) {
	publisher := &fakeAMQPPublisher{}
	d := NewAMQPAlertDispatcherWithPublisher(publisher, "feedback_alerts")

	require.NoError(t, d.SendAlert(context.Background(), "ops@snackline.local", "subject", "body"))
	assert.Equal(t, "feedback_alerts", publisher.exchange)
	assert.Equal(t, "", publisher.key)
	assert.Equal(t, "application/json", publisher.msg.ContentType)
	assert.Equal(t, amqp.Persistent, publisher.msg.DeliveryMode)

	var alert Alert
	require.NoError(t, json.Unmarshal(publisher.msg.Body, &alert))
	assert.Equal(t, alert.ID, publisher.msg.MessageId)
	assert.Equal(t, "ops@snackline.local", alert.Recipient)

	assert.NoError(t, d.Close())
}

func TestAMQPAlertDispatcherError(t *testing.T) {
	d := NewAMQPAlertDispatcherWithPublisher(&fakeAMQPPublisher{err: amqp.ErrClosed}, "feedback_alerts")

	err := d.SendAlert(context.Background(), "ops@snackline.local", "subject", "body")
	assert.True(t, errors.Is(err, amqp.ErrClosed))
}

func TestNewAlertDispatcherDefaultsToLog(t *testing.T) {
	d, closeFn, err := NewAlertDispatcher(&config.Config{AlertTransport: "log"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &LogAlertDispatcher{}, d)
	assert.NoError(t, closeFn())

	d, closeFn, err = NewAlertDispatcher(&config.Config{
		AlertTransport:  "kafka",
		KafkaBrokers:    []string{"localhost:9092"},
		KafkaAlertTopic: "feedback.alerts",
	}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &KafkaAlertDispatcher{}, d)
	assert.NoError(t, closeFn())
}
