// Package audit ships domain audit events to zap and, when brokers are
// configured, to a Kafka topic.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Tsipchain/driver-platform/domain"
)

// ZapAuditLogger writes each event as one structured log line
type ZapAuditLogger struct {
	logger *zap.Logger
}

// NewZapAuditLogger creates an audit logger over logger
func NewZapAuditLogger(logger *zap.Logger) domain.AuditLogger {
	return &ZapAuditLogger{logger: logger.Named("audit")}
}

// LogEvent implements domain.AuditLogger
func (l *ZapAuditLogger) LogEvent(ctx context.Context, event *domain.AuditEvent) error {
	fields := []zap.Field{
		zap.String("event_type", string(event.EventType)),
		zap.Bool("success", event.Success),
		zap.Time("timestamp", event.Timestamp),
	}
	if event.DriverID != 0 {
		fields = append(fields, zap.Uint("driver_id", event.DriverID))
	}
	if event.Phone != "" {
		fields = append(fields, zap.String("phone", event.Phone))
	}
	if event.IPAddress != "" {
		fields = append(fields, zap.String("ip", event.IPAddress))
	}
	if id := requestID(ctx, event); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if event.ErrorMsg != "" {
		fields = append(fields, zap.String("error", event.ErrorMsg))
	}
	if len(event.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", event.Metadata))
	}

	if event.Success {
		l.logger.Info("audit event", fields...)
	} else {
		l.logger.Warn("audit event", fields...)
	}
	return nil
}

// MessageWriter is the part of *kafka.Writer used to publish events
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaAuditLogger publishes events as JSON keyed by driver id
type KafkaAuditLogger struct {
	writer MessageWriter
	topic  string
}

// NewKafkaWriter builds a synchronous writer for the audit topic
func NewKafkaWriter(brokers []string, topic string, logger *zap.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), zap.String("component", "kafka-audit"))
		}),
	}
}

// NewKafkaAuditLogger creates an audit logger over writer
func NewKafkaAuditLogger(writer MessageWriter, topic string) *KafkaAuditLogger {
	return &KafkaAuditLogger{writer: writer, topic: topic}
}

// LogEvent implements domain.AuditLogger
func (k *KafkaAuditLogger) LogEvent(ctx context.Context, event *domain.AuditEvent) error {
	if event.RequestID == "" {
		event.RequestID = domain.RequestIDFrom(ctx)
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(event.DriverID), 10)),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish audit event to %s: %w", k.topic, err)
	}
	return nil
}

// Close flushes and closes the writer
func (k *KafkaAuditLogger) Close() error {
	return k.writer.Close()
}

// MultiAuditLogger fans an event out to every sink. Sink failures are logged
// and never returned, so auditing cannot fail the audited operation.
type MultiAuditLogger struct {
	sinks  []domain.AuditLogger
	logger *zap.Logger
}

// NewMultiAuditLogger combines sinks
func NewMultiAuditLogger(logger *zap.Logger, sinks ...domain.AuditLogger) domain.AuditLogger {
	return &MultiAuditLogger{sinks: sinks, logger: logger}
}

// LogEvent implements domain.AuditLogger
func (m *MultiAuditLogger) LogEvent(ctx context.Context, event *domain.AuditEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.LogEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		m.logger.Error("audit sink failed", zap.String("event_type", string(event.EventType)), zap.Error(err))
	}
	return nil
}

// RedactingAuditLogger replaces client addresses with their salted hash
// before events reach any sink
type RedactingAuditLogger struct {
	hasher domain.Hasher
	next   domain.AuditLogger
}

// NewRedactingAuditLogger wraps next
func NewRedactingAuditLogger(hasher domain.Hasher, next domain.AuditLogger) domain.AuditLogger {
	return &RedactingAuditLogger{hasher: hasher, next: next}
}

// LogEvent implements domain.AuditLogger. The caller's event is not modified.
func (r *RedactingAuditLogger) LogEvent(ctx context.Context, event *domain.AuditEvent) error {
	if event.IPAddress == "" {
		return r.next.LogEvent(ctx, event)
	}
	redacted := *event
	redacted.IPAddress = r.hasher.Hash(event.IPAddress)
	return r.next.LogEvent(ctx, &redacted)
}

func requestID(ctx context.Context, event *domain.AuditEvent) string {
	if event.RequestID != "" {
		return event.RequestID
	}
	return domain.RequestIDFrom(ctx)
}
