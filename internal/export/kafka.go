package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/banshee-data/gt3x/internal/gt3x"
	"github.com/banshee-data/gt3x/internal/monitoring"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns a synchronous writer for topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		Async:        false,
	}
}

// SampleBatch is the JSON body of one Kafka message.
type SampleBatch struct {
	RecordingID  string        `json:"recording_id"`
	SerialNumber string        `json:"serial_number"`
	SampleRate   float64       `json:"sample_rate"`
	Sequence     int64         `json:"sequence"`
	Samples      []BatchSample `json:"samples"`
}

// BatchSample is one sample within a SampleBatch. T is Unix nanoseconds.
type BatchSample struct {
	T int64   `json:"t"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// KafkaPublisher batches samples into JSON messages keyed by serial number,
// so one device's batches stay ordered within a partition.
type KafkaPublisher struct {
	ctx       context.Context
	w         MessageWriter
	batchSize int
	timeout   time.Duration

	batch    SampleBatch
	messages int64
}

// NewKafkaPublisher publishes through w. recordingID may be uuid.Nil, in
// which case a new one is generated.
func NewKafkaPublisher(ctx context.Context, w MessageWriter, dev gt3x.DeviceInfo, recordingID uuid.UUID, batchSize int) *KafkaPublisher {
	if batchSize <= 0 {
		batchSize = 500
	}
	if recordingID == uuid.Nil {
		recordingID = uuid.New()
	}
	return &KafkaPublisher{
		ctx:       ctx,
		w:         w,
		batchSize: batchSize,
		timeout:   10 * time.Second,
		batch: SampleBatch{
			RecordingID:  recordingID.String(),
			SerialNumber: dev.SerialNumber,
			SampleRate:   dev.SampleRate,
			Samples:      make([]BatchSample, 0, batchSize),
		},
	}
}

// WriteSample adds a sample and publishes when the batch is full.
func (p *KafkaPublisher) WriteSample(s gt3x.CalibratedSample) error {
	p.batch.Samples = append(p.batch.Samples, BatchSample{T: s.Timestamp.UnixNano(), X: s.X, Y: s.Y, Z: s.Z})
	if len(p.batch.Samples) >= p.batchSize {
		return p.flush()
	}
	return nil
}

func (p *KafkaPublisher) flush() error {
	if len(p.batch.Samples) == 0 {
		return nil
	}
	body, err := json.Marshal(p.batch)
	if err != nil {
		return fmt.Errorf("encode sample batch: %w", err)
	}
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	msg := kafka.Message{
		Key:   []byte(p.batch.SerialNumber),
		Value: body,
		Headers: []kafka.Header{
			{Key: "recording_id", Value: []byte(p.batch.RecordingID)},
			{Key: "content_type", Value: []byte("application/json")},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish sample batch %d: %w", p.batch.Sequence, err)
	}
	monitoring.Debugf("kafka: published batch %d (%d samples)", p.batch.Sequence, len(p.batch.Samples))
	p.messages++
	p.batch.Sequence++
	p.batch.Samples = p.batch.Samples[:0]
	return nil
}

// Messages is the number of messages published.
func (p *KafkaPublisher) Messages() int64 { return p.messages }

// Close publishes the final partial batch and closes the writer.
func (p *KafkaPublisher) Close() error {
	flushErr := p.flush()
	closeErr := p.w.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
