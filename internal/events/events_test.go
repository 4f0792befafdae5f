package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

type fakeProducer struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (f *fakeProducer) WriteMessage(_ context.Context, msg kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeProducer) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisherKeysByPharmacy(t *testing.T) {
	producer := &fakeProducer{}
	p := NewKafkaPublisherWithProducer(producer, "pharmapos.sales")

	total := decimal.RequireFromString("15.00")
	event := Event{Type: SaleCompleted, PharmacyID: "ph1", SaleID: "sale_1", Total: &total, OccurredAt: time.Now().UTC()}
	if err := p.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(producer.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(producer.messages))
	}
	msg := producer.messages[0]
	if string(msg.Key) != "ph1" {
		t.Fatalf("expected pharmacy key, got %q", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != string(SaleCompleted) {
		t.Fatalf("expected event_type header, got %+v", msg.Headers)
	}

	var decoded Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.SaleID != "sale_1" || decoded.Total == nil || !decoded.Total.Equal(total) {
		t.Fatalf("unexpected payload: %+v", decoded)
	}

	if err := p.Close(); err != nil || !producer.closed {
		t.Fatalf("expected producer closed, err=%v", err)
	}
}

func TestKafkaPublisherWrapsWriteErrors(t *testing.T) {
	boom := errors.New("broker down")
	p := NewKafkaPublisherWithProducer(&fakeProducer{err: boom}, "pharmapos.sales")
	if err := p.Publish(context.Background(), Event{Type: HoldCreated, PharmacyID: "ph1"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped broker error, got %v", err)
	}
}

func TestNewKafkaPublisherRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaPublisher(KafkaConfig{Topic: "x"}, nil); err == nil {
		t.Fatalf("expected error without brokers")
	}
}
