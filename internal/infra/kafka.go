package infra

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// NewKafkaWriter returns an async writer keyed by trip so one trip's history stays ordered.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		Async:                  true,
		AllowAutoTopicCreation: true,
	}
}
