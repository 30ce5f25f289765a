// Package kafka publishes marketplace events to Kafka. It satisfies the same
// Publish contract as the RabbitMQ producer: the exchange names the topic
// (joined with an optional prefix) and the routing key becomes the record key.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer wraps a franz-go client.
type Producer struct {
	client      *kgo.Client
	topicPrefix string
}

// NewProducer connects to the given comma separated seed brokers.
func NewProducer(brokers string, topicPrefix string) (*Producer, error) {
	var seeds []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			seeds = append(seeds, b)
		}
	}
	if len(seeds) == 0 {
		return nil, errors.New("kafka: no seed brokers configured")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(seeds...),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: failed to create client: %w", err)
	}

	return &Producer{client: client, topicPrefix: strings.TrimSuffix(topicPrefix, ".")}, nil
}

// Topic returns the topic an exchange maps to.
func (p *Producer) Topic(exchange string) string {
	return topicName(p.topicPrefix, exchange)
}

func topicName(prefix, exchange string) string {
	if prefix == "" {
		return exchange
	}
	return prefix + "." + exchange
}

// Publish marshals body as JSON and produces it synchronously.
func (p *Producer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	record := &kgo.Record{
		Topic: p.Topic(exchange),
		Key:   []byte(routingKey),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "routing-key", Value: []byte(routingKey)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("kafka: failed to produce to %s: %w", record.Topic, err)
	}
	return nil
}

// Close flushes and closes the client.
func (p *Producer) Close() {
	p.client.Close()
}
