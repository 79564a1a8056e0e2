package mq

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyBrokers       = errors.New("empty brokers")
	ErrEmptyTopics        = errors.New("empty topics")
	ErrEmptyTopicName     = errors.New("empty topic name")
	ErrEmptyMessageKey    = errors.New("empty message key")
	ErrUnsupportedPayload = errors.New("unsupported payload")
)

// Message is the envelope written to every topic. Key selects the partition,
// so messages sharing a key are consumed in the order they were sent.
type Message struct {
	Payload Payload     `json:"payload,omitempty"`
	Key     string      `json:"key,omitempty"`
	Body    interface{} `json:"body,omitempty"`
}

// ParseBody decodes Body into dst. After a round trip through JSON, Body is a
// generic map, so it is re-encoded first.
func (msg *Message) ParseBody(dst interface{}) error {
	b, err := json.Marshal(msg.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

type Producer struct {
	saramaProducer sarama.AsyncProducer
	topics         map[Payload]string
}

type ProducerConfig struct {
	Brokers []string          `json:"brokers,omitempty"`
	Topics  map[uint32]string `json:"topics,omitempty"`
}

func (c *ProducerConfig) validate() error {
	if len(c.Brokers) == 0 {
		return ErrEmptyBrokers
	}

	if len(c.Topics) == 0 {
		return ErrEmptyTopics
	}

	for payload, topic := range c.Topics {
		if topic == "" {
			return ErrEmptyTopicName
		}

		if _, ok := Payloads[Payload(payload)]; !ok {
			return ErrUnsupportedPayload
		}
	}

	return nil
}

func (c *ProducerConfig) topicsByPayload() map[Payload]string {
	topics := make(map[Payload]string, len(c.Topics))
	for payload, topic := range c.Topics {
		topics[Payload(payload)] = topic
	}
	return topics
}

func NewProducer(ctx context.Context, cfg ProducerConfig) (*Producer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Flush.Frequency = 500 * time.Millisecond
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	saramaConfig.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, err
	}

	go func() {
		for err := range producer.Errors() {
			log.Ctx(ctx).Error().Msgf("produce message failed, topic: %s, key: %v, err: %v",
				err.Msg.Topic, err.Msg.Key, err.Err)
		}
	}()

	return &Producer{
		saramaProducer: producer,
		topics:         cfg.topicsByPayload(),
	}, nil
}

func (p *Producer) Close() error {
	return p.saramaProducer.Close()
}

// SendMessage enqueues msg without waiting for the broker; delivery failures
// are only logged.
func (p *Producer) SendMessage(msg *Message) error {
	topic, ok := p.topics[msg.Payload]
	if !ok {
		return ErrUnsupportedPayload
	}

	if msg.Key == "" {
		return ErrEmptyMessageKey
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	p.saramaProducer.Input() <- &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(msg.Key),
		Value: sarama.ByteEncoder(b),
	}

	return nil
}
