package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"outreach/pkg/goutil"
)

var (
	ErrInvalidBalanceStrategy = errors.New("invalid balance strategy")
	ErrInvalidInitialOffset   = errors.New("invalid initial offset")
)

type HandlerFunc func(ctx context.Context, msg *Message) error

var (
	handlerLock sync.RWMutex
	handlers    = make(map[Payload]HandlerFunc)
)

func RegisterHandler(payload Payload, handler HandlerFunc) {
	handlerLock.Lock()
	defer handlerLock.Unlock()

	if handler == nil {
		panic("payload handler is nil")
	}

	if _, ok := handlers[payload]; ok {
		panic("payload already has a handler")
	}

	handlers[payload] = handler
}

func getHandlerFunc(payload Payload) HandlerFunc {
	handlerLock.RLock()
	defer handlerLock.RUnlock()
	handler, ok := handlers[payload]
	if !ok {
		return nil
	}
	return handler
}

type ConsumerConfig struct {
	Brokers         []string `json:"brokers,omitempty"`
	Topic           string   `json:"topic,omitempty"`
	ConsumerGroup   string   `json:"consumer_group,omitempty"`
	BalanceStrategy string   `json:"balance_strategy,omitempty"`
	InitialOffset   string   `json:"initial_offset,omitempty"`
}

var balanceStrategies = []string{"sticky", "roundrobin", "range"}

var initialOffsets = []string{"newest", "oldest"}

func (c *ConsumerConfig) validate() error {
	if len(c.Brokers) == 0 {
		return ErrEmptyBrokers
	}

	if c.Topic == "" {
		return ErrEmptyTopicName
	}

	if c.BalanceStrategy != "" && !goutil.ContainsStr(balanceStrategies, c.BalanceStrategy) {
		return ErrInvalidBalanceStrategy
	}

	if c.InitialOffset != "" && !goutil.ContainsStr(initialOffsets, c.InitialOffset) {
		return ErrInvalidInitialOffset
	}

	return nil
}

type Consumer struct {
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	client    sarama.ConsumerGroup
	ready     chan struct{}
	readyOnce sync.Once
}

// NewConsumer joins the consumer group and blocks until the first session is
// set up or ctx is done.
func NewConsumer(ctx context.Context, cfg ConsumerConfig) (*Consumer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Return.Errors = true

	if cfg.InitialOffset == "oldest" {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	}

	switch cfg.BalanceStrategy {
	case balanceStrategies[0]:
		saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategySticky()}
	case balanceStrategies[1]:
		saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	default:
		saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	}

	client, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaConfig)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)

	c := &Consumer{
		ctx:    subCtx,
		client: client,
		cancel: cancel,
		ready:  make(chan struct{}),
	}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for err := range client.Errors() {
			log.Ctx(c.ctx).Error().Msgf("consumer group error, topic: %s, err: %v", cfg.Topic, err)
		}
	}()
	go func() {
		defer c.wg.Done()
		// Consume returns on every rebalance and has to be called again
		for c.ctx.Err() == nil {
			if err := client.Consume(c.ctx, []string{cfg.Topic}, c); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				log.Ctx(c.ctx).Error().Msgf("consume failed, topic: %s, err: %v", cfg.Topic, err)
			}
		}
	}()

	select {
	case <-c.ready:
	case <-c.ctx.Done():
		_ = c.Close()
		return nil, ctx.Err()
	}

	log.Ctx(c.ctx).Info().Msgf("consumer joined group %s, topic: %s", cfg.ConsumerGroup, cfg.Topic)

	return c, nil
}

func (c *Consumer) Close() error {
	c.cancel()
	err := c.client.Close()
	c.wg.Wait()
	return err
}

func (c *Consumer) Setup(_ sarama.ConsumerGroupSession) error {
	c.readyOnce.Do(func() {
		close(c.ready)
	})
	return nil
}

func (c *Consumer) Cleanup(_ sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim handles messages one at a time so that events sharing a
// partition key are applied in order.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case consumerMessage, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			ctx := log.With().Str("log_id", uuid.NewString()).Logger().WithContext(c.ctx)

			start := time.Now()
			err := handleValue(ctx, consumerMessage.Value)
			if err != nil {
				log.Ctx(ctx).Error().Msgf("handle message failed, topic: %s, partition: %d, offset: %d, err: %v",
					consumerMessage.Topic, consumerMessage.Partition, consumerMessage.Offset, err)
			} else {
				log.Ctx(ctx).Debug().Msgf("message handled, topic: %s, partition: %d, offset: %d, latency: %v",
					consumerMessage.Topic, consumerMessage.Partition, consumerMessage.Offset, time.Since(start))
			}

			// failed messages are not redelivered; handlers retry what is retryable themselves
			session.MarkMessage(consumerMessage, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func handleValue(ctx context.Context, value []byte) error {
	msg := new(Message)
	if err := json.Unmarshal(value, msg); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}

	fn := getHandlerFunc(msg.Payload)
	if fn == nil {
		return fmt.Errorf("%w: no handler for payload %d", ErrUnsupportedPayload, msg.Payload)
	}

	return fn(ctx, msg)
}
