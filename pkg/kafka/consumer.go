package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Shopify/sarama"

	"github.com/vaidashi/fulfillment-tracker/pkg/logger"
)

// MessageHandler processes one record of a subscribed topic
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error
}

// MessageHandlerFunc adapts a function to MessageHandler
type MessageHandlerFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

// HandleMessage calls f
func (f MessageHandlerFunc) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	return f(ctx, msg)
}

// Consumer routes the records of a consumer group to per-topic handlers
type Consumer struct {
	group         sarama.ConsumerGroup
	topics        []string
	handlers      map[string]MessageHandler
	logger        logger.Logger
	rejoinBackoff time.Duration
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// ConsumerConfig is the configuration for the Kafka consumer
type ConsumerConfig struct {
	Brokers       []string
	Topics        []string
	ConsumerGroup string
	ClientID      string
}

// NewConsumer joins cfg.ConsumerGroup on the given brokers, reading from the oldest offset
func NewConsumer(cfg *ConsumerConfig, logger logger.Logger) (*Consumer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.ClientID = cfg.ClientID
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaCfg)

	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return NewConsumerFromGroup(group, cfg.Topics, logger), nil
}

// NewConsumerFromGroup wraps an existing consumer group
func NewConsumerFromGroup(group sarama.ConsumerGroup, topics []string, logger logger.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		group:         group,
		topics:        topics,
		handlers:      make(map[string]MessageHandler),
		logger:        logger,
		rejoinBackoff: 2 * time.Second,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// RegisterHandler routes records of topic to handler. Register before Start.
func (c *Consumer) RegisterHandler(topic string, handler MessageHandler) {
	c.handlers[topic] = handler
}

// Start joins the consumer group in the background and rejoins after every rebalance
func (c *Consumer) Start() error {
	if len(c.topics) == 0 {
		return errors.New("no topics to consume")
	}

	c.wg.Add(2)
	go c.consumeLoop()
	go c.errorLoop()

	c.logger.Info("Kafka consumer started", "topics", c.topics)
	return nil
}

func (c *Consumer) consumeLoop() {
	defer c.wg.Done()

	for c.ctx.Err() == nil {
		err := c.group.Consume(c.ctx, c.topics, c)

		if err == nil || c.ctx.Err() != nil {
			continue
		}

		c.logger.Error("Kafka consumer error", "error", err)

		select {
		case <-c.ctx.Done():
		case <-time.After(c.rejoinBackoff):
			c.logger.Info("Rejoining consumer group")
		}
	}
}

func (c *Consumer) errorLoop() {
	defer c.wg.Done()

	errs := c.group.Errors()

	for {
		select {
		case err, ok := <-errs:
			if !ok {
				return
			}
			c.logger.Warn("Kafka consumer group error", "error", err)
		case <-c.ctx.Done():
			return
		}
	}
}

// Stop leaves the consumer group and waits for the background loops
func (c *Consumer) Stop() error {
	c.cancel()
	c.wg.Wait()
	return c.group.Close()
}

// Setup is part of sarama.ConsumerGroupHandler
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup is part of sarama.ConsumerGroupHandler
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim dispatches each record to the handler registered for its topic.
// Records whose handler fails stay unmarked and are redelivered.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			c.dispatch(session, msg)
		case <-session.Context().Done():
			return nil
		case <-c.ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) dispatch(session sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) {
	where := []interface{}{"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset}
	c.logger.Debug("Received message from Kafka", append(where, "key", string(msg.Key))...)

	handler, ok := c.handlers[msg.Topic]

	if !ok {
		c.logger.Warn("No handler registered for topic", where...)
		session.MarkMessage(msg, "")
		return
	}

	if err := handler.HandleMessage(session.Context(), msg); err != nil {
		c.logger.Error("Error handling message", append(where, "error", err)...)
		return
	}

	session.MarkMessage(msg, "")
}
