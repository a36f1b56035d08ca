package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler regenerates the thumbnails of one post.
type Handler func(ctx context.Context, postID string) error

// Producer schedules thumbnail regeneration for a post.
type Producer interface {
	Enqueue(ctx context.Context, postID string) error
	// Async reports whether Enqueue returns before the job has run.
	Async() bool
	Close() error
}

type KafkaProducer struct {
	w *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	return &KafkaProducer{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaProducer) Enqueue(ctx context.Context, postID string) error {
	const op = "queue.Enqueue"

	err := p.w.WriteMessages(ctx, kafka.Message{Key: []byte(postID), Value: []byte(postID)})
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}

func (p *KafkaProducer) Async() bool { return true }

func (p *KafkaProducer) Close() error {
	return p.w.Close()
}

// Inline runs the handler in the caller's goroutine. It stands in for Kafka
// when no brokers are configured.
type Inline struct {
	Handle Handler
}

func (p Inline) Enqueue(ctx context.Context, postID string) error {
	return p.Handle(ctx, postID)
}

func (Inline) Async() bool  { return false }
func (Inline) Close() error { return nil }

type reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer reads post ids from Kafka and hands each one to a Handler.
type Consumer struct {
	r       reader
	handle  Handler
	timeout time.Duration
	log     *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, timeout time.Duration, handle Handler, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	return newConsumer(r, timeout, handle, log)
}

func newConsumer(r reader, timeout time.Duration, handle Handler, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{r: r, handle: handle, timeout: timeout, log: log}
}

// Run blocks until ctx is canceled. Handler failures are logged and the
// message is committed anyway so one broken post cannot stall the topic.
func (c *Consumer) Run(ctx context.Context) {
	for {
		msg, err := c.r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			c.log.Error("read message", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		postID := string(msg.Value)
		if err := c.process(ctx, postID); err != nil {
			c.log.Error("regenerate thumbnails",
				zap.String("post_id", postID), zap.Int64("offset", msg.Offset), zap.Error(err))
			continue
		}
		c.log.Info("thumbnails regenerated", zap.String("post_id", postID))
	}
}

func (c *Consumer) process(ctx context.Context, postID string) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.handle(ctx, postID)
}

func (c *Consumer) Close() error {
	return c.r.Close()
}
