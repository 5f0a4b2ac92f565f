package kafka

import (
	"context"

	"PPAdmin/tools/errs"

	"github.com/Shopify/sarama"
)

// Producer sends domain events to one topic, keyed so that all events of a
// room land on the same partition.
type Producer struct {
	p     sarama.SyncProducer
	topic string
}

func NewProducer(c Config) (*Producer, error) {
	if len(c.Brokers) == 0 {
		return nil, errs.ErrArgs.WrapMsg("kafka brokers missing")
	}
	p, err := sarama.NewSyncProducer(c.Brokers, BuildBaseConfig(c))
	if err != nil {
		return nil, errs.WrapMsg(err, "kafka producer", "topic", c.Topic)
	}
	return NewProducerFrom(p, c.Topic), nil
}

func NewProducerFrom(p sarama.SyncProducer, topic string) *Producer {
	return &Producer{p: p, topic: topic}
}

func (k *Producer) Publish(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err)
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Value: sarama.ByteEncoder(data),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	if _, _, err := k.p.SendMessage(msg); err != nil {
		return errs.WrapMsg(err, "kafka send", "topic", k.topic)
	}
	return nil
}

func (k *Producer) Close() error {
	return k.p.Close()
}
