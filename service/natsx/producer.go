package natsx

import (
	"context"

	"PPAdmin/tools/errs"

	"github.com/nats-io/nats.go"
)

// HeaderKey carries the partition key (room id) of a published event.
const HeaderKey = "Msg-Key"

// Conn is the part of *nats.Conn the producer needs.
type Conn interface {
	PublishMsg(m *nats.Msg) error
	Drain() error
}

// NatsxProducer 把领域事件发到固定 subject
type NatsxProducer struct {
	nc      Conn
	subject string
}

func NewNatsxProducer(nc Conn, subject string) *NatsxProducer {
	return &NatsxProducer{nc: nc, subject: subject}
}

func (p *NatsxProducer) Publish(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err)
	}
	msg := nats.NewMsg(p.subject)
	msg.Data = data
	if key != "" {
		msg.Header.Set(HeaderKey, key)
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		return errs.WrapMsg(err, "nats publish", "subject", p.subject)
	}
	return nil
}

func (p *NatsxProducer) Close() error {
	return p.nc.Drain()
}
