// Package events publishes committed cart mutations to Kafka.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/kart-cart/internal/domain/cart"
)

// HeaderEventType carries the cart.EventType of a message.
const HeaderEventType = "event-type"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ cart.Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher writes cart events to a topic keyed by user id, so all events
// of one cart land on the same partition in commit order.
type KafkaPublisher struct {
	w messageWriter
}

// Config describes the Kafka destination.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// NewKafkaPublisher creates a publisher backed by a kafka.Writer.
func NewKafkaPublisher(cfg Config) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: true,
	}}
}

// Publish encodes ev and writes it synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, ev cart.Event) error {
	msg := kafka.Message{
		Key:   []byte(ev.UserID),
		Value: Encode(ev),
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(ev.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "write %s", ev.Type)
	}
	return nil
}

// Close flushes pending messages and releases the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// Encode renders ev as a JSON object.
func Encode(ev cart.Event) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("type")
	e.Str(string(ev.Type))
	e.FieldStart("cartId")
	e.Str(ev.CartID)
	e.FieldStart("userId")
	e.Str(ev.UserID)
	if ev.ProductID != "" {
		e.FieldStart("productId")
		e.Str(ev.ProductID)
	}
	if ev.Quantity > 0 {
		e.FieldStart("quantity")
		e.Int(ev.Quantity)
	}
	if ev.CouponID != "" {
		e.FieldStart("couponId")
		e.Str(ev.CouponID)
	}
	e.FieldStart("couponRemoved")
	e.Bool(ev.CouponRemoved)
	e.FieldStart("occurredAt")
	e.Str(ev.OccurredAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()

	return append([]byte(nil), e.Bytes()...)
}

// Decode parses a payload produced by Encode.
func Decode(data []byte) (cart.Event, error) {
	var ev cart.Event
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "type":
			s, err := d.Str()
			ev.Type = cart.EventType(s)
			return err
		case "cartId":
			s, err := d.Str()
			ev.CartID = s
			return err
		case "userId":
			s, err := d.Str()
			ev.UserID = s
			return err
		case "productId":
			s, err := d.Str()
			ev.ProductID = s
			return err
		case "quantity":
			n, err := d.Int()
			ev.Quantity = n
			return err
		case "couponId":
			s, err := d.Str()
			ev.CouponID = s
			return err
		case "couponRemoved":
			b, err := d.Bool()
			ev.CouponRemoved = b
			return err
		case "occurredAt":
			s, err := d.Str()
			if err != nil {
				return err
			}
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return errors.Wrap(err, "occurredAt")
			}
			ev.OccurredAt = t
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return cart.Event{}, errors.Wrap(err, "decode cart event")
	}
	return ev, nil
}
