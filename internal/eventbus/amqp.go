package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/d60-Lab/socialgraph/pkg/logger"
)

// AMQPBus RabbitMQ 总线：topic exchange，routing key 为频道名，每个 (group, topic) 一个持久队列
type AMQPBus struct {
	conn     *amqp.Connection
	exchange string
	prefetch int

	mu    sync.Mutex
	pubCh *amqp.Channel
}

func NewAMQPBus(url, exchange string, prefetch int) (*AMQPBus, error) {
	if prefetch <= 0 {
		prefetch = 16
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPBus{conn: conn, exchange: exchange, prefetch: prefetch, pubCh: ch}, nil
}

func (b *AMQPBus) Publish(topic string, messages ...*message.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, msg := range messages {
		headers := amqp.Table{}
		for k, v := range msg.Metadata {
			headers[k] = v
		}
		err := b.pubCh.PublishWithContext(msg.Context(), b.exchange, topic, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.UUID,
			Timestamp:    time.Now(),
			Headers:      headers,
			Body:         msg.Payload,
		})
		if err != nil {
			return fmt.Errorf("amqp publish %s: %w", topic, err)
		}
	}
	return nil
}

func (b *AMQPBus) Subscriber(group string) message.Subscriber {
	return &amqpSubscriber{bus: b, group: group}
}

func (b *AMQPBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.pubCh.Close()
	return b.conn.Close()
}

type amqpSubscriber struct {
	bus   *AMQPBus
	group string
}

func (s *amqpSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ch, err := s.bus.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.Qos(s.bus.prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("amqp qos: %w", err)
	}
	queue := s.group + "." + topic
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, topic, s.bus.exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("bind queue %s: %w", queue, err)
	}
	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}

	out := make(chan *message.Message)
	go func() {
		var inflight sync.WaitGroup
		defer func() {
			inflight.Wait()
			_ = ch.Close()
			close(out)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				inflight.Add(1)
				go func(d amqp.Delivery) {
					defer inflight.Done()
					s.deliver(ctx, out, d)
				}(d)
			}
		}
	}()
	return out, nil
}

// deliver 把一条投递交给消费者并等待 Ack / Nack；Nack 重新入队
func (s *amqpSubscriber) deliver(ctx context.Context, out chan<- *message.Message, d amqp.Delivery) {
	id := d.MessageId
	if id == "" {
		id = uuid.NewString()
	}
	msg := message.NewMessage(id, d.Body)
	for k, v := range d.Headers {
		msg.Metadata.Set(k, fmt.Sprint(v))
	}
	msg.SetContext(ctx)

	select {
	case out <- msg:
	case <-ctx.Done():
		_ = d.Nack(false, true)
		return
	}
	select {
	case <-msg.Acked():
		if err := d.Ack(false); err != nil {
			logger.Warn("amqp ack failed", zap.String("queue", s.group), zap.Error(err))
		}
	case <-msg.Nacked():
		_ = d.Nack(false, true)
	case <-ctx.Done():
		_ = d.Nack(false, true)
	}
}

func (s *amqpSubscriber) Close() error { return nil }
