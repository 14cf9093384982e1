package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/d60-Lab/socialgraph/config"
	"github.com/d60-Lab/socialgraph/pkg/logger"
)

// Bus is a publisher plus per-group subscribers. Every group receives every
// message of the topics it subscribes to; within a group each message is
// handled once (modulo redelivery).
type Bus interface {
	message.Publisher
	Subscriber(group string) message.Subscriber
}

// Open 按 bus.driver 创建总线
func Open(ctx context.Context, cfg config.BusConfig) (Bus, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryBus(), nil
	case "nats":
		return NewNatsBus(ctx, NatsConfig{
			URL:           cfg.NatsURL,
			Stream:        cfg.NatsStream,
			SubjectPrefix: cfg.NatsSubjectPrefix,
			MaxInflight:   cfg.Prefetch,
		})
	case "amqp":
		return NewAMQPBus(cfg.AMQPURL, cfg.AMQPExchange, cfg.Prefetch)
	}
	return nil, fmt.Errorf("unsupported bus driver %q", cfg.Driver)
}

// MemoryBus 进程内总线（watermill gochannel）
//
// gochannel 对每个订阅逐条投递，上一条 Ack 之后才发下一条。
// memorySubscriber 收到消息即向 gochannel 确认，改由自己在本组内重投，
// 同一 topic 的消息因此可以并发处理。进程退出时未处理完的消息丢失。
type MemoryBus struct {
	*gochannel.GoChannel
	maxInflight int
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		GoChannel: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			NewZapAdapter(logger.L()),
		),
		maxInflight: 64,
	}
}

// Subscriber 每次 Subscribe 都是 gochannel 上一个独立的扇出订阅，组之间互不抢消息
func (b *MemoryBus) Subscriber(string) message.Subscriber {
	return &memorySubscriber{gc: b.GoChannel, maxInflight: b.maxInflight}
}

type memorySubscriber struct {
	gc          *gochannel.GoChannel
	maxInflight int
}

func (s *memorySubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	in, err := s.gc.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	out := make(chan *message.Message)
	sem := make(chan struct{}, s.maxInflight)
	go func() {
		var inflight sync.WaitGroup
		defer func() {
			inflight.Wait()
			close(out)
		}()
		for msg := range in {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				msg.Nack()
				return
			}
			inflight.Add(1)
			go func(msg *message.Message) {
				defer func() {
					<-sem
					inflight.Done()
				}()
				redeliver(ctx, out, msg)
			}(msg)
			msg.Ack()
		}
	}()
	return out, nil
}

func (s *memorySubscriber) Close() error { return nil }

// redeliver 投递 orig 的副本直到被 Ack；Nack 后立即重投
func redeliver(ctx context.Context, out chan<- *message.Message, orig *message.Message) {
	for {
		msg := orig.Copy()
		msg.SetContext(ctx)
		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
		select {
		case <-msg.Acked():
			return
		case <-msg.Nacked():
		case <-ctx.Done():
			return
		}
	}
}
