package eventbus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/d60-Lab/socialgraph/pkg/logger"
)

type NatsConfig struct {
	URL           string
	Stream        string
	SubjectPrefix string
	AckWait       time.Duration
	// MaxInflight 每个 consumer 同时未确认的消息数上限
	MaxInflight int
}

// NatsBus JetStream 总线：一个 stream 覆盖 <prefix>.>，每个 (group, topic) 一个 durable consumer
type NatsBus struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	cfg NatsConfig
}

func NewNatsBus(ctx context.Context, cfg NatsConfig) (*NatsBus, error) {
	if cfg.AckWait <= 0 {
		cfg.AckWait = time.Minute
	}
	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = 32
	}
	nc, err := nats.Connect(cfg.URL, nats.Name("socialgraph"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(sctx, jetstream.StreamConfig{
		Name:       cfg.Stream,
		Subjects:   []string{cfg.SubjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create stream %s: %w", cfg.Stream, err)
	}
	return &NatsBus{nc: nc, js: js, cfg: cfg}, nil
}

func (b *NatsBus) subject(topic string) string { return b.cfg.SubjectPrefix + "." + topic }

// Publish 以消息 UUID 作为 Nats-Msg-Id，服务端在窗口内去重
func (b *NatsBus) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		m := nats.NewMsg(b.subject(topic))
		m.Data = msg.Payload
		for k, v := range msg.Metadata {
			m.Header.Set(k, v)
		}
		if _, err := b.js.PublishMsg(msg.Context(), m, jetstream.WithMsgID(msg.UUID)); err != nil {
			return fmt.Errorf("nats publish %s: %w", topic, err)
		}
	}
	return nil
}

func (b *NatsBus) Subscriber(group string) message.Subscriber {
	return &natsSubscriber{bus: b, group: group}
}

func (b *NatsBus) Close() error {
	return b.nc.Drain()
}

type natsSubscriber struct {
	bus   *NatsBus
	group string
}

// durable 名称不能包含 '.'
func durableName(group, topic string) string {
	return strings.NewReplacer(".", "_", " ", "_").Replace(group + "_" + topic)
}

func (s *natsSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	cons, err := s.bus.js.CreateOrUpdateConsumer(ctx, s.bus.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       durableName(s.group, topic),
		FilterSubject: s.bus.subject(topic),
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckWait:       s.bus.cfg.AckWait,
		MaxAckPending: s.bus.cfg.MaxInflight,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer %s/%s: %w", s.group, topic, err)
	}

	out := make(chan *message.Message)
	var (
		mu       sync.RWMutex
		closed   bool
		inflight sync.WaitGroup
	)
	// 每条消息独立等待 Ack，回调本身不阻塞在 handler 上；sem 限制并发
	sem := make(chan struct{}, s.bus.cfg.MaxInflight)
	cc, err := cons.Consume(func(m jetstream.Msg) {
		mu.RLock()
		if closed {
			mu.RUnlock()
			_ = m.Nak()
			return
		}
		inflight.Add(1)
		mu.RUnlock()

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			_ = m.Nak()
			inflight.Done()
			return
		}
		go func() {
			defer func() {
				<-sem
				inflight.Done()
			}()
			s.deliver(ctx, out, topic, m)
		}()
	}, jetstream.PullMaxMessages(s.bus.cfg.MaxInflight))
	if err != nil {
		return nil, fmt.Errorf("nats consume %s/%s: %w", s.group, topic, err)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
		mu.Lock()
		closed = true
		mu.Unlock()
		inflight.Wait()
		close(out)
	}()
	return out, nil
}

// deliver 把一条 JetStream 消息交给消费者并等待 Ack / Nack
func (s *natsSubscriber) deliver(ctx context.Context, out chan<- *message.Message, topic string, m jetstream.Msg) {
	id := m.Headers().Get(nats.MsgIdHdr)
	if id == "" {
		id = uuid.NewString()
	}
	msg := message.NewMessage(id, m.Data())
	for k := range m.Headers() {
		msg.Metadata.Set(k, m.Headers().Get(k))
	}
	msg.SetContext(ctx)

	select {
	case out <- msg:
	case <-ctx.Done():
		_ = m.Nak()
		return
	}
	select {
	case <-msg.Acked():
		if err := m.Ack(); err != nil {
			logger.Warn("nats ack failed", zap.String("topic", topic), zap.Error(err))
		}
	case <-msg.Nacked():
		_ = m.Nak()
	case <-ctx.Done():
		_ = m.Nak()
	}
}

func (s *natsSubscriber) Close() error { return nil }
