package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/d60-Lab/socialgraph/internal/apperr"
	"github.com/d60-Lab/socialgraph/internal/model"
	"github.com/d60-Lab/socialgraph/pkg/logger"
)

// Handler 处理一条已解码的领域事件；返回错误时消息会被 Nack 并重投
type Handler interface {
	Handle(ctx context.Context, ev model.DomainEvent) error
}

type HandlerFunc func(ctx context.Context, ev model.DomainEvent) error

func (f HandlerFunc) Handle(ctx context.Context, ev model.DomainEvent) error { return f(ctx, ev) }

type DispatcherConfig struct {
	Group          string
	Actions        []model.ActionType
	Workers        int
	HandlerTimeout time.Duration
	RetryDelay     time.Duration
}

// Dispatcher 订阅一组频道，用固定数量的 worker 处理消息
// 处理成功后 Ack；失败则等待 RetryDelay 后 Nack，由总线重投
type Dispatcher struct {
	sub     message.Subscriber
	handler Handler
	cfg     DispatcherConfig
	tracer  trace.Tracer

	metricsCh chan time.Duration // published -> acked latency
	handled   atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func NewDispatcher(sub message.Subscriber, handler Handler, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}
	if len(cfg.Actions) == 0 {
		cfg.Actions = model.AllActions()
	}
	return &Dispatcher{
		sub:       sub,
		handler:   handler,
		cfg:       cfg,
		tracer:    otel.Tracer("socialgraph/eventbus"),
		metricsCh: make(chan time.Duration, 65536),
	}
}

// Metrics 返回消息从发布到 Ack 的耗时（每 Ack 一条发送一次，满了丢弃）
func (d *Dispatcher) Metrics() <-chan time.Duration { return d.metricsCh }

// Stats returns handled, failed (nacked) and dropped (undecodable) counts.
func (d *Dispatcher) Stats() (handled, failed, dropped int64) {
	return d.handled.Load(), d.failed.Load(), d.dropped.Load()
}

// Start 订阅所有频道并启动 worker；返回停止函数
// 停止时不再接收新消息，等待进行中的 handler 结束
func (d *Dispatcher) Start(ctx context.Context) (func(context.Context) error, error) {
	runCtx, cancel := context.WithCancel(ctx)
	jobs := make(chan *message.Message)

	var pumps sync.WaitGroup
	for _, action := range d.cfg.Actions {
		ch, err := d.sub.Subscribe(runCtx, action.Channel())
		if err != nil {
			cancel()
			return nil, fmt.Errorf("subscribe %s/%s: %w", d.cfg.Group, action.Channel(), err)
		}
		pumps.Add(1)
		go func() {
			defer pumps.Done()
			for msg := range ch {
				select {
				case jobs <- msg:
				case <-runCtx.Done():
					msg.Nack()
					return
				}
			}
		}()
	}
	go func() {
		pumps.Wait()
		close(jobs)
	}()

	var workers sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for msg := range jobs {
				d.process(runCtx, msg)
			}
		}()
	}
	logger.Info("dispatcher started",
		zap.String("group", d.cfg.Group),
		zap.Int("workers", d.cfg.Workers),
		zap.Int("channels", len(d.cfg.Actions)))

	return func(stopCtx context.Context) error {
		cancel()
		done := make(chan struct{})
		go func() {
			workers.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-stopCtx.Done():
			return stopCtx.Err()
		}
	}, nil
}

func (d *Dispatcher) process(runCtx context.Context, msg *message.Message) {
	ev, err := Decode(msg.Payload)
	if err != nil {
		// 重投也无法修复，记录后确认
		d.dropped.Add(1)
		logger.Warn("drop undeliverable event",
			zap.String("group", d.cfg.Group),
			zap.String("message_id", msg.UUID),
			zap.Error(err))
		msg.Ack()
		return
	}

	// handler 不随停止信号中断，只受超时约束
	base := otel.GetTextMapPropagator().Extract(context.WithoutCancel(runCtx), propagation.MapCarrier(msg.Metadata))
	ctx, span := d.tracer.Start(base, "handle "+ev.Action().Channel(),
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.consumer.group", d.cfg.Group),
			attribute.String("messaging.message.id", msg.UUID),
		))
	defer span.End()

	hctx, cancel := context.WithTimeout(ctx, d.cfg.HandlerTimeout)
	err = d.handler.Handle(hctx, ev)
	cancel()
	if err != nil {
		d.failed.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		user, post := model.Subject(ev)
		logger.Warn("event handler failed, will redeliver",
			zap.String("group", d.cfg.Group),
			zap.String("action", string(ev.Action())),
			zap.String("user", user),
			zap.String("post", post),
			zap.String("message_id", msg.UUID),
			zap.Error(err))
		if !errors.Is(err, apperr.ErrStoreUnavailable) {
			sentry.CaptureException(err)
		}
		if d.cfg.RetryDelay > 0 {
			select {
			case <-time.After(d.cfg.RetryDelay):
			case <-runCtx.Done():
			}
		}
		msg.Nack()
		return
	}

	d.handled.Add(1)
	msg.Ack()
	if ts, perr := time.Parse(time.RFC3339Nano, msg.Metadata.Get("published_at")); perr == nil {
		select {
		case d.metricsCh <- time.Since(ts):
		default:
		}
	}
}
