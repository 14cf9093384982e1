package eventbus

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/d60-Lab/socialgraph/internal/model"
)

// Publisher 把领域事件发布到以 action type 命名的频道
type Publisher struct {
	pub message.Publisher
	now func() time.Time
}

func NewPublisher(pub message.Publisher) *Publisher {
	return &Publisher{pub: pub, now: time.Now}
}

// Publish sends exactly one message for ev. The caller's trace context
// travels in the message metadata.
func (p *Publisher) Publish(ctx context.Context, ev model.DomainEvent) error {
	msg, err := Encode(ev)
	if err != nil {
		return err
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Metadata))
	msg.Metadata.Set("published_at", p.now().UTC().Format(time.RFC3339Nano))
	msg.SetContext(ctx)
	return p.pub.Publish(ev.Action().Channel(), msg)
}
