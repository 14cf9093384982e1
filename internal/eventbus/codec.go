// Package eventbus carries domain events over watermill publishers and
// subscribers. Payloads are the JSON wire shape of model.Event; the topic is
// the channel named by the action type.
package eventbus

import (
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/d60-Lab/socialgraph/internal/model"
)

// MetaAction 消息元数据中的事件类型
const MetaAction = "action_type"

var validate = validator.New()

func init() {
	// POST_DELETED 只需要 postId
	validate.RegisterStructValidation(func(sl validator.StructLevel) {
		ev := sl.Current().Interface().(model.Event)
		if ev.Username == "" && ev.ActionType != model.ActionPostDeleted {
			sl.ReportError(ev.Username, "Username", "username", "required", "")
		}
	}, model.Event{})
}

// Encode builds a watermill message for a domain event.
func Encode(ev model.DomainEvent) (*message.Message, error) {
	payload, err := json.Marshal(model.FromDomain(ev))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Action(), err)
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set(MetaAction, string(ev.Action()))
	return msg, nil
}

// Decode parses and validates a payload into the closed event union.
// It returns model.ErrMalformed or model.ErrUnknownAction for payloads a
// redelivery can never fix.
func Decode(payload []byte) (model.DomainEvent, error) {
	var ev model.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformed, err)
	}
	if err := validate.Struct(ev); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformed, err)
	}
	return ev.ToDomain()
}
