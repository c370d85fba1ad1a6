package application

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"

	"github.com/cloudrig/CloudRIG/internal/domain"
)

// Handler selects which workflow a trigger event starts.
type Handler string

const (
	HandlerInterruption Handler = "interruption"
	HandlerImageReady   Handler = "image-ready"
	HandlerSaveState    Handler = "save-state"
)

// TriggerEvent is the event delivered by the subscription. ImageID is
// set by callers that want the readiness check to target one image.
type TriggerEvent struct {
	events.CloudWatchEvent
	ImageID string `json:"imageId,omitempty"`
}

// instanceDetail is the detail payload of interruption warnings and
// instance state changes.
type instanceDetail struct {
	InstanceID string `json:"instance-id"`
}

// Handle decodes raw and runs the workflow selected by handler.
func (s *LifecycleService) Handle(ctx context.Context, handler Handler, raw json.RawMessage) (domain.Result, error) {
	var ev TriggerEvent
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &ev); err != nil {
			return domain.Result{Outcome: domain.OutcomeFailed}, fmt.Errorf("%w: decode event: %v", domain.ErrInvalidArgument, err)
		}
	}
	s.logger().Debug("received event", "handler", handler, "source", ev.Source, "detail_type", ev.DetailType, "event_id", ev.ID)

	switch handler {
	case HandlerInterruption:
		instance, err := ev.instance()
		if err != nil {
			return domain.Result{Outcome: domain.OutcomeFailed}, err
		}
		return s.Interrupt(ctx, instance)
	case HandlerImageReady:
		return s.CheckReadiness(ctx, domain.ImageID(ev.ImageID))
	case HandlerSaveState:
		instance, err := ev.instance()
		if err != nil {
			return domain.Result{Outcome: domain.OutcomeFailed}, err
		}
		return s.SaveState(ctx, instance)
	default:
		return domain.Result{Outcome: domain.OutcomeFailed}, fmt.Errorf("%w: unknown handler %q", domain.ErrInvalidArgument, handler)
	}
}

func (ev TriggerEvent) instance() (domain.InstanceID, error) {
	var d instanceDetail
	if len(ev.Detail) > 0 {
		if err := json.Unmarshal(ev.Detail, &d); err != nil {
			return "", fmt.Errorf("%w: decode event detail: %v", domain.ErrInvalidArgument, err)
		}
	}
	if d.InstanceID == "" {
		return "", fmt.Errorf("%w: event detail has no instance-id", domain.ErrInvalidArgument)
	}
	return domain.InstanceID(d.InstanceID), nil
}
