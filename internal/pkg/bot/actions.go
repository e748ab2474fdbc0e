package bot

import (
	"fmt"
	"strings"
)

// Kind names one of the callback actions the bot understands. The set is
// closed: callback data that does not decode into one of these kinds is
// rejected before any handler runs.
type Kind string

const (
	// KindChoosePlan carries the selected periodicity as payload.
	KindChoosePlan Kind = "plan"
	// KindCancel asks for cancellation of the current subscription.
	KindCancel Kind = "cancel"
	// KindShowStatus re-renders the subscription status.
	KindShowStatus Kind = "status"
)

// Action is one decoded callback. Payload is empty for kinds that carry none.
type Action struct {
	Kind    Kind
	Payload string
}

// Encode renders the action as callback data. Telegram limits callback data
// to 64 bytes, which the closed action set stays well under.
func (a Action) Encode() string {
	if a.Payload == "" {
		return string(a.Kind)
	}
	return string(a.Kind) + ":" + a.Payload
}

// ParseAction decodes callback data into a known action.
func ParseAction(data string) (Action, error) {
	kind, payload, _ := strings.Cut(data, ":")

	switch Kind(kind) {
	case KindChoosePlan:
		if payload == "" {
			return Action{}, fmt.Errorf("plan action without periodicity")
		}
		return Action{Kind: KindChoosePlan, Payload: payload}, nil
	case KindCancel:
		return Action{Kind: KindCancel}, nil
	case KindShowStatus:
		return Action{Kind: KindShowStatus}, nil
	default:
		return Action{}, fmt.Errorf("unknown callback action %q", data)
	}
}
