package routes

import (
	"context"
	"fmt"
	"strings"

	pkgroutes "github.com/atrilabs/atri-runtime/pkg/routes"
	"github.com/atrilabs/atri-runtime/pkg/state"
)

// Counter events.
const (
	EventIncrement = "increment"
	EventDecrement = "decrement"
	EventReset     = "reset"
	EventSetTitle  = "set_title"
)

const maxTitleLen = 80

// Counter returns the counter demo route. Its state holds "count", the
// "step" added by increment and decrement, and a "title".
func Counter() pkgroutes.Route {
	return pkgroutes.Route{
		Path: "/counter",
		Defaults: state.Map{
			"count": state.Int(0),
			"step":  state.Int(1),
			"title": state.String("Counter"),
		},
		Init:  counterInit,
		Event: counterEvent,
	}
}

// counterInit starts the count at "start" when the editor sets one.
func counterInit(ctx context.Context, h *state.Handle) error {
	if start, ok := h.Get("start"); ok {
		n, ok := start.AsNumber()
		if !ok {
			return fmt.Errorf("start must be a number, got %s", start.Kind())
		}
		h.Set("count", state.Number(n))
		h.Delete("start")
	}
	return nil
}

func counterEvent(ctx context.Context, h *state.Handle) error {
	ev, _ := h.Event()
	switch ev.Type {
	case EventIncrement:
		return add(h, 1)
	case EventDecrement:
		return add(h, -1)
	case EventReset:
		h.Set("count", state.Int(0))
	case EventSetTitle:
		title, ok := ev.Payload.AsString()
		if !ok {
			return fmt.Errorf("set_title wants a string payload, got %s", ev.Payload.Kind())
		}
		title = strings.TrimSpace(title)
		if title == "" || len(title) > maxTitleLen {
			return fmt.Errorf("title must be 1 to %d characters", maxTitleLen)
		}
		h.Set("title", state.String(title))
	default:
		return fmt.Errorf("unknown event %q", ev.Type)
	}
	return nil
}

// add moves the count by sign times the step. A numeric payload overrides
// the step for one event.
func add(h *state.Handle, sign float64) error {
	count, _ := h.Get("count")
	n, ok := count.AsNumber()
	if !ok {
		return fmt.Errorf("count is %s, not a number", count.Kind())
	}
	stepValue, _ := h.Get("step")
	step, ok := stepValue.AsNumber()
	if !ok {
		step = 1
	}
	ev, _ := h.Event()
	if p, ok := ev.Payload.AsNumber(); ok {
		step = p
	}
	h.Set("count", state.Number(n+sign*step))
	return nil
}
