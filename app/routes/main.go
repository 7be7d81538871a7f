package routes

import (
	"context"

	"github.com/atrilabs/atri-runtime/pkg/state"
)

// InitState is called whenever a client loads this route. h holds the
// initial values set in the visual editor; changing them changes the
// initial state of the page.
func InitState(ctx context.Context, h *state.Handle) error {
	return nil
}

// HandleEvent is called whenever an event is received, for example when
// the user clicks a button.
func HandleEvent(ctx context.Context, h *state.Handle) error {
	return nil
}
