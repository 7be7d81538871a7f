package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/atrilabs/atri-runtime/pkg/client"
	"github.com/atrilabs/atri-runtime/pkg/state"
)

func probeCmd() *cobra.Command {
	var (
		url     string
		route   string
		events  []string
		timeout time.Duration
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Open a session, send events and print the resulting state",
		Long: `Open a session on a running server, send events in order and print
the state once every event was answered.

Events are given as type or type=<json payload>.

Examples:
  atri probe --route /counter
  atri probe --route /counter --event increment --event 'increment=5'
  atri probe --url ws://prod:8080/ws --route /counter --event 'set_title="Votes"'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := make([]probeEvent, 0, len(events))
			for _, e := range events {
				ev, err := parseEvent(e)
				if err != nil {
					return err
				}
				parsed = append(parsed, ev)
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			if verbose {
				logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
			}
			st, err := probe(ctx, client.Options{
				URL:              url,
				Route:            route,
				DisableReconnect: true,
				Logger:           logger,
			}, parsed)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}

	cmd.Flags().StringVar(&url, "url", "ws://localhost:8080/ws", "WebSocket endpoint")
	cmd.Flags().StringVarP(&route, "route", "r", "/", "Route to open")
	cmd.Flags().StringArrayVarP(&events, "event", "e", nil, "Event to send, as type or type=<json payload> (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Overall timeout")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log connection details")

	return cmd
}

type probeEvent struct {
	Type    string
	Payload state.Value
}

func parseEvent(s string) (probeEvent, error) {
	name, raw, hasPayload := strings.Cut(s, "=")
	if name == "" {
		return probeEvent{}, fmt.Errorf("event %q has no type", s)
	}
	ev := probeEvent{Type: name}
	if hasPayload {
		if err := json.Unmarshal([]byte(raw), &ev.Payload); err != nil {
			return probeEvent{}, fmt.Errorf("event %q: payload is not JSON: %w", s, err)
		}
	}
	return ev, nil
}

// probe sends events one at a time, waiting for each to be answered by a
// delta or an error, and returns the final state. An event that leaves the
// state unchanged produces no message and is detected by the timeout.
func probe(ctx context.Context, opts client.Options, events []probeEvent) (state.Map, error) {
	c, err := client.Dial(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	updates := c.Updates()
	<-updates // snapshot

	for _, ev := range events {
		if err := c.Send(ev.Type, ev.Payload); err != nil {
			return nil, err
		}
		select {
		case u, ok := <-updates:
			if !ok {
				return nil, c.Err()
			}
			if u.Err != nil {
				fmt.Fprintf(os.Stderr, "%s: %s\n", ev.Type, u.Err.Message)
			}
		case <-ctx.Done():
			return nil, fmt.Errorf("event %s: no answer: %w", ev.Type, ctx.Err())
		}
	}
	return c.State(), nil
}
