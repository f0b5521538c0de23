package runner

import (
	"context"
	"fmt"

	"github.com/agentloom/agentloom/core"
)

// RunLive drives a session from an inbound content channel: every received
// content starts one invocation, and all resulting events flow out on a
// single merged stream. Invocations run strictly one at a time, so the log
// stays append-ordered and resolution always sees a settled history.
//
// The returned channels close when the inbound channel closes, the context is
// cancelled, or an invocation fails.
func (r *Runner) RunLive(
	ctx context.Context,
	sessionID string,
	contents <-chan core.Content,
) (<-chan core.Event, <-chan error, error) {
	if contents == nil {
		return nil, nil, fmt.Errorf("live run requires a content channel")
	}

	eventsCh := make(chan core.Event, r.eventBufferSize)
	errorsCh := make(chan error, 1)

	go func() {
		defer func() { close(eventsCh); close(errorsCh) }()

		for {
			select {
			case <-ctx.Done():
				return
			case content, ok := <-contents:
				if !ok {
					return
				}
				if err := r.runLiveTurn(ctx, sessionID, content, eventsCh); err != nil {
					select {
					case <-ctx.Done():
					case errorsCh <- err:
					}
					return
				}
			}
		}
	}()

	return eventsCh, errorsCh, nil
}

// runLiveTurn executes one invocation and forwards its events to the merged
// live stream.
func (r *Runner) runLiveTurn(
	ctx context.Context,
	sessionID string,
	content core.Content,
	eventsCh chan<- core.Event,
) error {
	invocationID, events, errors, err := r.Run(ctx, sessionID, content)
	if err != nil {
		return err
	}
	r.logger.Debug("runner.live.turn", "session_id", sessionID, "invocation_id", invocationID)

	for events != nil || errors != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case eventsCh <- ev:
			}
		case err, ok := <-errors:
			if !ok {
				errors = nil
				continue
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}
