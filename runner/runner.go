package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentloom/agentloom/agent"
	"github.com/agentloom/agentloom/core"
	"github.com/agentloom/agentloom/logging"
	"github.com/agentloom/agentloom/plugin"
	"github.com/agentloom/agentloom/session"
	"github.com/agentloom/agentloom/telemetry"
)

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// EventBufferSize sets channel buffering for delivered events.
	EventBufferSize int
	// MaxModelCalls limits the number of model calls per invocation
	// (0 = unlimited).
	MaxModelCalls int
	// SessionStore persists session state and event logs.
	SessionStore core.SessionStore
	// Cache optionally stamps events with opaque context-cache metadata.
	Cache core.ContextCache
	// Plugins are lifecycle hooks run around every invocation.
	Plugins []plugin.Plugin
	// Logger receives structured execution logs.
	Logger logging.Logger
	// Metrics receives execution measurements.
	Metrics telemetry.Recorder
}

// Runner coordinates invocation execution over a fixed agent tree: it commits
// the user message, resolves which agent the conversation log points at,
// streams that agent's events while persisting them, applies event actions,
// and runs plugin hooks at fixed points. Public methods are safe for
// concurrent use.
type Runner struct {
	tree *agent.Tree

	eventBufferSize int
	maxModelCalls   int

	sessionStore core.SessionStore
	cache        core.ContextCache
	plugins      *plugin.Manager
	logger       logging.Logger
	metrics      telemetry.Recorder

	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
}

// New constructs a Runner over the given tree with optional overrides.
func New(tree *agent.Tree, optFns ...func(o *Options)) *Runner {
	opts := Options{
		EventBufferSize: 100,
		MaxModelCalls:   100,
		SessionStore:    session.NewInMemoryStore(),
		Logger:          logging.NoOpLogger{},
		Metrics:         telemetry.NoopRecorder{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Runner{
		tree:            tree,
		eventBufferSize: opts.EventBufferSize,
		maxModelCalls:   opts.MaxModelCalls,
		sessionStore:    opts.SessionStore,
		cache:           opts.Cache,
		plugins:         plugin.NewManager(opts.Plugins...),
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		activeRuns:      make(map[string]context.CancelFunc),
	}
}

// Tree returns the agent tree this runner executes.
func (r *Runner) Tree() *agent.Tree { return r.tree }

// Run starts an asynchronous invocation for one user message. It returns the
// invocation id, the event stream, and an error stream that carries at most
// one terminal error. Both channels close when the invocation ends.
func (r *Runner) Run(
	ctx context.Context,
	sessionID string,
	userContent core.Content,
) (string, <-chan core.Event, <-chan error, error) {
	sess, err := r.sessionStore.Get(sessionID)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to get session: %w", err)
	}

	invocationID := core.NewID()

	eventsCh := make(chan core.Event, r.eventBufferSize)
	errorsCh := make(chan error, 1)
	agentEmit := make(chan core.Event)
	resumeCh := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.activeRuns[invocationID] = cancel
	r.mu.Unlock()

	ictx := core.NewInvocationContext(
		ctx,
		sessionID,
		invocationID,
		core.AgentInfo{},
		userContent,
		agentEmit,
		resumeCh,
		sess,
		r.sessionStore,
		r.logger,
	)
	if r.maxModelCalls > 0 {
		ictx.Limiter = core.NewCallLimiter(r.maxModelCalls)
	}
	ictx.Cache = r.cache

	if replaced, err := r.plugins.RunOnUserMessage(ctx, ictx, userContent); err != nil {
		cancel()
		r.unregister(invocationID)
		return "", nil, nil, fmt.Errorf("on user message hook: %w", err)
	} else if replaced != nil {
		userContent = *replaced
		ictx.UserContent = userContent
	}

	userEvent := core.NewUserContentEvent(invocationID, &userContent)
	if err := r.sessionStore.AppendEvent(sessionID, userEvent); err != nil {
		cancel()
		r.unregister(invocationID)
		return "", nil, nil, fmt.Errorf("failed to append user event: %w", err)
	}
	r.metrics.IncEvent(userEvent.Author, false)

	// Resolution reads the log including the user event just committed.
	if err := ictx.RefreshSession(); err != nil {
		cancel()
		r.unregister(invocationID)
		return "", nil, nil, fmt.Errorf("failed to refresh session: %w", err)
	}

	target := r.findAgentToRun(ictx.Session)
	ictx.Agent = core.AgentInfo{Name: target.Name(), Kind: target.Kind().String()}
	r.logger.Debug("runner.resolved", "session_id", sessionID, "invocation_id", invocationID, "agent", target.Name())

	start := time.Now()

	// The consumer owns channel closing and may only close after the
	// producer signals completion on execDone, so the producer's error send
	// can never race a close.
	execDone := make(chan struct{})

	go func() {
		defer close(execDone)
		status := "ok"
		defer func() {
			close(agentEmit)
			r.unregister(invocationID)
			r.metrics.ObserveInvocation(target.Name(), status, time.Since(start))
		}()

		if err := r.execute(ctx, ictx, target); err != nil {
			status = "error"
			select {
			case <-ctx.Done():
			case errorsCh <- fmt.Errorf("agent execution failed: %w", err):
			}
		}
	}()

	go func() {
		defer func() { close(eventsCh); close(errorsCh) }()
		r.processEvents(ictx, agentEmit, resumeCh, eventsCh, errorsCh)
		// Cancelling unblocks a producer parked on the resume gate when
		// delivery fails mid-stream; then wait for it to finish before the
		// deferred closes run.
		cancel()
		<-execDone
	}()

	return invocationID, eventsCh, errorsCh, nil
}

// Cancel cancels a running invocation by id.
func (r *Runner) Cancel(invocationID string) error {
	r.mu.Lock()
	cancel, exists := r.activeRuns[invocationID]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("invocation %s not found", invocationID)
	}
	cancel()
	return nil
}

func (r *Runner) unregister(invocationID string) {
	r.mu.Lock()
	delete(r.activeRuns, invocationID)
	r.mu.Unlock()
}

// execute runs the resolved agent, bracketed by the BeforeRun and AfterRun
// hooks. A BeforeRun short-circuit emits one agent-authored event in place of
// the whole run.
func (r *Runner) execute(ctx context.Context, ictx *core.InvocationContext, target *agent.Node) error {
	content, err := r.plugins.RunBeforeRun(ctx, ictx)
	if err != nil {
		return fmt.Errorf("before run hook: %w", err)
	}
	if content != nil {
		ev := core.NewEvent(ictx.InvocationID, target.Name())
		ev.Content = content
		if yieldErr := ictx.Yield(ev); yieldErr != nil {
			return yieldErr
		}
		return r.plugins.RunAfterRun(ctx, ictx)
	}

	runErr := target.Run(ictx)
	if afterErr := r.plugins.RunAfterRun(ctx, ictx); afterErr != nil {
		if runErr != nil {
			// The run failure is the primary error; the hook failure is
			// reported through logs only.
			r.logger.Warn("runner.after_run_hook_failed", "error", afterErr.Error())
			return runErr
		}
		return fmt.Errorf("after run hook: %w", afterErr)
	}
	return runErr
}

// processEvents is the consumer half of the resume gate: it commits each
// event, lets plugins replace the delivered copy, hands it to the caller and
// only then acknowledges the producer, so no lineage ever has more than one
// uncommitted event in flight.
func (r *Runner) processEvents(
	ictx *core.InvocationContext,
	agentEmit <-chan core.Event,
	resumeCh chan<- struct{},
	eventsCh chan<- core.Event,
	errorsCh chan<- error,
) {
	for {
		select {
		case <-ictx.Done():
			return
		case ev, ok := <-agentEmit:
			if !ok {
				return
			}
			if err := r.applyEventActions(ictx.SessionID, ev); err != nil {
				r.fail(ictx, errorsCh, fmt.Errorf("failed to process event actions: %w", err))
				return
			}
			if !ev.Partial {
				if err := r.sessionStore.AppendEvent(ictx.SessionID, ev); err != nil {
					r.fail(ictx, errorsCh, fmt.Errorf("failed to append event to session: %w", err))
					return
				}
				r.metrics.IncEvent(ev.Author, false)
			} else {
				r.metrics.IncEvent(ev.Author, true)
			}

			delivered, err := r.plugins.RunOnEvent(ictx.Context, ictx, ev)
			if err != nil {
				r.fail(ictx, errorsCh, fmt.Errorf("on event hook: %w", err))
				return
			}

			select {
			case <-ictx.Done():
				return
			case eventsCh <- delivered:
				r.logger.Debug("runner.delivered", "event_id", ev.ID, "session_id", ictx.SessionID, "author", ev.Author)
			}

			select {
			case <-ictx.Done():
				return
			case resumeCh <- struct{}{}:
			}
		}
	}
}

func (r *Runner) fail(ictx *core.InvocationContext, errorsCh chan<- error, err error) {
	select {
	case <-ictx.Done():
	case errorsCh <- err:
	}
}

// applyEventActions applies persisted side effects and records control
// signals before the event is committed.
func (r *Runner) applyEventActions(sessionID string, ev core.Event) error {
	if len(ev.Actions.StateDelta) > 0 {
		if err := r.sessionStore.ApplyDelta(sessionID, ev.Actions.StateDelta); err != nil {
			return fmt.Errorf("failed to apply state delta: %w", err)
		}
	}

	if ev.Actions.TransferToAgent != nil && *ev.Actions.TransferToAgent != "" {
		r.logger.Debug("runner.event.transfer_to_agent", "target", *ev.Actions.TransferToAgent, "session_id", sessionID)
		r.metrics.IncTransfer(*ev.Actions.TransferToAgent)
	}

	if ev.Actions.PauseRequested {
		r.logger.Info("runner.event.pause_requested", "session_id", sessionID, "author", ev.Author, "long_running_tool_ids", ev.LongRunningToolIDs)
		r.metrics.IncPause(ev.Author)
	}

	if ev.Actions.Escalate {
		r.logger.Debug("runner.event.escalate", "session_id", sessionID, "author", ev.Author)
	}

	return nil
}
