package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/symphainy/trafficcop/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Built-in workflow actions.
const (
	ActionPutState    = "put_state"
	ActionDeleteState = "delete_state"
	ActionSyncState   = "sync_state"
	ActionNotify      = "notify"
)

// StepContext is what an action sees of the workflow it runs in.
type StepContext struct {
	Session domain.Session
	Step    domain.WorkflowStep
	RunID   string
}

// ActionFunc performs one workflow step and returns its output.
type ActionFunc func(ctx context.Context, step StepContext) (map[string]any, error)

type WorkflowResult struct {
	RunID     string
	SessionID domain.SessionID
	Strategy  domain.ExecutionStrategy
	Steps     []domain.StepResult
	Succeeded bool
}

// RegisterAction adds or replaces a workflow action.
func (o *Orchestrator) RegisterAction(name string, action ActionFunc) error {
	name = strings.TrimSpace(name)
	if name == "" || action == nil {
		return fmt.Errorf("%w: workflow action needs a name and a func", domain.ErrInvalidArgument)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.actions[name] = action
	return nil
}

func (o *Orchestrator) action(name string) (ActionFunc, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	action, ok := o.actions[name]
	return action, ok
}

// ExecuteWorkflow runs the steps sequentially, stopping at the first failure or
// when ctx is cancelled, or in parallel, where every step runs regardless of
// its siblings.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, cmd ExecuteWorkflowCommand) (res WorkflowResult, err error) {
	strategy := cmd.Strategy
	if strategy == "" {
		strategy = domain.ExecutionSequential
	}
	if !strategy.Valid() {
		return WorkflowResult{}, fmt.Errorf("%w: unknown execution strategy %q", domain.ErrInvalidArgument, strategy)
	}
	if len(cmd.Steps) == 0 {
		return WorkflowResult{}, fmt.Errorf("%w: workflow has no steps", domain.ErrInvalidArgument)
	}

	var session domain.Session
	if cmd.SessionID != "" {
		if session, err = o.existingWorkflowSession(ctx, cmd.SessionID); err != nil {
			return WorkflowResult{}, err
		}
	}
	dimensions := domain.NormalizeDimensions(cmd.Dimensions)
	if len(dimensions) == 0 {
		dimensions = session.Dimensions
	}
	if len(dimensions) == 0 {
		return WorkflowResult{}, fmt.Errorf("%w: workflow needs at least one dimension", domain.ErrDimensionMismatch)
	}
	available := session.Dimensions
	if cmd.SessionID == "" {
		if err := o.dims.Require(dimensions...); err != nil {
			return WorkflowResult{}, err
		}
		available = dimensions
	}

	// Steps are checked before a session is created for the run, so a
	// rejected workflow leaves nothing behind.
	steps, err := o.planSteps(cmd.Steps, dimensions, available)
	if err != nil {
		return WorkflowResult{}, err
	}
	if cmd.SessionID == "" {
		if session, err = o.newWorkflowSession(ctx, cmd, dimensions); err != nil {
			return WorkflowResult{}, err
		}
	}

	res = WorkflowResult{
		RunID:     o.opts.newID(),
		SessionID: session.ID,
		Strategy:  strategy,
		Steps:     make([]domain.StepResult, len(steps)),
	}
	ctx, span := startSpan(ctx, o.opts.tracer, "trafficcop.workflow",
		sessionAttr(session.ID),
		attribute.String("trafficcop.run_id", res.RunID),
		attribute.String("trafficcop.execution_strategy", string(strategy)),
		attribute.Int("trafficcop.steps", len(steps)),
	)
	defer func() { endSpan(span, err) }()

	if strategy == domain.ExecutionSequential {
		o.runSequential(ctx, session, res.RunID, steps, res.Steps)
	} else {
		o.runParallel(ctx, session, res.RunID, steps, res.Steps)
	}

	res.Succeeded = true
	for i, step := range res.Steps {
		if step.Status != domain.StepSucceeded {
			res.Succeeded = false
		}
		eventStatus := domain.EventSucceeded
		if step.Status != domain.StepSucceeded {
			eventStatus = domain.EventFailed
		}
		if _, err := o.record(ctx, domain.OrchestrationEvent{
			SessionID: session.ID,
			Dimension: step.Dimension,
			Type:      "workflow_step",
			Action:    step.Action,
			Status:    eventStatus,
			Detail:    fmt.Sprintf("%s %s: %s", res.RunID, steps[i].Name, step.Status),
			Duration:  step.Duration,
		}); err != nil && !errors.Is(err, context.Canceled) {
			return res, err
		}
	}

	o.opts.logger.InfoContext(ctx, "workflow finished",
		slog.String("session_id", string(session.ID)),
		slog.String("run_id", res.RunID),
		slog.Bool("succeeded", res.Succeeded),
	)
	return res, nil
}

// planSteps fills in each step's dimension and checks it against the workflow
// and the session, and that its action is registered.
func (o *Orchestrator) planSteps(in []domain.WorkflowStep, dimensions, available []domain.DimensionID) ([]domain.WorkflowStep, error) {
	steps := slices.Clone(in)
	for i, step := range steps {
		if step.Dimension == "" {
			steps[i].Dimension = dimensions[0]
			step.Dimension = dimensions[0]
		}
		if !slices.Contains(dimensions, step.Dimension) || !slices.Contains(available, step.Dimension) {
			return nil, fmt.Errorf("%w: step %q runs in dimension %q outside the workflow", domain.ErrDimensionMismatch, step.Name, step.Dimension)
		}
		if _, ok := o.action(step.Action); !ok {
			return nil, fmt.Errorf("%w: step %q uses unknown action %q", domain.ErrInvalidArgument, step.Name, step.Action)
		}
	}
	return steps, nil
}

func (o *Orchestrator) newWorkflowSession(ctx context.Context, cmd ExecuteWorkflowCommand, dimensions []domain.DimensionID) (domain.Session, error) {
	if len(dimensions) >= 2 {
		return o.CreateSession(ctx, CreateCrossDimensionalSessionCommand{
			OwnerUserID: cmd.OwnerUserID,
			Tenant:      cmd.Tenant,
			Dimensions:  dimensions,
		})
	}
	return o.sessions.Create(ctx, CreateSessionCommand{
		OwnerUserID: cmd.OwnerUserID,
		Tenant:      cmd.Tenant,
		Dimensions:  dimensions,
	})
}

func (o *Orchestrator) existingWorkflowSession(ctx context.Context, id domain.SessionID) (domain.Session, error) {
	session, err := o.sessions.Get(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	if err := writable(session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

func (o *Orchestrator) runSequential(ctx context.Context, session domain.Session, runID string, steps []domain.WorkflowStep, results []domain.StepResult) {
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			markRemaining(steps[i:], results[i:], domain.StepCancelled, err)
			return
		}
		results[i] = o.runStep(ctx, session, runID, step)
		if results[i].Status != domain.StepSucceeded {
			markRemaining(steps[i+1:], results[i+1:], domain.StepSkipped, nil)
			return
		}
	}
}

func (o *Orchestrator) runParallel(ctx context.Context, session domain.Session, runID string, steps []domain.WorkflowStep, results []domain.StepResult) {
	var g errgroup.Group
	g.SetLimit(o.settings.WorkflowParallelism)
	for i, step := range steps {
		g.Go(func() error {
			results[i] = o.runStep(ctx, session, runID, step)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) runStep(ctx context.Context, session domain.Session, runID string, step domain.WorkflowStep) domain.StepResult {
	result := domain.StepResult{
		Name:      step.Name,
		Dimension: step.Dimension,
		Action:    step.Action,
		StartedAt: o.clock.Now(),
	}
	if err := ctx.Err(); err != nil {
		result.Status = domain.StepCancelled
		result.Error = err.Error()
		return result
	}

	action, _ := o.action(step.Action)
	output, err := action(ctx, StepContext{Session: session, Step: step, RunID: runID})
	result.Duration = o.clock.Now().Sub(result.StartedAt)
	if err != nil {
		result.Status = domain.StepFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			result.Status = domain.StepCancelled
		}
		result.Error = err.Error()
		return result
	}
	result.Status = domain.StepSucceeded
	result.Output = output
	return result
}

func markRemaining(steps []domain.WorkflowStep, results []domain.StepResult, status domain.StepStatus, err error) {
	for i, step := range steps {
		results[i] = domain.StepResult{
			Name:      step.Name,
			Dimension: step.Dimension,
			Action:    step.Action,
			Status:    status,
		}
		if err != nil {
			results[i].Error = err.Error()
		}
	}
}

func (o *Orchestrator) registerBuiltins() {
	o.actions[ActionPutState] = o.putStateAction
	o.actions[ActionDeleteState] = o.deleteStateAction
	o.actions[ActionSyncState] = o.syncStateAction
	o.actions[ActionNotify] = o.notifyAction
}

// put_state params: key, value, scope, expected_version.
func (o *Orchestrator) putStateAction(ctx context.Context, step StepContext) (map[string]any, error) {
	key, _ := step.Step.Params["key"].(string)
	scope, err := paramScope(step.Step.Params)
	if err != nil {
		return nil, err
	}
	entry, err := o.sessions.UpdateState(ctx, UpdateSessionStateCommand{
		SessionID:       step.Session.ID,
		Key:             key,
		Value:           step.Step.Params["value"],
		Scope:           scope,
		Dimension:       step.Step.Dimension,
		ExpectedVersion: paramInt(step.Step.Params["expected_version"]),
		Metadata:        map[string]any{"workflow_run_id": step.RunID},
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"key": entry.Address.Key, "version": entry.Version}, nil
}

// delete_state params: key, scope.
func (o *Orchestrator) deleteStateAction(ctx context.Context, step StepContext) (map[string]any, error) {
	key, _ := step.Step.Params["key"].(string)
	scope, err := paramScope(step.Step.Params)
	if err != nil {
		return nil, err
	}
	if err := o.sessions.DeleteState(ctx, DeleteStateCommand{
		SessionID: step.Session.ID,
		Key:       key,
		Scope:     scope,
		Dimension: step.Step.Dimension,
	}); err != nil {
		return nil, err
	}
	return map[string]any{"key": key, "deleted": true}, nil
}

// sync_state syncs params keys from the step's dimension to the session's
// other dimensions.
func (o *Orchestrator) syncStateAction(ctx context.Context, step StepContext) (map[string]any, error) {
	payload := map[string]any{
		"keys":             step.Step.Params["keys"],
		"source_dimension": string(step.Step.Dimension),
	}
	for _, name := range []string{"strategy", "scope"} {
		if v, ok := step.Step.Params[name]; ok {
			payload[name] = v
		}
	}
	results, err := o.syncDimensions(ctx, step.Session, step.Session.Dimensions, payload)
	if err != nil {
		return nil, err
	}

	outcomes := map[string]any{}
	var failures []string
	for _, result := range results {
		outcomes[result.Key] = string(result.Outcome)
		if result.Outcome == OutcomeFailed || result.Outcome == OutcomePending {
			failures = append(failures, result.Key)
		}
	}
	if len(failures) > 0 {
		return outcomes, fmt.Errorf("keys did not converge: %s", strings.Join(failures, ", "))
	}
	return outcomes, nil
}

func (o *Orchestrator) notifyAction(ctx context.Context, step StepContext) (map[string]any, error) {
	message, _ := step.Step.Params["message"].(string)
	if _, err := o.record(ctx, domain.OrchestrationEvent{
		SessionID: step.Session.ID,
		Dimension: step.Step.Dimension,
		Type:      "notification",
		Action:    ActionNotify,
		Status:    domain.EventRecorded,
		Detail:    message,
		Payload:   step.Step.Params,
	}); err != nil {
		return nil, err
	}
	return map[string]any{"notified": true}, nil
}

func paramScope(params map[string]any) (domain.Scope, error) {
	raw, ok := params["scope"].(string)
	if !ok || raw == "" {
		return "", nil
	}
	return domain.ParseScope(raw)
}

// paramInt accepts the numeric shapes produced by JSON and YAML decoding.
func paramInt(raw any) int64 {
	switch v := raw.(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case uint64:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}
