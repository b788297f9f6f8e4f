package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/fleetwright/fleetwright/pkg/actors"
	"github.com/fleetwright/fleetwright/pkg/fleetapi"
	"github.com/fleetwright/fleetwright/pkg/journal"
	"github.com/fleetwright/fleetwright/pkg/policy"
	"github.com/fleetwright/fleetwright/pkg/telemetry"
)

// StepStatus is the outcome of one executed step.
type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepWarned    StepStatus = "warned"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepResult is one step's recorded outcome.
type StepResult struct {
	Desc     string
	Actor    string
	Status   StepStatus
	Err      error
	Duration time.Duration
}

// Result is the outcome of one workflow run.
type Result struct {
	RunID  string
	DryRun bool
	Steps  []StepResult
}

// Failed reports whether any step failed (warned steps do not count).
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Status == StepFailed {
			return true
		}
	}
	return false
}

// Runner executes workflow documents. Journal, Gate, Metrics, and Tracer
// are optional; a nil field disables that concern.
type Runner struct {
	Registry *actors.Registry
	Client   fleetapi.Client
	Log      *telemetry.Logger
	Metrics  *telemetry.Metrics
	Tracer   *telemetry.Tracer
	Journal  *journal.Store
	Gate     *policy.Gate

	// Protected lists array names the policy gate shields from
	// destructive steps.
	Protected []string

	// DryRun runs every actor in simulation mode.
	DryRun bool

	// PollInterval and PollDeadline configure the actors' convergence
	// polling.
	PollInterval time.Duration
	PollDeadline time.Duration

	// mu guards the result and sequence counter when parallel groups
	// record concurrently.
	mu sync.Mutex
}

// Validate constructs every actor in the document without running any,
// surfacing option errors before a run starts. The same check runs at the
// start of Run, so a bad step late in a document cannot leave an earlier
// step's changes half-applied.
func (r *Runner) Validate(doc *Document) error {
	rt := r.runtime(r.Log)
	return walkActorSteps(doc.Steps, func(step *Step) error {
		if _, err := r.Registry.New(step.Actor, rt, step.Options); err != nil {
			return fmt.Errorf("step %q: %w", step.Label(), err)
		}
		return nil
	})
}

// Run executes the document's steps in order and returns the per-step
// outcomes. The returned error is the first step failure (after
// warn_on_failure downgrades), or a gate denial.
func (r *Runner) Run(ctx context.Context, doc *Document) (*Result, error) {
	runID := uuid.NewString()
	log := r.Log.WithRunID(runID).WithDryRun(r.DryRun)
	result := &Result{RunID: runID, DryRun: r.DryRun}

	r.metric().RunStarted()
	defer r.metric().RunCompleted()

	if r.Tracer != nil {
		runCtx, span := r.Tracer.StartRunSpan(ctx, runID, r.DryRun)
		defer span.End()
		ctx = runCtx
	}

	if err := r.Validate(doc); err != nil {
		return result, err
	}
	if err := r.gateCheck(ctx, log, doc); err != nil {
		return result, err
	}

	if r.Journal != nil {
		if err := r.Journal.StartRun(ctx, runID, doc.Name, r.DryRun); err != nil {
			return result, err
		}
	}

	log.Infof("starting workflow %q with %d steps", doc.Name, len(doc.Steps))
	rt := r.runtime(log)
	cond := newCondEvaluator(0)

	seq := 0
	var runErr error
	for i := range doc.Steps {
		if err := r.runStep(ctx, rt, log, cond, doc, &doc.Steps[i], result, &seq); err != nil {
			runErr = err
			break
		}
	}

	if r.Journal != nil {
		status := journal.StatusSucceeded
		if runErr != nil {
			status = journal.StatusFailed
		}
		if err := r.Journal.FinishRun(ctx, runID, status); err != nil {
			log.WithError(err).Warn("recording run outcome failed")
		}
	}

	if runErr != nil {
		log.WithError(runErr).Errorf("workflow %q failed", doc.Name)
		return result, runErr
	}
	log.Infof("workflow %q finished", doc.Name)
	return result, nil
}

// gateCheck evaluates the policy gate over every actor step. Dry runs skip
// the gate: they mutate nothing, and blocking them would hide the very
// preview an operator wants.
func (r *Runner) gateCheck(ctx context.Context, log *telemetry.Logger, doc *Document) error {
	if r.Gate == nil || r.DryRun {
		return nil
	}

	var denials []string
	err := walkActorSteps(doc.Steps, func(step *Step) error {
		res, err := r.Gate.EvaluateStep(ctx, policy.StepInput{
			Actor:     step.Actor,
			Desc:      step.Desc,
			Options:   step.Options,
			Protected: r.Protected,
			DryRun:    r.DryRun,
		})
		if err != nil {
			return err
		}
		for _, w := range res.Warnings() {
			log.Warnf("policy %s: %s", w.Rule, w.Message)
		}
		for _, d := range res.Denials() {
			denials = append(denials, fmt.Sprintf("%s: %s", d.Rule, d.Message))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(denials) > 0 {
		return fmt.Errorf("policy gate denied the run: %s", strings.Join(denials, "; "))
	}
	return nil
}

func (r *Runner) runStep(ctx context.Context, rt *actors.Runtime, log *telemetry.Logger, cond *condEvaluator, doc *Document, step *Step, result *Result, seq *int) error {
	if step.When != "" {
		ok, err := cond.Eval(ctx, step.When, doc.Vars, r.DryRun)
		if err != nil {
			return fmt.Errorf("step %q: %w", step.Label(), err)
		}
		if !ok {
			log.Infof("skipping step %q: condition is false", step.Label())
			r.record(ctx, log, result, seq, step, StepSkipped, nil, 0)
			return nil
		}
	}

	if step.IsGroup() {
		return r.runGroup(ctx, rt, log, cond, doc, step, result, seq)
	}
	return r.runActorStep(ctx, rt, log, step, result, seq)
}

// runGroup runs the group's children concurrently and joins on all of them
// before returning; the first failure to complete wins.
func (r *Runner) runGroup(ctx context.Context, rt *actors.Runtime, log *telemetry.Logger, cond *condEvaluator, doc *Document, group *Step, result *Result, seq *int) error {
	log.Infof("starting parallel group %q with %d steps", group.Label(), len(group.Parallel))

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		first error
	)
	for i := range group.Parallel {
		wg.Add(1)
		go func(child *Step) {
			defer wg.Done()
			if err := r.runStep(ctx, rt, log, cond, doc, child, result, seq); err != nil {
				mu.Lock()
				if first == nil {
					first = err
				}
				mu.Unlock()
			}
		}(&group.Parallel[i])
	}
	wg.Wait()
	return first
}

func (r *Runner) runActorStep(ctx context.Context, rt *actors.Runtime, log *telemetry.Logger, step *Step, result *Result, seq *int) error {
	stepLog := log.WithActor(step.Actor, step.Label())
	stepCtx := ctx
	var span trace.Span
	if r.Tracer != nil {
		stepCtx, span = r.Tracer.StartStepSpan(ctx, step.Actor, step.Label())
		defer span.End()
	}

	actor, err := r.Registry.New(step.Actor, rt, step.Options)
	if err != nil {
		r.record(ctx, stepLog, result, seq, step, StepFailed, err, 0)
		return fmt.Errorf("step %q: %w", step.Label(), err)
	}

	stepLog.Infof("running step %q", step.Label())
	start := time.Now()
	runErr := actor.Run(stepCtx)
	duration := time.Since(start)
	if span != nil {
		if runErr != nil {
			telemetry.RecordError(span, runErr)
		} else {
			telemetry.RecordSuccess(span)
		}
	}

	status := StepSucceeded
	if runErr != nil {
		if step.WarnOnFailure {
			status = StepWarned
			stepLog.WithError(runErr).Warnf("step %q failed, continuing (warn_on_failure)", step.Label())
		} else {
			status = StepFailed
		}
		r.metric().RecordError(string(actors.ClassOf(runErr)))
	}
	r.metric().RecordActorRun(step.Actor, string(status), r.DryRun, duration)
	r.record(ctx, stepLog, result, seq, step, status, runErr, duration)

	if status == StepFailed {
		return fmt.Errorf("step %q: %w", step.Label(), runErr)
	}
	return nil
}

// record appends the step outcome to the result and, when a journal is
// configured, persists it.
func (r *Runner) record(ctx context.Context, log *telemetry.Logger, result *Result, seq *int, step *Step, status StepStatus, err error, duration time.Duration) {
	sr := StepResult{
		Desc:     step.Label(),
		Actor:    step.Actor,
		Status:   status,
		Err:      err,
		Duration: duration,
	}

	r.mu.Lock()
	n := *seq
	*seq++
	result.Steps = append(result.Steps, sr)
	r.mu.Unlock()

	if r.Journal == nil {
		return
	}
	now := time.Now().UTC()
	event := journal.StepEvent{
		RunID:       result.RunID,
		Seq:         n,
		Description: step.Label(),
		Actor:       step.Actor,
		Array:       arrayOption(step.Options),
		Status:      string(status),
		StartedAt:   now.Add(-duration),
		FinishedAt:  &now,
	}
	if err != nil {
		event.Error = err.Error()
	}
	if jerr := r.Journal.RecordStep(ctx, event); jerr != nil {
		log.WithError(jerr).Warn("recording step outcome failed")
	}
}

func (r *Runner) runtime(log *telemetry.Logger) *actors.Runtime {
	return &actors.Runtime{
		Client:       r.Client,
		Log:          log,
		Metrics:      r.Metrics,
		DryRun:       r.DryRun,
		PollInterval: r.PollInterval,
		PollDeadline: r.PollDeadline,
	}
}

func (r *Runner) metric() *telemetry.Metrics {
	if r.Metrics == nil {
		return &telemetry.Metrics{}
	}
	return r.Metrics
}

// walkActorSteps visits every actor step, descending into parallel groups.
func walkActorSteps(steps []Step, visit func(step *Step) error) error {
	for i := range steps {
		step := &steps[i]
		if step.IsGroup() {
			if err := walkActorSteps(step.Parallel, visit); err != nil {
				return err
			}
			continue
		}
		if err := visit(step); err != nil {
			return err
		}
	}
	return nil
}

// arrayOption pulls the target array name out of raw options for journal
// display; not every actor has one.
func arrayOption(options map[string]any) string {
	for _, key := range []string{"array", "source"} {
		if v, ok := options[key].(string); ok {
			return v
		}
	}
	return ""
}
