package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"toolgate/internal/config"
	"toolgate/internal/logging"
	"toolgate/internal/tools"
)

// Outcome is everything the pipeline produced for one request. Stages that
// were never reached leave their field nil.
type Outcome struct {
	Selection  SelectionResult
	Params     ParameterSet
	Validation *ValidationResult
	Result     *tools.ToolResult
	Recovered  bool
	Error      *ErrorRecord
}

// Pipeline wires selector, inferencer, validator, executor, breakers, and
// recovery into the request-to-action flow. Safe for concurrent use.
type Pipeline struct {
	cfg       *config.Config
	registry  *tools.Registry
	selector  *Selector
	inference *Inferencer
	validator *Validator
	executor  *Executor
	breakers  *BreakerSet
	recovery  *RecoveryManager
	errors    *ErrorManager
}

// Option customizes pipeline construction.
type Option func(*options)

type options struct {
	clock Clock
	stats *StrategyStats
}

// WithClock injects a clock, used by tests to drive breaker cool-downs and
// retry backoff without real waiting.
func WithClock(clock Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithStrategyStats seeds recovery statistics, typically restored from the
// store at startup.
func WithStrategyStats(stats *StrategyStats) Option {
	return func(o *options) { o.stats = stats }
}

// New builds a pipeline from configuration and a populated registry.
func New(cfg *config.Config, registry *tools.Registry, opts ...Option) *Pipeline {
	o := &options{clock: RealClock{}}
	for _, opt := range opts {
		opt(o)
	}

	breakers := NewBreakerSet(
		cfg.Recovery.FailureThreshold,
		cfg.CoolDown(),
		cfg.MaxCoolDown(),
		cfg.FailureWindow(),
		o.clock,
	)

	return &Pipeline{
		cfg:       cfg,
		registry:  registry,
		selector:  NewSelector(registry, cfg.Validation.MinConfidence),
		inference: NewInferencer(),
		validator: NewValidator(cfg, o.clock),
		executor:  NewExecutor(cfg.ExecTimeout()),
		breakers:  breakers,
		recovery:  NewRecoveryManager(o.stats, breakers, cfg.Recovery.RetryCeiling, cfg.BackoffBase(), o.clock),
		errors:    NewErrorManager(),
	}
}

// Registry returns the tool registry.
func (p *Pipeline) Registry() *tools.Registry { return p.registry }

// Breakers returns the breaker set, for the stats surface.
func (p *Pipeline) Breakers() *BreakerSet { return p.breakers }

// Errors returns the error manager.
func (p *Pipeline) Errors() *ErrorManager { return p.errors }

// Recovery returns the recovery manager, for hook registration and stats
// persistence.
func (p *Pipeline) Recovery() *RecoveryManager { return p.recovery }

// Process runs the full flow for a request: select, infer, validate, check
// the breaker, execute, and on failure hand off to recovery. The returned
// error's message is always safe to display.
func (p *Pipeline) Process(ctx context.Context, req *ToolRequest) (*Outcome, error) {
	out := &Outcome{}

	// Selection.
	out.Selection = p.selector.Select(req.Text)
	logging.AuditWithRequest(req.ID).ToolSelected(selectionName(out.Selection), out.Selection.Confidence, out.Selection.Ambiguous)
	if out.Selection.Ambiguous {
		err := fmt.Errorf("%w: no tool matched confidently; %s", ErrAmbiguous, suggestAlternatives(out.Selection))
		out.Error = p.errors.Record(err, "", "", req.ID)
		return out, err
	}
	tool := out.Selection.Tool

	// Inference.
	out.Params = p.inference.Infer(tool, req.Text, req.Explicit)
	logging.AuditWithRequest(req.ID).ParamsInferred(tool.Name, out.Params.Sources())
	if missing := requiredMissing(tool, out.Params); len(missing) > 0 {
		err := MissingRequiredError(tool, missing)
		out.Error = p.errors.Record(err, tool.Name, tool.ResourceKey(), req.ID)
		return out, err
	}

	// Validation. Critical findings abort before any execution.
	out.Validation = p.validator.Validate(tool, out.Params, ValidationContext{RequestID: req.ID})
	if !out.Validation.Valid {
		err := validationError(out.Validation)
		out.Error = p.errors.Record(err, tool.Name, tool.ResourceKey(), req.ID)
		return out, err
	}

	// Breaker gate: an open breaker fails fast without touching the tool.
	if err := p.breakers.Allow(tool.Name, tool.ResourceKey()); err != nil {
		out.Error = p.errors.Record(err, tool.Name, tool.ResourceKey(), req.ID)
		return out, err
	}

	// Execution.
	out.Result = p.execute(ctx, req, tool, out.Validation)
	if out.Result.IsSuccess() {
		p.breakers.RecordSuccess(tool.Name, tool.ResourceKey())
		return out, nil
	}
	p.breakers.RecordFailure(tool.Name, tool.ResourceKey())
	out.Error = p.errors.Record(out.Result.Error, tool.Name, tool.ResourceKey(), req.ID)

	// Recovery. The retry op re-executes with a fresh scope; a recovered
	// run replaces the failed result.
	var mu sync.Mutex
	recErr := p.recovery.HandleFailure(ctx, out.Error, func(rctx context.Context) error {
		if err := p.breakers.Allow(tool.Name, tool.ResourceKey()); err != nil {
			return err
		}
		res := p.execute(rctx, req, tool, out.Validation)
		if res.IsSuccess() {
			p.breakers.RecordSuccess(tool.Name, tool.ResourceKey())
			mu.Lock()
			out.Result = res
			mu.Unlock()
			return nil
		}
		p.breakers.RecordFailure(tool.Name, tool.ResourceKey())
		return res.Error
	})
	if recErr == nil {
		out.Recovered = true
		return out, nil
	}
	// Surface the sentinel for errors.Is, paired with the scrubbed message;
	// technical detail stays in the audit record.
	if errors.Is(out.Result.Error, ErrTimeout) {
		return out, fmt.Errorf("%w: %s", ErrTimeout, out.Error.UserMessage)
	}
	return out, fmt.Errorf("%w: %s", ErrExecution, out.Error.UserMessage)
}

func (p *Pipeline) execute(ctx context.Context, req *ToolRequest, tool *tools.Tool, validated *ValidationResult) *tools.ToolResult {
	scope := NewScope(req.ID, p.cfg.Execution.WorkingDir, PermissionMode(p.cfg.Execution.PermissionMode))
	return p.executor.Execute(ctx, tool, validated, scope)
}

// DryRun runs selection, inference, and validation without executing.
// It uses the exact same Validate path as Process; there is no separate
// dry-run rule set.
func (p *Pipeline) DryRun(req *ToolRequest) (*Outcome, error) {
	out := &Outcome{}

	out.Selection = p.selector.Select(req.Text)
	if out.Selection.Ambiguous {
		return out, fmt.Errorf("%w: %s", ErrAmbiguous, suggestAlternatives(out.Selection))
	}
	tool := out.Selection.Tool

	out.Params = p.inference.Infer(tool, req.Text, req.Explicit)
	out.Validation = p.validator.Validate(tool, out.Params, ValidationContext{RequestID: req.ID, DryRun: true})
	if !out.Validation.Valid {
		return out, validationError(out.Validation)
	}
	return out, nil
}

// validationError pairs the scrubbed user message with the right sentinels.
// Critical findings are security blocks; errors.Is still matches
// ErrValidation on both forms.
func validationError(res *ValidationResult) error {
	if res.Severity.AtLeast(SeverityCritical) {
		return fmt.Errorf("%w: %w: %s", ErrSecurity, ErrValidation, res.UserMessage)
	}
	return fmt.Errorf("%w: %s", ErrValidation, res.UserMessage)
}

// ValidateTool validates explicit parameters against a named tool, the
// CLI's direct validation surface.
func (p *Pipeline) ValidateTool(toolName string, explicit map[string]any, requestID string) (*ValidationResult, error) {
	tool := p.registry.Get(toolName)
	if tool == nil {
		return nil, fmt.Errorf("%w: %s", tools.ErrToolNotFound, toolName)
	}
	params := p.inference.Infer(tool, "", explicit)
	return p.validator.Validate(tool, params, ValidationContext{RequestID: requestID, DryRun: true}), nil
}

// DryRunCandidates dry-runs the request against every tool that scored,
// validating candidates in parallel. Used by the CLI to show what each
// plausible tool would do with the request.
func (p *Pipeline) DryRunCandidates(ctx context.Context, req *ToolRequest) (map[string]*ValidationResult, error) {
	sel := p.selector.Select(req.Text)
	candidates := sel.Alternatives
	if sel.Tool != nil {
		candidates = append([]ScoredTool{{Tool: sel.Tool, Confidence: sel.Confidence}}, candidates...)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: nothing scored", ErrAmbiguous)
	}

	var mu sync.Mutex
	results := make(map[string]*ValidationResult, len(candidates))

	g, _ := errgroup.WithContext(ctx)
	for _, cand := range candidates {
		tool := cand.Tool
		g.Go(func() error {
			params := p.inference.Infer(tool, req.Text, req.Explicit)
			res := p.validator.Validate(tool, params, ValidationContext{RequestID: req.ID, DryRun: true})
			mu.Lock()
			results[tool.Name] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func requiredMissing(tool *tools.Tool, params ParameterSet) []string {
	var missing []string
	for _, name := range tool.Schema.Required {
		if p, ok := params[name]; !ok || p.Source == SourceMissing {
			missing = append(missing, name)
		}
	}
	return missing
}

func selectionName(sel SelectionResult) string {
	if sel.Tool == nil {
		return ""
	}
	return sel.Tool.Name
}

func suggestAlternatives(sel SelectionResult) string {
	if len(sel.Alternatives) == 0 {
		return "no candidate tools"
	}
	names := make([]string, 0, len(sel.Alternatives))
	for _, alt := range sel.Alternatives {
		names = append(names, alt.Tool.Name)
	}
	return fmt.Sprintf("closest candidates: %v", names)
}
