package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/metrics"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/search"
	"github.com/hupe1980/researchmesh/stage"
)

// node identifies a position in the state machine, including the two gates
// which are not stages themselves.
type node string

const (
	nodePlanRoute    node = "plan_route"
	nodePlanningGate node = "planning_gate"
	nodeGather       node = "gather"
	nodeWriteGate    node = "write_gate"
	nodeWrite        node = "write"
	nodeReview       node = "review"
	nodeEnd          node = "end"
)

// Gate names an interrupt point where a suspended engine waits for human
// input.
type Gate string

const (
	// GatePlanning pauses after the plan is formed, before gathering.
	GatePlanning Gate = "planning"
	// GateWrite pauses immediately before drafting.
	GateWrite Gate = "write"
)

// Outcome reports how a Run or Resume call returned: either the workflow
// reached its terminal state or it suspended at a gate.
type Outcome struct {
	Interrupted bool
	Gate        Gate
}

// Stages bundles the four workflow stages an engine executes. Stage values
// are stateless apart from configuration and may be shared between engines.
type Stages struct {
	Plan   *stage.Planner
	Gather stage.Stage
	Write  stage.Stage
	Review stage.Stage
}

// StagesOptions configure the default stage set.
type StagesOptions struct {
	// MaxIterations caps the gather/write/review iteration budget.
	MaxIterations int
	// MinEvidence is the evidence count below which routing prefers
	// another gather pass.
	MinEvidence int
	// MaxResultsPerQuery bounds each search query's result count.
	MaxResultsPerQuery int
	// SummaryMaxChars bounds the fallback summary length per result.
	SummaryMaxChars int
	// Thresholds gate report approval during review.
	Thresholds core.Thresholds
	Logger     logging.Logger
}

// NewStages wires the default stage set from a completer and a searcher.
func NewStages(completer model.Completer, searcher search.Searcher, optFns ...func(o *StagesOptions)) Stages {
	opts := StagesOptions{
		MaxIterations:      5,
		MinEvidence:        stage.MinEvidenceForDraft,
		MaxResultsPerQuery: search.DefaultMaxResults,
		Thresholds:         core.DefaultThresholds(),
		Logger:             logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return Stages{
		Plan: stage.NewPlanner(completer, func(o *stage.PlannerOptions) {
			o.MaxIterations = opts.MaxIterations
			o.MinEvidence = opts.MinEvidence
			o.Logger = opts.Logger
		}),
		Gather: stage.NewGatherer(searcher, completer, func(o *stage.GathererOptions) {
			o.MaxResultsPerQuery = opts.MaxResultsPerQuery
			if opts.SummaryMaxChars > 0 {
				o.SummaryMaxChars = opts.SummaryMaxChars
			}
			o.Logger = opts.Logger
		}),
		Write: stage.NewWriter(completer, func(o *stage.WriterOptions) {
			o.Logger = opts.Logger
		}),
		Review: stage.NewReviewer(completer, func(o *stage.ReviewerOptions) {
			o.Thresholds = opts.Thresholds
			o.Logger = opts.Logger
		}),
	}
}

// Options configure an Engine.
type Options struct {
	// MaxIterations caps the gather/write/review iteration budget.
	MaxIterations int
	// HumanLoopEnabled arms the two interrupt gates.
	HumanLoopEnabled bool
	// MaxTransitions is a hard bound on state machine steps, a safety net
	// against routing cycles.
	MaxTransitions int
	Logger         logging.Logger
}

// Engine executes one session's workflow. It is the single writer of its
// ResearchState; concurrent callers may only read snapshots. Run, Resume and
// Replan must not be called concurrently with each other.
type Engine struct {
	stages         Stages
	maxIterations  int
	humanLoop      bool
	maxTransitions int
	logger         logging.Logger

	mu      sync.RWMutex
	state   *core.ResearchState
	current node
}

// New creates an engine over the given state, which the engine takes
// exclusive ownership of while running.
func New(stages Stages, state *core.ResearchState, optFns ...func(o *Options)) *Engine {
	opts := Options{
		MaxIterations:  5,
		MaxTransitions: 100,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{
		stages:         stages,
		maxIterations:  opts.MaxIterations,
		humanLoop:      opts.HumanLoopEnabled,
		maxTransitions: opts.MaxTransitions,
		logger:         opts.Logger,
		state:          state,
		current:        nodePlanRoute,
	}
}

// Snapshot returns a deep copy of the current state for status reads.
func (e *Engine) Snapshot() *core.ResearchState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// CurrentStage returns the machine position as a short string for status
// reporting.
func (e *Engine) CurrentStage() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return string(e.current)
}

// Done reports whether the machine reached its terminal state.
func (e *Engine) Done() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current == nodeEnd
}

// Interrupted reports whether the machine is suspended at a gate.
func (e *Engine) Interrupted() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current == nodePlanningGate || e.current == nodeWriteGate
}

// Run executes the state machine from its current position until it reaches
// the terminal state or suspends at a gate. Recoverable stage failures are
// absorbed by the stages; anything escaping here is unexpected and fails the
// session, with a panic guard so a programming error in a stage cannot take
// the process down.
func (e *Engine) Run(ctx context.Context) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected failure: %v", r)
			e.fail(err)
		}
	}()

	outcome, err = e.loop(ctx)
	if err != nil {
		e.fail(err)
	}
	return outcome, err
}

// Resume unblocks a gate-suspended engine. Human input, when non-empty, is
// stored as pending input for the next stage that reads it. The engine then
// continues until terminal or the next gate.
func (e *Engine) Resume(ctx context.Context, humanInput string) (Outcome, error) {
	e.mu.Lock()
	if e.current != nodePlanningGate && e.current != nodeWriteGate {
		e.mu.Unlock()
		return Outcome{}, core.ErrNotInterrupted
	}
	// Human input is held as pending input, not appended to the message
	// log, so Topic() keeps returning the original theme.
	if humanInput != "" {
		e.state.PendingHumanInput = humanInput
	}
	// Pass through the gate.
	if e.current == nodePlanningGate {
		e.current = nodeGather
	} else {
		e.current = nodeWrite
	}
	e.mu.Unlock()

	return e.Run(ctx)
}

// Replan regenerates the plan from human input while staying suspended at
// the planning gate, so the human can review the revised plan before
// gathering starts.
func (e *Engine) Replan(ctx context.Context, humanInput, themeFallback string) error {
	e.mu.Lock()
	if e.current != nodePlanningGate && e.current != nodeWriteGate {
		e.mu.Unlock()
		return core.ErrNotInterrupted
	}
	if humanInput != "" {
		e.state.PendingHumanInput = humanInput
	}
	state := e.state
	e.mu.Unlock()

	if err := e.stages.Plan.Replan(ctx, state, themeFallback); err != nil {
		return err
	}

	// Re-arm at the planning gate regardless of which gate we paused at,
	// since the revised plan needs review before evidence gathering.
	e.mu.Lock()
	e.current = nodePlanningGate
	e.mu.Unlock()
	return nil
}

func (e *Engine) loop(ctx context.Context) (Outcome, error) {
	for steps := 0; steps < e.maxTransitions; steps++ {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}

		e.mu.RLock()
		current := e.current
		e.mu.RUnlock()

		switch current {
		case nodeEnd:
			return Outcome{}, nil

		case nodePlanRoute:
			if err := e.runStage(ctx, e.stages.Plan); err != nil {
				return Outcome{}, err
			}
			switch e.state.NextStage {
			case core.StageGather:
				if e.humanLoop {
					e.setNode(nodePlanningGate)
					return Outcome{Interrupted: true, Gate: GatePlanning}, nil
				}
				e.setNode(nodeGather)
			case core.StageWrite:
				if e.humanLoop {
					e.setNode(nodeWriteGate)
					return Outcome{Interrupted: true, Gate: GateWrite}, nil
				}
				e.setNode(nodeWrite)
			default:
				e.setNode(nodeEnd)
			}

		case nodePlanningGate:
			// Pass-through when resumed.
			e.setNode(nodeGather)

		case nodeGather:
			if err := e.runStage(ctx, e.stages.Gather); err != nil {
				return Outcome{}, err
			}
			if e.state.NextStage == core.StageEnd {
				e.setNode(nodeEnd)
			} else {
				e.setNode(nodePlanRoute)
			}

		case nodeWriteGate:
			e.setNode(nodeWrite)

		case nodeWrite:
			if err := e.runStage(ctx, e.stages.Write); err != nil {
				return Outcome{}, err
			}
			switch e.state.NextStage {
			case core.StageReview:
				e.setNode(nodeReview)
			case core.StageGather:
				e.setNode(nodeGather)
			case core.StageEnd:
				e.setNode(nodeEnd)
			default:
				e.setNode(nodeReview)
			}

		case nodeReview:
			if err := e.runStage(ctx, e.stages.Review); err != nil {
				return Outcome{}, err
			}
			next := e.state.NextStage
			if e.state.IterationCount >= e.maxIterations && next != core.StageEnd {
				e.logger.Warn("iteration budget reached after review, ending", "iteration", e.state.IterationCount)
				e.mu.Lock()
				e.state.NextStage = core.StageEnd
				e.mu.Unlock()
				next = core.StageEnd
			}
			switch next {
			case core.StageGather:
				e.setNode(nodeGather)
			case core.StageWrite:
				if e.humanLoop {
					e.setNode(nodeWriteGate)
					return Outcome{Interrupted: true, Gate: GateWrite}, nil
				}
				e.setNode(nodeWrite)
			default:
				e.setNode(nodeEnd)
			}
		}
	}
	return Outcome{}, fmt.Errorf("state machine exceeded %d transitions", e.maxTransitions)
}

func (e *Engine) runStage(ctx context.Context, s stage.Stage) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.logger.Debug("executing stage", "stage", s.Name(), "iteration", e.state.IterationCount)

	start := time.Now()
	evidenceBefore := len(e.state.Evidence)
	err := s.Execute(ctx, e.state)
	metrics.ObserveStage(s.Name(), start, err)
	if added := len(e.state.Evidence) - evidenceBefore; added > 0 {
		metrics.EvidenceCollected.Add(float64(added))
	}
	if err != nil {
		return fmt.Errorf("stage %s: %w", s.Name(), err)
	}
	return nil
}

func (e *Engine) setNode(n node) {
	e.mu.Lock()
	e.current = n
	e.mu.Unlock()
}

// fail records an unexpected failure on the state and forces the terminal
// node so the session ends rather than hanging.
func (e *Engine) fail(cause error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.AppendMessage(core.RoleAssistant, fmt.Sprintf("The workflow failed unexpectedly: %v", cause))
	e.state.NextStage = core.StageEnd
	e.current = nodeEnd
	e.logger.Error("workflow failed", "error", cause)
}
