package agentloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options configures an Orchestrator.
type Options struct {
	Strategy Strategy

	// SystemPrompt overrides the prompt built from the dispatcher's tools
	// and Prompt.
	SystemPrompt string
	Prompt       PromptContext

	CompressionThreshold int
	CompressionKeepLast  int
	DisableCompression   bool

	MaxReactIterations     int
	MaxPlanStepIterations  int
	MaxReflectionRevisions int
	// LoopDetectionWindow of zero disables loop detection.
	LoopDetectionWindow int

	EventBuffer int
	Logger      *zap.Logger
	Recorder    Recorder
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{
		Strategy:               StrategyReactive,
		CompressionThreshold:   20,
		CompressionKeepLast:    5,
		MaxReactIterations:     30,
		MaxPlanStepIterations:  10,
		MaxReflectionRevisions: 3,
		LoopDetectionWindow:    10,
		EventBuffer:            256,
	}
}

// Report is the terminal result of one run.
type Report struct {
	RunID       string   `json:"run_id"`
	Strategy    Strategy `json:"strategy"`
	Status      Status   `json:"status"`
	Reason      string   `json:"reason,omitempty"`
	Err         error    `json:"-"`
	Termination string   `json:"termination"`
	FinalAnswer string   `json:"final_answer"`

	// History is a copy of the (possibly compressed) conversation at the end
	// of the run.
	History []Message `json:"history"`
	// Compression is the most recent compression of this run, nil if none.
	Compression  *CompressionStatus `json:"compression_status,omitempty"`
	Compressions int                `json:"compressions"`

	Plan       *Plan                `json:"plan,omitempty"`
	Critiques  []ReflectionCritique `json:"critiques,omitempty"`
	Iterations int                  `json:"iterations"`
	Duration   time.Duration        `json:"duration"`
}

// Orchestrator owns one conversation: its History, Dispatcher and
// controllers. Runs on the same Orchestrator are serialized; concurrent
// conversations each need their own Orchestrator and Dispatcher.
type Orchestrator struct {
	llm         LLM
	dispatcher  *Dispatcher
	opts        Options
	compressor  *Compressor
	controllers map[Strategy]Controller
	emitter     *EventEmitter
	logger      *zap.Logger

	mu           sync.Mutex
	systemPrompt string
	history      *History
}

// NewOrchestrator validates opts and builds an orchestrator with the three
// built-in controllers.
func NewOrchestrator(llm LLM, dispatcher *Dispatcher, opts Options) (*Orchestrator, error) {
	if llm == nil {
		return nil, errors.New("agentloop: llm capability is required")
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher()
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyReactive
	}
	if _, ok := ParseStrategy(string(opts.Strategy)); !ok {
		return nil, fmt.Errorf("agentloop: unknown strategy %q", opts.Strategy)
	}
	if opts.MaxReactIterations <= 0 || opts.MaxPlanStepIterations <= 0 {
		return nil, errors.New("agentloop: iteration limits must be positive")
	}
	if opts.MaxReflectionRevisions < 0 {
		return nil, errors.New("agentloop: max reflection revisions must not be negative")
	}

	o := &Orchestrator{
		llm:        llm,
		dispatcher: dispatcher,
		opts:       opts,
		controllers: map[Strategy]Controller{
			StrategyReactive:     ReactiveController{},
			StrategyPlanAndSolve: PlanAndSolveController{},
			StrategyReflection:   ReflectionController{},
		},
		emitter: NewEventEmitter(opts.EventBuffer),
		logger:  opts.Logger,
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if !opts.DisableCompression {
		c, err := NewCompressor(opts.CompressionThreshold, opts.CompressionKeepLast)
		if err != nil {
			return nil, fmt.Errorf("agentloop: %w", err)
		}
		o.compressor = c
	}

	o.systemPrompt = opts.SystemPrompt
	if o.systemPrompt == "" {
		o.systemPrompt = BuildSystemPrompt(dispatcher.Definitions(), opts.Prompt)
	}
	o.history = NewHistory(o.systemPrompt)
	return o, nil
}

// RegisterController installs or replaces the controller for its strategy.
func (o *Orchestrator) RegisterController(c Controller) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.controllers[c.Name()] = c
}

// Events returns the progress event stream.
func (o *Orchestrator) Events() <-chan Event {
	return o.emitter.Events()
}

// Close closes the event stream.
func (o *Orchestrator) Close() {
	o.emitter.Close()
}

// History returns a copy of the current conversation.
func (o *Orchestrator) History() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.history.Messages()
}

// Reset starts a new conversation with the same system prompt.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = NewHistory(o.systemPrompt)
}

// Run drives task with the configured strategy.
func (o *Orchestrator) Run(ctx context.Context, task string) Report {
	return o.RunWith(ctx, o.opts.Strategy, task)
}

// RunWith drives task with the given strategy. Later runs continue the same
// conversation until Reset is called. It never panics and never returns a
// raw error: every failure is reported through Report.Status.
func (o *Orchestrator) RunWith(ctx context.Context, strategy Strategy, task string) Report {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	report := Report{RunID: uuid.NewString(), Strategy: strategy}
	log := o.logger.With(zap.String("run_id", report.RunID), zap.String("strategy", string(strategy)))

	ctrl, ok := o.controllers[strategy]
	if !ok {
		report.Status = StatusFailed
		report.Err = fmt.Errorf("agentloop: unknown strategy %q", strategy)
		report.Reason = report.Err.Error()
		report.History = o.history.Messages()
		report.Duration = time.Since(start)
		return report
	}

	rc := &RunContext{
		RunID:      report.RunID,
		History:    o.history,
		Dispatcher: o.dispatcher,
		LLM:        o.llm,
		Limits: Limits{
			MaxReactIterations:     o.opts.MaxReactIterations,
			MaxPlanStepIterations:  o.opts.MaxPlanStepIterations,
			MaxReflectionRevisions: o.opts.MaxReflectionRevisions,
			LoopDetectionWindow:    o.opts.LoopDetectionWindow,
		},
		Emitter: o.emitter,
		Logger:  log,
	}
	rc.BeforeQuery = func(rc *RunContext) { o.maybeCompress(rc, &report, log) }

	rc.emit(EventRunStart, map[string]any{"strategy": string(strategy), "task": task})
	log.Info("run started", zap.Int("history_len", rc.History.Len()))

	outcome, err := runController(ctx, ctrl, rc, task)
	o.history = rc.History

	report.Status = outcome.Status
	report.Termination = outcome.Termination
	report.Reason = outcome.Reason
	report.FinalAnswer = outcome.FinalAnswer
	report.Iterations = outcome.Iterations
	report.Plan = outcome.Plan.Clone()
	report.Critiques = outcome.Critiques
	if err != nil {
		report.Status = StatusFailed
		report.Err = err
		report.Reason = err.Error()
	}
	report.History = rc.History.Messages()
	report.Duration = time.Since(start)

	fields := []zap.Field{
		zap.String("status", string(report.Status)),
		zap.String("termination", report.Termination),
		zap.Int("iterations", report.Iterations),
		zap.Int("queries", rc.Queries()),
		zap.Int("compressions", report.Compressions),
		zap.Duration("duration", report.Duration),
	}
	if report.Status == StatusFailed {
		log.Error("run failed", append(fields, zap.String("reason", report.Reason))...)
		rc.emit(EventError, map[string]any{"error": report.Reason})
	} else {
		log.Info("run finished", fields...)
	}
	rc.emit(EventRunEnd, map[string]any{
		"status":      string(report.Status),
		"termination": report.Termination,
		"iterations":  report.Iterations,
	})
	if o.opts.Recorder != nil {
		o.opts.Recorder.RecordRun(string(strategy), string(report.Status), report.Duration, report.Iterations)
	}
	return report
}

// runController converts a controller panic into a Failed outcome.
func runController(ctx context.Context, ctrl Controller, rc *RunContext, task string) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Status: StatusFailed, Termination: TerminationPanic}
			err = fmt.Errorf("controller %s panicked: %v", ctrl.Name(), r)
		}
	}()
	return ctrl.Run(ctx, rc, task)
}

// maybeCompress runs before every LLM query. A no-op compression leaves the
// history untouched and is not counted.
func (o *Orchestrator) maybeCompress(rc *RunContext, report *Report, log *zap.Logger) {
	if o.compressor == nil || !o.compressor.ShouldCompress(rc.History) {
		return
	}
	before := rc.History.Len()
	compressed := o.compressor.Compress(rc.History)
	if compressed == rc.History {
		log.Debug("compression no-op", zap.Int("history_len", before))
		return
	}
	rc.History = compressed

	status := NewCompressionStatus(before, compressed.Len())
	report.Compression = &status
	report.Compressions++

	rc.emit(EventCompression, map[string]any{
		"original_count":    status.OriginalCount,
		"compressed_count":  status.CompressedCount,
		"compression_ratio": status.CompressionRatio,
		"messages_saved":    status.MessagesSaved,
	})
	log.Info("history compressed",
		zap.Int("original_count", status.OriginalCount),
		zap.Int("compressed_count", status.CompressedCount),
		zap.Float64("ratio", status.CompressionRatio))
	if o.opts.Recorder != nil {
		o.opts.Recorder.RecordCompression(status.OriginalCount, status.CompressedCount)
	}
}
