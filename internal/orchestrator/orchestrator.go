// Package orchestrator implements the Orchestrator: the 500ms dispatch
// tick that matches pending tasks to callable agents via the RL Scorer's
// weighted draw, drives one task through the backend/parser/executor
// pipeline to completion, and runs the 30s energy recharge tick — the
// coordination core this codebase's engine/coordinator pair occupies,
// rebuilt around the spec's task/agent state machines instead of genkit
// flows.
package orchestrator

import (
	"context"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/Rikinshah787/agentos/internal/backend"
	"github.com/Rikinshah787/agentos/internal/bus"
	"github.com/Rikinshah787/agentos/internal/memoryjson"
	"github.com/Rikinshah787/agentos/internal/otelmetrics"
	"github.com/Rikinshah787/agentos/internal/registry"
	"github.com/Rikinshah787/agentos/internal/rlscore"
	"github.com/Rikinshah787/agentos/internal/task"
	"github.com/Rikinshah787/agentos/internal/workspace"
)

const (
	// DefaultConcurrency is the max number of tasks dispatched concurrently
	// (spec §4.9).
	DefaultConcurrency = 5

	// DispatchInterval is the dispatch tick cadence (spec §4.9).
	DispatchInterval = 500 * time.Millisecond

	// RechargeInterval is the energy recharge tick cadence (spec §4.9).
	RechargeInterval = 30 * time.Second

	maxSubtaskDepth = 3

	explorationBonus        = 15.0
	explorationThreshold    = 3
	failurePenaltyPerFail   = 10.0
	topCandidateCount       = 3
	rateLimitedCooldownMs   = 60_000
	consecutiveErrorsToFail = 3
)

// Notifier is implemented by the Broadcaster: any state mutation schedules
// a (throttled) snapshot push, keeping the orchestrator ignorant of
// websocket transport.
type Notifier interface {
	Touch()
}

// pendingEffects are a reviewed task's unapplied file writes and commands,
// stashed until Approve or Reject resolves it.
type pendingEffects struct {
	files    []workspace.FileIntent
	commands []workspace.CommandIntent
}

// Orchestrator wires the Registry, Task Manager, RL Scorer, Backend
// Adapter dispatch table, Workspace Executor, Memory Store, and Bus into
// the dispatch/execute/recharge loop (spec §3, §4.9).
type Orchestrator struct {
	reg      *registry.Registry
	tasks    *task.Manager
	scorer   *rlscore.Scorer
	dispatch *backend.Dispatch
	exec     *workspace.Executor
	memory   *memoryjson.Store
	b        *bus.Bus
	metrics  *otelmetrics.Metrics
	skills   []backend.SkillTemplate
	logger   *slog.Logger

	notifier    Notifier
	concurrency int
	nowFn       func() int64
	randFn      func() float64

	mu      sync.Mutex
	pending map[string]pendingEffects
}

// New builds an Orchestrator. metrics may be nil (telemetry disabled).
func New(
	reg *registry.Registry,
	tasks *task.Manager,
	scorer *rlscore.Scorer,
	dispatch *backend.Dispatch,
	exec *workspace.Executor,
	memory *memoryjson.Store,
	b *bus.Bus,
	metrics *otelmetrics.Metrics,
	skills []backend.SkillTemplate,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		reg:         reg,
		tasks:       tasks,
		scorer:      scorer,
		dispatch:    dispatch,
		exec:        exec,
		memory:      memory,
		b:           b,
		metrics:     metrics,
		skills:      skills,
		logger:      logger,
		concurrency: DefaultConcurrency,
		pending:     make(map[string]pendingEffects),
	}
}

// SetNotifier registers the Broadcaster (or a test double) to be Touch()ed
// on every state mutation.
func (o *Orchestrator) SetNotifier(n Notifier) { o.notifier = n }

// SetConcurrency overrides the default dispatch concurrency cap.
func (o *Orchestrator) SetConcurrency(n int) {
	if n > 0 {
		o.concurrency = n
	}
}

// SetClock overrides the orchestrator's time source; used by tests.
func (o *Orchestrator) SetClock(now func() int64) { o.nowFn = now }

// SetRand overrides the weighted-draw random source; used by tests to make
// agent selection deterministic.
func (o *Orchestrator) SetRand(f func() float64) { o.randFn = f }

func (o *Orchestrator) now() int64 {
	if o.nowFn != nil {
		return o.nowFn()
	}
	return time.Now().UnixMilli()
}

func (o *Orchestrator) randFloat() float64 {
	if o.randFn != nil {
		return o.randFn()
	}
	return rand.Float64()
}

func (o *Orchestrator) touch() {
	if o.notifier != nil {
		o.notifier.Touch()
	}
}

// DispatchTick runs one dispatch cycle: for each pending task (priority
// order) up to the concurrency headroom, classify it, select an agent, and
// hand it off to an async execution goroutine. Never blocks on a task's
// execution (spec §4.9 steps 1-4).
func (o *Orchestrator) DispatchTick(ctx context.Context) {
	start := time.Now()

	working := o.countWorking()
	headroom := o.concurrency - working
	if headroom <= 0 {
		o.recordTickMetrics(ctx, start)
		return
	}

	pending := o.tasks.PendingQueue()
	if o.metrics != nil {
		o.metrics.PendingQueueDepth.Add(ctx, int64(len(pending)))
	}

	dispatched := 0
	for _, t := range pending {
		if headroom <= 0 {
			break
		}
		tags := rlscore.Classify(t.Title, t.Description)
		_ = o.tasks.SetTags(t.ID, tags)

		agentID, ok := o.selectAgent(t, tags)
		if !ok {
			continue
		}
		if err := o.tasks.Assign(t.ID, agentID, o.now()); err != nil {
			continue
		}
		o.reg.SetStatus(agentID, registry.StatusWorking, t.ID)
		o.b.PublishActivity(bus.TopicTaskActive, agentID, "task "+t.ID+" assigned to "+agentID)
		if o.metrics != nil {
			o.metrics.TasksDispatched.Add(ctx, 1)
			o.metrics.WorkingAgents.Add(ctx, 1)
			o.metrics.PendingQueueDepth.Add(ctx, -1)
		}
		headroom--
		dispatched++

		taskID, assignedAgent := t.ID, agentID
		go o.runTask(context.Background(), taskID, assignedAgent)
	}

	if dispatched > 0 {
		o.touch()
	}
	o.recordTickMetrics(ctx, start)
}

func (o *Orchestrator) recordTickMetrics(ctx context.Context, start time.Time) {
	if o.metrics == nil {
		return
	}
	o.metrics.DispatchTickDuration.Record(ctx, time.Since(start).Seconds())
}

func (o *Orchestrator) countWorking() int {
	n := 0
	for _, a := range o.reg.List() {
		if a.Status == registry.StatusWorking {
			n++
		}
	}
	return n
}

// candidate is one callable agent's weighted-draw score for a task.
type candidate struct {
	id    string
	score float64
}

// selectAgent implements spec §4.9 steps 1-4: honor an explicit (non-auto)
// preferred agent if it's callable, else classify the task, score every
// callable agent (typeScore + exploration bonus - recent-failure penalty),
// take the top 3, and draw one weighted by score (floor 1, so a zero or
// negative score candidate is never unreachable).
func (o *Orchestrator) selectAgent(t task.Task, tags []string) (string, bool) {
	if t.PreferredAgentID != "" && t.PreferredAgentID != "auto" {
		if a, ok := o.reg.Get(t.PreferredAgentID); ok && a.Callable() {
			return a.Config.ID, true
		}
	}

	callable := o.reg.Callable()
	if len(callable) == 0 {
		return "", false
	}

	cands := make([]candidate, 0, len(callable))
	for _, a := range callable {
		typeScore := o.scorer.TypeScore(a.Config.ID, tags)
		bonus := 0.0
		if o.scorer.Observations(a.Config.ID, tags) < explorationThreshold {
			bonus = explorationBonus
		}
		penalty := float64(o.scorer.RecentFailures(a.Config.ID)) * failurePenaltyPerFail
		cands = append(cands, candidate{id: a.Config.ID, score: typeScore + bonus - penalty})
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })
	if len(cands) > topCandidateCount {
		cands = cands[:topCandidateCount]
	}

	weights := make([]float64, len(cands))
	total := 0.0
	for i, c := range cands {
		w := c.score
		if w < 1 {
			w = 1
		}
		weights[i] = w
		total += w
	}

	draw := o.randFloat() * total
	cum := 0.0
	for i, w := range weights {
		cum += w
		if draw <= cum {
			return cands[i].id, true
		}
	}
	return cands[len(cands)-1].id, true
}

// RechargeTick is the 30s energy-recharge cycle (spec §4.9).
func (o *Orchestrator) RechargeTick(context.Context) {
	o.reg.RechargeAll()
	o.touch()
}
