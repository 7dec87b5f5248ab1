package orchestrator

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Rikinshah787/agentos/internal/backend"
	"github.com/Rikinshah787/agentos/internal/bus"
	"github.com/Rikinshah787/agentos/internal/memoryjson"
	"github.com/Rikinshah787/agentos/internal/parser"
	"github.com/Rikinshah787/agentos/internal/registry"
	"github.com/Rikinshah787/agentos/internal/rlscore"
	"github.com/Rikinshah787/agentos/internal/task"
	"github.com/Rikinshah787/agentos/internal/workspace"
)

// runTask drives one assigned task through the prompt/call/parse/apply
// pipeline to a terminal or review state (spec §4.9 steps 5-9). It runs in
// its own goroutine, detached from the dispatch tick's context.
func (o *Orchestrator) runTask(ctx context.Context, taskID, agentID string) {
	t, ok := o.tasks.Get(taskID)
	if !ok {
		return
	}
	agentState, ok := o.reg.Get(agentID)
	if !ok {
		return
	}

	tags := t.Tags
	if len(tags) == 0 {
		tags = rlscore.Classify(t.Title, t.Description)
	}

	sysPrompt := backend.ComposeSystemPrompt(backend.PromptInputs{
		AgentID:     agentID,
		AgentName:   agentState.Config.DisplayName,
		Role:        agentState.Config.RoleTag,
		TaskTitle:   t.Title,
		TaskDesc:    t.Description,
		Skills:      o.skills,
		Overall:     o.scorer.OverallScore(agentID),
		RecentFails: o.scorer.RecentFailures(agentID),
		History:     o.memory.RecentHistory(5),
	})

	adapter, err := o.dispatch.For(backend.ProviderKind(agentState.Config.Provider))
	if err != nil {
		o.handleCallError(t, agentID, &backend.CallError{Kind: backend.ErrOutOfScope, Err: err})
		return
	}

	callStart := time.Now()
	resp, callErr := adapter.Execute(ctx, sysPrompt, t.Description)
	if o.metrics != nil {
		o.metrics.BackendCallDuration.Record(ctx, time.Since(callStart).Seconds(),
			metric.WithAttributes(attribute.String("provider", string(agentState.Config.Provider))))
	}
	if callErr != nil {
		ce, ok := callErr.(*backend.CallError)
		if !ok {
			ce = backend.ClassifyTransportError(callErr)
		}
		if o.metrics != nil {
			o.metrics.BackendErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(ce.Kind))))
		}
		o.handleCallError(t, agentID, ce)
		return
	}

	if o.metrics != nil {
		o.metrics.BackendTokens.Add(ctx, int64(resp.Tokens),
			metric.WithAttributes(attribute.String("provider", string(agentState.Config.Provider))))
	}

	parsed := parser.Parse(resp.Text)
	o.reg.DrainEnergy(agentID, resp.Tokens)

	hasFileMarker := containsFileMarker(resp.Text)
	needsReview := len(parsed.Files) > 0 && t.Risk == task.RiskHigh

	var writtenPaths []string
	var outcomes []workspace.CommandOutcome

	if needsReview {
		o.stashPending(t.ID, toFileIntents(parsed.Files), toCommandIntents(parsed.Commands))
	} else {
		if len(parsed.Files) > 0 {
			var dropped []string
			writtenPaths, dropped = o.exec.WriteFiles(toFileIntents(parsed.Files))
			for _, d := range dropped {
				o.b.PublishActivity(bus.TopicExecFile, agentID, "dropped file "+d+": escapes workspace root")
			}
		}
		if len(parsed.Commands) > 0 {
			cmdStart := time.Now()
			outcomes = o.exec.RunCommands(ctx, toCommandIntents(parsed.Commands))
			if o.metrics != nil {
				o.metrics.ExecutorCmdDuration.Record(ctx, time.Since(cmdStart).Seconds())
				for _, out := range outcomes {
					if !out.Success {
						o.metrics.ExecutorCmdErrors.Add(ctx, 1)
					}
				}
			}
			for _, out := range outcomes {
				o.b.PublishActivity(bus.TopicExecCmd, agentID, out.Cmd)
			}
		}
	}

	successfulCmds := 0
	for _, out := range outcomes {
		if out.Success {
			successfulCmds++
		}
	}

	score := rlscore.Score(rlscore.ScoreInput{
		Files:              len(parsed.Files),
		RawHasFileMarker:   hasFileMarker,
		Commands:           len(parsed.Commands),
		HasOutcomes:        len(outcomes) > 0,
		SuccessfulCommands: successfulCmds,
		Tokens:             resp.Tokens,
		Failed:             false,
	})

	result := task.Result{
		Success:         true,
		Explanation:     parsed.Explanation,
		RawText:         resp.Text,
		TokensUsed:      resp.Tokens,
		AgentName:       agentState.Config.DisplayName,
		ModelID:         firstNonEmpty(resp.Model, agentState.Config.ModelID),
		FilePaths:       writtenPaths,
		CommandOutcomes: toTaskCommandOutcomes(outcomes),
		PerfScore:       score,
		Tags:            tags,
	}

	if err := o.tasks.CompleteActive(t.ID, result, needsReview, o.now()); err != nil {
		o.logger.Error("orchestrator: complete active task failed", "task", t.ID, "error", err)
		return
	}

	if o.metrics != nil {
		o.metrics.RLScore.Record(ctx, int64(score))
		if !needsReview {
			o.metrics.WorkingAgents.Add(ctx, -1)
		}
	}
	o.b.Publish(bus.TopicRLScored, "task "+t.ID+" scored "+strconv.Itoa(score))

	_ = o.scorer.RecordPerformance(agentID, tags, score, t.ID)
	o.recordMemory(t, agentID, agentState, result)

	if needsReview {
		o.b.PublishActivity(bus.TopicTaskReview, agentID, "task "+t.ID+" awaiting approval")
		// The agent stays "working" while its output is under review — it
		// owns no new task until the review resolves, but energy/XP are
		// already booked above.
	} else {
		o.reg.SetStatus(agentID, registry.StatusIdle, "")
		o.b.PublishActivity(bus.TopicTaskComplete, agentID, "task "+t.ID+" completed")
		o.spawnSubtasks(t, agentID, parsed.Subtasks)
	}

	o.touch()
}

// spawnSubtasks creates one child task per SUBTASK block, skipping once the
// parent is already at the max depth (spec §4.9 step 8, §9 resolution:
// subtasks get their own freshly-detected risk/priority, not inherited).
func (o *Orchestrator) spawnSubtasks(parent task.Task, agentID string, subtasks []parser.SubtaskIntent) {
	if parent.Depth >= maxSubtaskDepth || len(subtasks) == 0 {
		return
	}
	for _, st := range subtasks {
		pref := st.AgentID
		if pref == "" {
			pref = "auto"
		}
		child, err := o.tasks.Create(task.CreateInput{
			Title:        st.Title,
			Description:  st.Description,
			CreatedBy:    "agent:" + agentID,
			ParentTaskID: parent.ID,
			PreferredAgentID: pref,
		}, o.now())
		if err != nil {
			continue
		}
		o.b.PublishActivity(bus.TopicTaskCreated, agentID, "subtask "+child.ID+" spawned from "+parent.ID)
	}
}

// handleCallError applies spec §7's per-ErrorKind recovery and records a
// failed task outcome.
func (o *Orchestrator) handleCallError(t task.Task, agentID string, callErr *backend.CallError) {
	transportOrAPI := callErr.Kind == backend.ErrRateLimited || callErr.Kind == backend.ErrTransport
	score := rlscore.FailureScore(transportOrAPI)
	tags := t.Tags
	if len(tags) == 0 {
		tags = rlscore.Classify(t.Title, t.Description)
	}

	result := task.Result{
		Success:     false,
		Explanation: callErr.Error(),
		PerfScore:   score,
		Tags:        tags,
	}
	_ = o.tasks.FailActive(t.ID, result, o.now())
	if o.metrics != nil {
		o.metrics.WorkingAgents.Add(context.Background(), -1)
	}

	switch callErr.Kind {
	case backend.ErrRateLimited:
		o.reg.SetCooldown(agentID, rateLimitedCooldownMs)
	case backend.ErrTransport:
		o.reg.RecordError(agentID)
		o.settleErroredAgent(agentID)
	default: // ErrOutOfScope and anything else
		o.reg.SetStatus(agentID, registry.StatusIdle, "")
	}

	_ = o.scorer.RecordPerformance(agentID, tags, score, t.ID)
	o.b.PublishActivity(bus.TopicTaskFailed, agentID, "task "+t.ID+" failed: "+callErr.Error())
	o.touch()
}

// settleErroredAgent moves a transport-failed agent back to idle, unless
// its ErrorCount has reached consecutiveErrorsToFail, in which case it is
// put into the error status for operator attention. ErrorCount is a running
// total of transport errors; a successful task does not reset it.
func (o *Orchestrator) settleErroredAgent(agentID string) {
	a, ok := o.reg.Get(agentID)
	if !ok {
		return
	}
	if a.ErrorCount >= consecutiveErrorsToFail {
		o.reg.SetStatus(agentID, registry.StatusError, "")
		return
	}
	o.reg.SetStatus(agentID, registry.StatusIdle, "")
}

func (o *Orchestrator) recordMemory(t task.Task, agentID string, agentState registry.AgentState, result task.Result) {
	entry := memoryjson.TaskHistoryEntry{
		TaskID:      t.ID,
		Title:       t.Title,
		AgentID:     agentID,
		AgentName:   agentState.Config.DisplayName,
		ModelID:     result.ModelID,
		Explanation: result.Explanation,
		FilePaths:   result.FilePaths,
		Tokens:      result.TokensUsed,
		Success:     result.Success,
		Timestamp:   o.now(),
	}
	if err := o.memory.RecordTaskHistory(entry); err != nil {
		o.logger.Error("orchestrator: record task history failed", "task", t.ID, "error", err)
	}
	if err := o.memory.RecordAgentStat(agentID, result.TokensUsed, result.Success, !result.Success); err != nil {
		o.logger.Error("orchestrator: record agent stat failed", "agent", agentID, "error", err)
	}
}

func (o *Orchestrator) stashPending(taskID string, files []workspace.FileIntent, commands []workspace.CommandIntent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[taskID] = pendingEffects{files: files, commands: commands}
}

func toFileIntents(files []parser.FileIntent) []workspace.FileIntent {
	out := make([]workspace.FileIntent, len(files))
	for i, f := range files {
		out[i] = workspace.FileIntent{Path: f.Path, Content: f.Content}
	}
	return out
}

func toCommandIntents(cmds []parser.CommandIntent) []workspace.CommandIntent {
	out := make([]workspace.CommandIntent, len(cmds))
	for i, c := range cmds {
		out[i] = workspace.CommandIntent{Cwd: c.Cwd, Command: c.Command}
	}
	return out
}

func toTaskCommandOutcomes(outcomes []workspace.CommandOutcome) []task.CommandOutcome {
	if len(outcomes) == 0 {
		return nil
	}
	out := make([]task.CommandOutcome, len(outcomes))
	for i, o := range outcomes {
		out[i] = task.CommandOutcome{Cwd: o.Cwd, Cmd: o.Cmd, Success: o.Success, Output: o.Output}
	}
	return out
}

func containsFileMarker(text string) bool {
	return strings.Contains(text, "FILE")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
