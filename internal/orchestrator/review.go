package orchestrator

import (
	"context"
	"fmt"

	"github.com/Rikinshah787/agentos/internal/bus"
	"github.com/Rikinshah787/agentos/internal/registry"
	"github.com/Rikinshah787/agentos/internal/task"
)

// Approve applies a reviewed task's stashed file writes and commands, then
// completes it (spec §4.8 review -> completed, §4.9 step 5's gate release).
// The owning agent returns to idle only now — it stayed "working" for the
// whole review window.
func (o *Orchestrator) Approve(ctx context.Context, taskID string) error {
	t, ok := o.tasks.Get(taskID)
	if !ok {
		return fmt.Errorf("orchestrator: task %q not found", taskID)
	}
	if t.Status != task.StatusReview {
		return fmt.Errorf("orchestrator: task %q not in review (status=%s)", taskID, t.Status)
	}

	o.mu.Lock()
	eff := o.pending[taskID]
	delete(o.pending, taskID)
	o.mu.Unlock()

	written, dropped := o.exec.WriteFiles(eff.files)
	for _, d := range dropped {
		o.b.PublishActivity(bus.TopicExecFile, t.AssignedAgentID, "dropped file "+d+": escapes workspace root")
	}

	var outcomes []task.CommandOutcome
	if len(eff.commands) > 0 {
		raw := o.exec.RunCommands(ctx, eff.commands)
		outcomes = toTaskCommandOutcomes(raw)
	}

	if t.Result != nil {
		t.Result.FilePaths = written
		t.Result.CommandOutcomes = outcomes
	}

	if err := o.tasks.Approve(taskID, o.now()); err != nil {
		return err
	}

	if t.AssignedAgentID != "" {
		o.reg.SetStatus(t.AssignedAgentID, registry.StatusIdle, "")
	}
	if o.metrics != nil {
		o.metrics.WorkingAgents.Add(ctx, -1)
	}
	o.b.PublishActivity(bus.TopicTaskApproved, t.AssignedAgentID, "task "+taskID+" approved")
	o.touch()
	return nil
}

// Reject discards a reviewed task's stashed side effects entirely — no
// file is written, no command is run — and cancels the task (spec §4.8
// review -> cancelled).
func (o *Orchestrator) Reject(ctx context.Context, taskID string) error {
	t, ok := o.tasks.Get(taskID)
	if !ok {
		return fmt.Errorf("orchestrator: task %q not found", taskID)
	}
	if t.Status != task.StatusReview {
		return fmt.Errorf("orchestrator: task %q not in review (status=%s)", taskID, t.Status)
	}

	o.mu.Lock()
	delete(o.pending, taskID)
	o.mu.Unlock()

	if err := o.tasks.Reject(taskID, o.now()); err != nil {
		return err
	}

	if t.AssignedAgentID != "" {
		o.reg.SetStatus(t.AssignedAgentID, registry.StatusIdle, "")
	}
	if o.metrics != nil {
		o.metrics.WorkingAgents.Add(ctx, -1)
	}
	o.b.PublishActivity(bus.TopicTaskRejected, t.AssignedAgentID, "task "+taskID+" rejected")
	o.touch()
	return nil
}
