// Package task implements the Task Manager: task lifecycle state machine,
// priority-ordered pending queue, and risk auto-detection, restructured
// from this codebase's SQL-backed task store into an in-memory map
// owned by a single mutex.
package task

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Status is the task lifecycle state (spec §4.8).
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusReview    Status = "review"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Risk is the coarse risk classification driving the review gate.
type Risk string

const (
	RiskLow  Risk = "low"
	RiskHigh Risk = "high"
)

// Priority orders the pending queue (critical > high > medium > low).
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

var priorityRank = map[Priority]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityMedium:   2,
	PriorityLow:      3,
}

// Result is a terminal task's outcome (spec §3).
type Result struct {
	Success         bool
	Explanation     string
	RawText         string
	TokensUsed      int
	AgentName       string
	ModelID         string
	FilePaths       []string
	CommandOutcomes []CommandOutcome
	PerfScore       int
	Tags            []string
}

// CommandOutcome mirrors workspace.CommandOutcome without importing it,
// keeping this package independent of the executor.
type CommandOutcome struct {
	Cwd     string
	Cmd     string
	Success bool
	Output  string
}

// Task is one unit of work (spec §3).
type Task struct {
	ID               string
	Title            string
	Description      string
	Status           Status
	Risk             Risk
	Priority         Priority
	AssignedAgentID  string
	CreatedBy        string // "user" | "agent:<id>" | "trigger"
	ParentTaskID     string
	Depth            int
	PreferredAgentID string // specific id, or "auto"
	FilePaths        []string
	Tags             []string
	Created          int64
	Started          int64
	Completed        int64
	Result           *Result

	seq int64 // insertion sequence, for stable priority ordering
}

const (
	maxDepth        = 3
	liveHistoryCap  = 30
	idCounterWidth  = 3
)

var lowRiskFilePattern = regexp.MustCompile(`(?i)((^|/)(docs?/|readme|types?\.go$)|\.md$|_test\.go$|\.test\.(js|ts)x?$|\.d\.ts$)`)
var lowRiskTitleKeywords = []string{"doc", "test", "readme"}

// Manager owns all Task mutations (spec §3 ownership rule).
type Manager struct {
	mu sync.Mutex

	tasks        map[string]*Task
	nextID       int
	nextSeq      int64
	autoApproveAll bool
	archivedCount  int
	liveOrder      []string // ids of completed/failed/cancelled tasks, oldest first
}

// NewManager creates an empty Task Manager.
func NewManager() *Manager {
	return &Manager{tasks: make(map[string]*Task)}
}

// SetAutoApproveAll toggles the global override that forces every new
// task's risk to low, winning over the per-task auto-detected risk.
func (m *Manager) SetAutoApproveAll(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoApproveAll = on
}

// AutoApproveAll reports the current override state.
func (m *Manager) AutoApproveAll() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.autoApproveAll
}

func (m *Manager) nextTaskID() string {
	m.nextID++
	return fmt.Sprintf("TASK-%0*d", idCounterWidth, m.nextID)
}

// DetectRisk applies the spec's low-risk heuristic: any file path matching
// a doc/test/readme/type-declaration pattern, or a title containing a
// low-risk keyword, makes the task low risk; otherwise high.
func DetectRisk(title string, filePaths []string) Risk {
	lowerTitle := strings.ToLower(title)
	for _, kw := range lowRiskTitleKeywords {
		if strings.Contains(lowerTitle, kw) {
			return RiskLow
		}
	}
	for _, p := range filePaths {
		if lowRiskFilePattern.MatchString(p) {
			return RiskLow
		}
	}
	return RiskHigh
}

// CreateInput is the user-facing (or agent-facing) request to create a task.
type CreateInput struct {
	Title            string
	Description      string
	Priority         Priority
	CreatedBy        string
	ParentTaskID     string // "" for a root task
	PreferredAgentID string // "" defaults to "auto"
	FilePaths        []string
}

// Create enqueues a new pending task. Risk is auto-detected exactly as a
// user task would be — a subtask does not inherit its parent's risk or
// priority (spec §9 Open Question resolution) — then overridden to low if
// the auto-approve-all flag is set. depth = parent.depth + 1, or 0 for a
// root task; returns an error if that would exceed the max subtask depth.
func (m *Manager) Create(in CreateInput, now int64) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	depth := 0
	if in.ParentTaskID != "" {
		parent, ok := m.tasks[in.ParentTaskID]
		if !ok {
			return nil, fmt.Errorf("task: parent %q not found", in.ParentTaskID)
		}
		if parent.Depth+1 > maxDepth {
			return nil, fmt.Errorf("task: max subtask depth %d exceeded", maxDepth)
		}
		depth = parent.Depth + 1
	}

	priority := in.Priority
	if priority == "" {
		priority = PriorityMedium
	}

	risk := DetectRisk(in.Title, in.FilePaths)
	if m.autoApproveAll {
		risk = RiskLow
	}

	preferred := in.PreferredAgentID
	if preferred == "" {
		preferred = "auto"
	}

	m.nextSeq++
	t := &Task{
		ID:               m.nextTaskID(),
		Title:            in.Title,
		Description:      in.Description,
		Status:           StatusPending,
		Risk:             risk,
		Priority:         priority,
		CreatedBy:        in.CreatedBy,
		ParentTaskID:     in.ParentTaskID,
		Depth:            depth,
		PreferredAgentID: preferred,
		FilePaths:        in.FilePaths,
		Created:          now,
		seq:              m.nextSeq,
	}
	m.tasks[t.ID] = t
	return t, nil
}

// Get returns a value copy of a task by id.
func (m *Manager) Get(id string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// PendingQueue returns every pending task ordered by priority (critical
// first) then by insertion order (spec §4.8).
func (m *Manager) PendingQueue() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []*Task
	for _, t := range m.tasks {
		if t.Status == StatusPending {
			pending = append(pending, t)
		}
	}
	sortByPriorityThenSeq(pending)
	out := make([]Task, len(pending))
	for i, t := range pending {
		out[i] = *t
	}
	return out
}

func sortByPriorityThenSeq(tasks []*Task) {
	for i := 1; i < len(tasks); i++ {
		j := i
		for j > 0 && less(tasks[j], tasks[j-1]) {
			tasks[j], tasks[j-1] = tasks[j-1], tasks[j]
			j--
		}
	}
}

func less(a, b *Task) bool {
	ra, rb := priorityRank[a.Priority], priorityRank[b.Priority]
	if ra != rb {
		return ra < rb
	}
	return a.seq < b.seq
}

// Assign transitions a pending task to active, recording the owning agent
// and start time (spec §4.8: pending -> active).
func (m *Manager) Assign(id, agentID string, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task: %q not found", id)
	}
	if t.Status != StatusPending {
		return fmt.Errorf("task: %q not pending (status=%s)", id, t.Status)
	}
	t.Status = StatusActive
	t.AssignedAgentID = agentID
	t.Started = now
	return nil
}

// CancelPending rejects a task before pickup (spec §4.8: pending -> cancelled).
func (m *Manager) CancelPending(id string, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task: %q not found", id)
	}
	if t.Status != StatusPending {
		return fmt.Errorf("task: %q not pending (status=%s)", id, t.Status)
	}
	t.Status = StatusCancelled
	t.Completed = now
	m.archiveLocked(t.ID)
	return nil
}

// CompleteActive finishes an active task successfully. needsReview is the
// orchestrator's precomputed gate (spec §4.9 step 5): true only when the
// model produced files AND the task's risk is high — a high-risk task with
// no file output still completes immediately, it never blocks on approval
// for side effects that don't exist (active -> completed, or -> review).
func (m *Manager) CompleteActive(id string, result Result, needsReview bool, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task: %q not found", id)
	}
	if t.Status != StatusActive {
		return fmt.Errorf("task: %q not active (status=%s)", id, t.Status)
	}
	t.Result = &result
	if needsReview {
		t.Status = StatusReview
		return nil
	}
	t.Status = StatusCompleted
	t.Completed = now
	m.archiveLocked(t.ID)
	return nil
}

// FailActive moves an active task to failed (spec §4.8: active -> failed).
func (m *Manager) FailActive(id string, result Result, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task: %q not found", id)
	}
	if t.Status != StatusActive {
		return fmt.Errorf("task: %q not active (status=%s)", id, t.Status)
	}
	t.Status = StatusFailed
	t.Result = &result
	t.Completed = now
	m.archiveLocked(t.ID)
	return nil
}

// Approve applies a reviewed task's side effects and completes it (spec
// §4.8: review -> completed). Applying side effects is the orchestrator's
// job; this only performs the state transition once that's done.
func (m *Manager) Approve(id string, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task: %q not found", id)
	}
	if t.Status != StatusReview {
		return fmt.Errorf("task: %q not in review (status=%s)", id, t.Status)
	}
	t.Status = StatusCompleted
	t.Completed = now
	m.archiveLocked(t.ID)
	return nil
}

// Reject discards a reviewed task's side effects (spec §4.8: review ->
// cancelled). Reject wins over approve if both are somehow requested.
func (m *Manager) Reject(id string, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task: %q not found", id)
	}
	if t.Status != StatusReview {
		return fmt.Errorf("task: %q not in review (status=%s)", id, t.Status)
	}
	t.Status = StatusCancelled
	t.Completed = now
	m.archiveLocked(t.ID)
	return nil
}

// archiveLocked tracks a newly terminal task for the 30-task live-view cap,
// evicting the oldest terminal task (bumping the archived counter) once the
// cap is exceeded. Caller must hold mu.
func (m *Manager) archiveLocked(id string) {
	m.liveOrder = append(m.liveOrder, id)
	if len(m.liveOrder) <= liveHistoryCap {
		return
	}
	evictID := m.liveOrder[0]
	m.liveOrder = m.liveOrder[1:]
	delete(m.tasks, evictID)
	m.archivedCount++
}

// ArchivedCount returns the number of terminal tasks evicted from the live
// view so far (retained for aggregate stats, spec §4.8).
func (m *Manager) ArchivedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.archivedCount
}

// SetTags records the RL Scorer's category classification for a task (spec
// §3's Tags field), set once during agent selection.
func (m *Manager) SetTags(id string, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task: %q not found", id)
	}
	t.Tags = tags
	return nil
}

// List returns a snapshot of every live (non-evicted) task.
func (m *Manager) List() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, *t)
	}
	return out
}
