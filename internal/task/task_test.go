package task

import (
	"strings"
	"testing"
)

func TestDetectRiskTitleKeyword(t *testing.T) {
	if got := DetectRisk("Update README for onboarding", nil); got != RiskLow {
		t.Fatalf("risk = %v, want low", got)
	}
	if got := DetectRisk("Write unit tests for parser", nil); got != RiskLow {
		t.Fatalf("risk = %v, want low", got)
	}
}

func TestDetectRiskFilePattern(t *testing.T) {
	if got := DetectRisk("Tidy up", []string{"internal/parser/parser_test.go"}); got != RiskLow {
		t.Fatalf("risk = %v, want low", got)
	}
	if got := DetectRisk("Tidy up", []string{"docs/guide.md"}); got != RiskLow {
		t.Fatalf("risk = %v, want low", got)
	}
}

func TestDetectRiskDefaultsHigh(t *testing.T) {
	if got := DetectRisk("Refactor payment processor", []string{"internal/billing/charge.go"}); got != RiskHigh {
		t.Fatalf("risk = %v, want high", got)
	}
}

func TestCreateAutoApproveAllOverridesDetectedRisk(t *testing.T) {
	m := NewManager()
	m.SetAutoApproveAll(true)
	tk, err := m.Create(CreateInput{Title: "Refactor payment processor", FilePaths: []string{"internal/billing/charge.go"}}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if tk.Risk != RiskLow {
		t.Fatalf("risk = %v, want low under auto-approve-all", tk.Risk)
	}
}

func TestCreateDefaultsPriorityToMedium(t *testing.T) {
	m := NewManager()
	tk, err := m.Create(CreateInput{Title: "x"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if tk.Priority != PriorityMedium {
		t.Fatalf("priority = %v, want medium", tk.Priority)
	}
}

func TestTaskIDsAreZeroPaddedAndMonotone(t *testing.T) {
	m := NewManager()
	t1, _ := m.Create(CreateInput{Title: "a"}, 1)
	t2, _ := m.Create(CreateInput{Title: "b"}, 1)
	if t1.ID != "TASK-001" || t2.ID != "TASK-002" {
		t.Fatalf("ids = %q, %q", t1.ID, t2.ID)
	}
}

func TestPendingQueueOrdersByPriorityThenInsertion(t *testing.T) {
	m := NewManager()
	low, _ := m.Create(CreateInput{Title: "low", Priority: PriorityLow}, 1)
	crit, _ := m.Create(CreateInput{Title: "critical", Priority: PriorityCritical}, 1)
	med1, _ := m.Create(CreateInput{Title: "med1", Priority: PriorityMedium}, 1)
	med2, _ := m.Create(CreateInput{Title: "med2", Priority: PriorityMedium}, 1)

	got := m.PendingQueue()
	want := []string{crit.ID, med1.ID, med2.ID, low.ID}
	if len(got) != len(want) {
		t.Fatalf("queue len = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestAssignRejectsNonPendingTask(t *testing.T) {
	m := NewManager()
	tk, _ := m.Create(CreateInput{Title: "a"}, 1)
	if err := m.Assign(tk.ID, "agent-1", 2); err != nil {
		t.Fatal(err)
	}
	if err := m.Assign(tk.ID, "agent-2", 3); err == nil {
		t.Fatal("expected error assigning an already-active task")
	}
}

func TestCompleteActiveLowRiskGoesDirectToCompleted(t *testing.T) {
	m := NewManager()
	tk, _ := m.Create(CreateInput{Title: "fix readme"}, 1)
	_ = m.Assign(tk.ID, "agent-1", 2)
	if err := m.CompleteActive(tk.ID, Result{Success: true}, false, 3); err != nil {
		t.Fatal(err)
	}
	got, _ := m.Get(tk.ID)
	if got.Status != StatusCompleted {
		t.Fatalf("status = %v, want completed", got.Status)
	}
}

func TestCompleteActiveHighRiskGoesToReview(t *testing.T) {
	m := NewManager()
	tk, _ := m.Create(CreateInput{Title: "refactor billing", FilePaths: []string{"internal/billing/charge.go"}}, 1)
	_ = m.Assign(tk.ID, "agent-1", 2)
	if err := m.CompleteActive(tk.ID, Result{Success: true}, true, 3); err != nil {
		t.Fatal(err)
	}
	got, _ := m.Get(tk.ID)
	if got.Status != StatusReview {
		t.Fatalf("status = %v, want review", got.Status)
	}
}

func TestApproveCompletesReviewedTask(t *testing.T) {
	m := NewManager()
	tk, _ := m.Create(CreateInput{Title: "refactor billing", FilePaths: []string{"internal/billing/charge.go"}}, 1)
	_ = m.Assign(tk.ID, "agent-1", 2)
	_ = m.CompleteActive(tk.ID, Result{Success: true}, true, 3)
	if err := m.Approve(tk.ID, 4); err != nil {
		t.Fatal(err)
	}
	got, _ := m.Get(tk.ID)
	if got.Status != StatusCompleted {
		t.Fatalf("status = %v, want completed", got.Status)
	}
}

func TestRejectCancelsReviewedTask(t *testing.T) {
	m := NewManager()
	tk, _ := m.Create(CreateInput{Title: "refactor billing", FilePaths: []string{"internal/billing/charge.go"}}, 1)
	_ = m.Assign(tk.ID, "agent-1", 2)
	_ = m.CompleteActive(tk.ID, Result{Success: true}, true, 3)
	if err := m.Reject(tk.ID, 4); err != nil {
		t.Fatal(err)
	}
	got, _ := m.Get(tk.ID)
	if got.Status != StatusCancelled {
		t.Fatalf("status = %v, want cancelled", got.Status)
	}
}

func TestApproveRejectsNonReviewTask(t *testing.T) {
	m := NewManager()
	tk, _ := m.Create(CreateInput{Title: "a"}, 1)
	if err := m.Approve(tk.ID, 2); err == nil {
		t.Fatal("expected error approving a pending task")
	}
}

func TestFailActiveMarksFailed(t *testing.T) {
	m := NewManager()
	tk, _ := m.Create(CreateInput{Title: "a"}, 1)
	_ = m.Assign(tk.ID, "agent-1", 2)
	if err := m.FailActive(tk.ID, Result{Success: false, Explanation: "boom"}, 3); err != nil {
		t.Fatal(err)
	}
	got, _ := m.Get(tk.ID)
	if got.Status != StatusFailed {
		t.Fatalf("status = %v, want failed", got.Status)
	}
}

func TestCancelPendingRejectsNonPendingTask(t *testing.T) {
	m := NewManager()
	tk, _ := m.Create(CreateInput{Title: "a"}, 1)
	_ = m.Assign(tk.ID, "agent-1", 2)
	if err := m.CancelPending(tk.ID, 3); err == nil {
		t.Fatal("expected error cancelling an already-active task")
	}
}

func TestSubtaskDepthIncrementsAndRiskIsFreshlyDetected(t *testing.T) {
	m := NewManager()
	m.SetAutoApproveAll(false)
	parent, _ := m.Create(CreateInput{Title: "refactor billing", Priority: PriorityCritical, FilePaths: []string{"internal/billing/charge.go"}}, 1)
	if parent.Risk != RiskHigh {
		t.Fatalf("parent risk = %v, want high", parent.Risk)
	}

	sub, err := m.Create(CreateInput{
		Title:        "update README for billing",
		Priority:     PriorityLow,
		ParentTaskID: parent.ID,
	}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Depth != 1 {
		t.Fatalf("depth = %d, want 1", sub.Depth)
	}
	// Subtask risk/priority are freshly detected, not inherited from parent.
	if sub.Risk != RiskLow {
		t.Fatalf("subtask risk = %v, want low (freshly detected, not inherited)", sub.Risk)
	}
	if sub.Priority != PriorityLow {
		t.Fatalf("subtask priority = %v, want low", sub.Priority)
	}
}

func TestSubtaskDepthLimitEnforced(t *testing.T) {
	m := NewManager()
	root, _ := m.Create(CreateInput{Title: "root"}, 1)
	d1, err := m.Create(CreateInput{Title: "d1", ParentTaskID: root.ID}, 1)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := m.Create(CreateInput{Title: "d2", ParentTaskID: d1.ID}, 1)
	if err != nil {
		t.Fatal(err)
	}
	d3, err := m.Create(CreateInput{Title: "d3", ParentTaskID: d2.ID}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if d3.Depth != maxDepth {
		t.Fatalf("depth = %d, want %d", d3.Depth, maxDepth)
	}
	if _, err := m.Create(CreateInput{Title: "d4", ParentTaskID: d3.ID}, 1); err == nil {
		t.Fatal("expected error exceeding max subtask depth")
	}
}

func TestCreateUnknownParentErrors(t *testing.T) {
	m := NewManager()
	if _, err := m.Create(CreateInput{Title: "x", ParentTaskID: "TASK-999"}, 1); err == nil {
		t.Fatal("expected error for unknown parent task id")
	}
}

func TestEvictionAtThirtyTerminalTasksTracksArchivedCount(t *testing.T) {
	m := NewManager()
	var ids []string
	for i := 0; i < 31; i++ {
		tk, _ := m.Create(CreateInput{Title: "t"}, 1)
		ids = append(ids, tk.ID)
	}
	for _, id := range ids {
		_ = m.Assign(id, "agent-1", 1)
		_ = m.CompleteActive(id, Result{Success: true}, false, 2)
	}

	if got := m.ArchivedCount(); got != 1 {
		t.Fatalf("archivedCount = %d, want 1", got)
	}

	// The oldest terminal task should have been evicted from the live map.
	if _, ok := m.Get(ids[0]); ok {
		t.Fatal("expected the oldest terminal task to be evicted")
	}
	if _, ok := m.Get(ids[len(ids)-1]); !ok {
		t.Fatal("expected the most recent terminal task to remain live")
	}
}

func TestListReflectsLiveTasksOnly(t *testing.T) {
	m := NewManager()
	a, _ := m.Create(CreateInput{Title: "a"}, 1)
	_ = m.Assign(a.ID, "agent-1", 1)
	_ = m.CompleteActive(a.ID, Result{Success: true}, false, 2)
	b, _ := m.Create(CreateInput{Title: "b"}, 1)

	list := m.List()
	if len(list) != 2 {
		t.Fatalf("list len = %d, want 2", len(list))
	}
	var sawB bool
	for _, tk := range list {
		if tk.ID == b.ID {
			sawB = true
		}
	}
	if !sawB {
		t.Fatal("expected pending task b in list")
	}
}

func TestPreferredAgentIDDefaultsToAuto(t *testing.T) {
	m := NewManager()
	tk, _ := m.Create(CreateInput{Title: "x"}, 1)
	if tk.PreferredAgentID != "auto" {
		t.Fatalf("preferredAgentID = %q, want auto", tk.PreferredAgentID)
	}
}

func TestCreatedByRecorded(t *testing.T) {
	m := NewManager()
	tk, _ := m.Create(CreateInput{Title: "x", CreatedBy: "agent:agent-7"}, 1)
	if !strings.HasPrefix(tk.CreatedBy, "agent:") {
		t.Fatalf("createdBy = %q", tk.CreatedBy)
	}
}
