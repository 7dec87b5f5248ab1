package broadcaster

import (
	"github.com/Rikinshah787/agentos/internal/bus"
	"github.com/Rikinshah787/agentos/internal/memoryjson"
	"github.com/Rikinshah787/agentos/internal/registry"
	"github.com/Rikinshah787/agentos/internal/task"
)

// explanationCap is the light task projection's explanation truncation
// length (spec §4.10).
const explanationCap = 500

// recentMemoryWindow/activityTailWindow bound the snapshot's trailing
// history sections.
const (
	recentMemoryWindow = 10
	activityTailWindow = 50
)

// LightResult is Result with rawOutput and file contents stripped, and
// explanation truncated to explanationCap (spec §4.10).
type LightResult struct {
	Success         bool                 `json:"success"`
	Explanation     string               `json:"explanation"`
	TokensUsed      int                  `json:"tokensUsed"`
	AgentName       string               `json:"agentName"`
	ModelID         string               `json:"modelId"`
	FilePaths       []string             `json:"filePaths"`
	CommandOutcomes []task.CommandOutcome `json:"commandOutcomes"`
	PerfScore       int                  `json:"perfScore"`
}

// LightTask is the client-facing task projection.
type LightTask struct {
	ID              string       `json:"id"`
	Title           string       `json:"title"`
	Description     string       `json:"description"`
	Status          task.Status  `json:"status"`
	Risk            task.Risk    `json:"risk"`
	Priority        task.Priority `json:"priority"`
	AssignedAgentID string       `json:"assignedAgentId"`
	CreatedBy       string       `json:"createdBy"`
	ParentTaskID    string       `json:"parentTaskId"`
	Depth           int          `json:"depth"`
	Tags            []string     `json:"tags"`
	Created         int64        `json:"created"`
	Started         int64        `json:"started"`
	Completed       int64        `json:"completed"`
	Result          *LightResult `json:"result,omitempty"`
}

func toLightTask(t task.Task) LightTask {
	lt := LightTask{
		ID:              t.ID,
		Title:           t.Title,
		Description:     t.Description,
		Status:          t.Status,
		Risk:            t.Risk,
		Priority:        t.Priority,
		AssignedAgentID: t.AssignedAgentID,
		CreatedBy:       t.CreatedBy,
		ParentTaskID:    t.ParentTaskID,
		Depth:           t.Depth,
		Tags:            t.Tags,
		Created:         t.Created,
		Started:         t.Started,
		Completed:       t.Completed,
	}
	if t.Result != nil {
		lt.Result = &LightResult{
			Success:         t.Result.Success,
			Explanation:     truncateString(t.Result.Explanation, explanationCap),
			TokensUsed:      t.Result.TokensUsed,
			AgentName:       t.Result.AgentName,
			ModelID:         t.Result.ModelID,
			FilePaths:       t.Result.FilePaths,
			CommandOutcomes: t.Result.CommandOutcomes,
			PerfScore:       t.Result.PerfScore,
		}
	}
	return lt
}

func truncateString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// PerformanceSummary is one agent's overall RL score, averaged across every
// category it has observations for.
type PerformanceSummary struct {
	AgentID string  `json:"agentId"`
	Overall float64 `json:"overall"`
}

// Snapshot is the full state pushed as a `state:full` frame (spec §4.10).
type Snapshot struct {
	Agents            []registry.AgentState           `json:"agents"`
	Tasks             []LightTask                      `json:"tasks"`
	Performance       []PerformanceSummary              `json:"performance"`
	RecentMemory      []memoryjson.TaskHistoryEntry      `json:"recentMemory"`
	ActivityTail      []bus.ActivityEntry                `json:"activityTail"`
	ArchivedTaskCount int                                `json:"archivedTaskCount"`
	AutoApproveAll    bool                               `json:"autoApproveAll"`
}

func (br *Broadcaster) buildSnapshot() Snapshot {
	agents := br.reg.List()
	rawTasks := br.tasks.List()

	tasks := make([]LightTask, len(rawTasks))
	for i, t := range rawTasks {
		tasks[i] = toLightTask(t)
	}

	performance := make([]PerformanceSummary, 0, len(agents))
	for _, a := range agents {
		performance = append(performance, PerformanceSummary{
			AgentID: a.Config.ID,
			Overall: br.scorer.OverallScore(a.Config.ID),
		})
	}

	return Snapshot{
		Agents:            agents,
		Tasks:             tasks,
		Performance:       performance,
		RecentMemory:      br.memory.RecentHistory(recentMemoryWindow),
		ActivityTail:      br.b.RecentActivity(activityTailWindow),
		ArchivedTaskCount: br.tasks.ArchivedCount(),
		AutoApproveAll:    br.tasks.AutoApproveAll(),
	}
}
