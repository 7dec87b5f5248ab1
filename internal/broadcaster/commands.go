package broadcaster

import (
	"context"
	"encoding/json"

	"github.com/Rikinshah787/agentos/internal/bus"
	"github.com/Rikinshah787/agentos/internal/registry"
	"github.com/Rikinshah787/agentos/internal/task"
)

// inboundEnvelope is the client command frame shape: {"type": "command:...",
// "payload": ...} (spec §6).
type inboundEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type createTaskPayload struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	AgentID     string   `json:"agentId"`
	AgentIDs    []string `json:"agentIds"`
}

type addAgentPayload struct {
	ID                 string  `json:"id"`
	DisplayName        string  `json:"displayName"`
	Provider           string  `json:"provider"`
	Endpoint           string  `json:"endpoint"`
	CredentialEnvVar   string  `json:"credentialEnvVar"`
	ModelID            string  `json:"modelId"`
	AvatarTag          string  `json:"avatarTag"`
	RoleTag            string  `json:"roleTag"`
	MaxTokens          int     `json:"maxTokens"`
	EnergyRechargeRate int     `json:"energyRechargeRate"`
}

type taskIDPayload struct {
	TaskID string `json:"taskId"`
}

// handleCommand decodes and applies one inbound command:* frame (spec §6).
// Malformed payloads and unknown command types are logged and dropped — a
// single bad client frame never kills the connection.
func (br *Broadcaster) handleCommand(ctx context.Context, msg inboundEnvelope) {
	switch msg.Type {
	case "command:createTask":
		br.handleCreateTask(msg.Payload)
	case "command:addAgent":
		br.handleAddAgent(msg.Payload)
	case "command:approveTask":
		br.handleApproveTask(ctx, msg.Payload)
	case "command:rejectTask":
		br.handleRejectTask(ctx, msg.Payload)
	case "command:toggleAutoApprove":
		br.handleToggleAutoApprove()
	default:
		br.logger.Warn("broadcaster: unknown command", "type", msg.Type)
	}
}

func (br *Broadcaster) handleCreateTask(raw json.RawMessage) {
	var p createTaskPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		br.logger.Warn("broadcaster: malformed command:createTask", "error", err)
		return
	}

	agentIDs := p.AgentIDs
	if len(agentIDs) == 0 {
		agentIDs = []string{p.AgentID}
	}

	for _, agentID := range agentIDs {
		t, err := br.tasks.Create(task.CreateInput{
			Title:            p.Title,
			Description:      p.Description,
			CreatedBy:        "user",
			PreferredAgentID: agentID,
		}, br.now())
		if err != nil {
			br.logger.Warn("broadcaster: create task failed", "error", err)
			continue
		}
		br.b.PublishActivity(bus.TopicTaskCreated, agentID, "task "+t.ID+" created")
	}
	br.Touch()
}

func (br *Broadcaster) handleAddAgent(raw json.RawMessage) {
	var p addAgentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		br.logger.Warn("broadcaster: malformed command:addAgent", "error", err)
		return
	}
	cfg := registry.AgentConfig{
		ID:                 p.ID,
		DisplayName:        p.DisplayName,
		Provider:           registry.ProviderKind(p.Provider),
		Endpoint:           p.Endpoint,
		CredentialEnvVar:   p.CredentialEnvVar,
		ModelID:            p.ModelID,
		AvatarTag:          p.AvatarTag,
		RoleTag:            p.RoleTag,
		MaxTokens:          p.MaxTokens,
		EnergyRechargeRate: p.EnergyRechargeRate,
	}
	if err := br.reg.Add(cfg, br.resolveCredential); err != nil {
		br.logger.Warn("broadcaster: add agent failed", "agent", p.ID, "error", err)
		return
	}
	br.Touch()
}

func (br *Broadcaster) handleApproveTask(ctx context.Context, raw json.RawMessage) {
	var p taskIDPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		br.logger.Warn("broadcaster: malformed command:approveTask", "error", err)
		return
	}
	if err := br.orch.Approve(ctx, p.TaskID); err != nil {
		br.logger.Warn("broadcaster: approve task failed", "task", p.TaskID, "error", err)
	}
}

func (br *Broadcaster) handleRejectTask(ctx context.Context, raw json.RawMessage) {
	var p taskIDPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		br.logger.Warn("broadcaster: malformed command:rejectTask", "error", err)
		return
	}
	if err := br.orch.Reject(ctx, p.TaskID); err != nil {
		br.logger.Warn("broadcaster: reject task failed", "task", p.TaskID, "error", err)
	}
}

func (br *Broadcaster) handleToggleAutoApprove() {
	br.tasks.SetAutoApproveAll(!br.tasks.AutoApproveAll())
	br.Touch()
}
