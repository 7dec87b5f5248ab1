// Package registry implements the Agent Registry: the canonical map of
// agent configuration and runtime state, and the only component allowed to
// mutate it. Hot-reload is driven externally (see internal/config) by
// calling Reload with a freshly parsed agent list.
package registry

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Rikinshah787/agentos/internal/bus"
)

// ProviderKind is the closed set of backend-adapter variants an agent can
// declare (spec §6's agent configuration file shape).
type ProviderKind string

const (
	ProviderOpenAICompatible ProviderKind = "openai-compatible"
	ProviderNIM              ProviderKind = "nim"
	ProviderGemini           ProviderKind = "gemini"
	ProviderAnthropic        ProviderKind = "anthropic"
	ProviderCursorBridge     ProviderKind = "cursor-bridge"
	ProviderCopilotBridge    ProviderKind = "copilot-bridge"
)

// IsBridge reports whether p is one of the inert IDE-hosted variants.
func (p ProviderKind) IsBridge() bool {
	return p == ProviderCursorBridge || p == ProviderCopilotBridge
}

// Status is the runtime lifecycle state of an agent.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusWorking  Status = "working"
	StatusCooldown Status = "cooldown"
	StatusOffline  Status = "offline"
	StatusError    Status = "error"
)

const (
	defaultMaxEnergy      = 100
	defaultRechargeRate   = 10
	minRechargeRate       = 5
	xpPerLevel            = 300
	xpPerTaskBase          = 20
	xpPerTaskTokenCapped   = 30
	xpTokenDivisor         = 100
)

// AgentConfig is the source-file shape the Config Loader unmarshals into
// and the Agent Registry seeds AgentState from.
type AgentConfig struct {
	ID                 string
	DisplayName        string
	Provider           ProviderKind
	Endpoint           string
	CredentialEnvVar   string
	ModelID            string
	AvatarTag          string
	RoleTag            string
	MaxTokens          int
	EnergyRechargeRate int
	// ChatTemplateKwargs is the extra_body.chat_template_kwargs passthrough
	// the NIM provider kind requires (spec §6); unused by every other
	// provider kind.
	ChatTemplateKwargs map[string]any
}

// AgentState is one agent's full identity plus mutable runtime fields.
// Agent Registry exclusively owns mutation of this struct (spec §3).
type AgentState struct {
	Config AgentConfig

	Status          Status
	Energy          int
	MaxEnergy       int
	XP              int
	Level           int
	CurrentTaskID   string // "" when not working
	CooldownUntil   *int64 // unix millis, nil when not in cooldown
	TotalTokensUsed int
	ErrorCount      int
	TasksCompleted  int

	credentialResolved bool
}

// snapshot returns a value copy safe to hand to callers outside the lock.
func (a AgentState) snapshot() AgentState {
	if a.CooldownUntil != nil {
		v := *a.CooldownUntil
		a.CooldownUntil = &v
	}
	return a
}

// Callable reports whether the agent can currently be dispatched a task:
// idle, not a bridge provider, and with its credential resolved.
func (a AgentState) Callable() bool {
	return a.Status == StatusIdle && !a.Config.Provider.IsBridge() && a.credentialResolved
}

// Registry holds the canonical AgentState map and publishes agent:* events
// on its status, energy, xp, cooldown, add and remove mutations;
// RecordError and Reload's in-place config updates publish nothing (spec §4.4).
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*AgentState
	bus    *bus.Bus
	nowFn  func() int64
}

// CredentialResolver resolves an agent's declared credential env var to a
// secret presence flag — the Config Loader's pure (config, env) -> secret
// function; the registry only needs to know whether resolution succeeded.
type CredentialResolver func(cfg AgentConfig) (resolved bool)

// New creates an empty registry.
func New(b *bus.Bus) *Registry {
	return &Registry{agents: make(map[string]*AgentState), bus: b}
}

// SetClock overrides the registry's time source; used by tests.
func (r *Registry) SetClock(now func() int64) { r.nowFn = now }

func (r *Registry) now() int64 {
	if r.nowFn != nil {
		return r.nowFn()
	}
	return time.Now().UnixMilli()
}

// Load seeds the registry from cfgs, resolving each credential via resolve.
// An agent whose config declares a credential env var that fails to
// resolve starts offline; all others start idle.
func (r *Registry) Load(cfgs []AgentConfig, resolve CredentialResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cfg := range cfgs {
		r.addLocked(cfg, resolve)
	}
}

func (r *Registry) addLocked(cfg AgentConfig, resolve CredentialResolver) {
	maxEnergy := defaultMaxEnergy
	rate := cfg.EnergyRechargeRate
	if rate <= 0 {
		rate = defaultRechargeRate
	}
	cfg.EnergyRechargeRate = rate

	resolved := true
	if cfg.CredentialEnvVar != "" {
		resolved = resolve != nil && resolve(cfg)
	}

	status := StatusIdle
	if cfg.CredentialEnvVar != "" && !resolved {
		status = StatusOffline
	}

	r.agents[cfg.ID] = &AgentState{
		Config:             cfg,
		Status:             status,
		Energy:             maxEnergy,
		MaxEnergy:          maxEnergy,
		Level:              1,
		credentialResolved: resolved,
	}
	r.publish(bus.TopicAgentAdded, cfg.ID, fmt.Sprintf("agent %s registered", cfg.ID))
}

// Add registers a single new agent at runtime.
func (r *Registry) Add(cfg AgentConfig, resolve CredentialResolver) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[cfg.ID]; exists {
		return fmt.Errorf("agent %q already exists", cfg.ID)
	}
	r.addLocked(cfg, resolve)
	return nil
}

// Remove takes an agent permanently offline and drops it from the map.
// Callers must ensure the agent is not currently working.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[id]; !ok {
		return
	}
	delete(r.agents, id)
	r.publish(bus.TopicAgentRemoved, id, fmt.Sprintf("agent %s removed", id))
}

// Get returns a snapshot of one agent's state, or ok=false if unknown.
func (r *Registry) Get(id string) (AgentState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return AgentState{}, false
	}
	return a.snapshot(), true
}

// List returns a snapshot of every registered agent.
func (r *Registry) List() []AgentState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AgentState, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a.snapshot())
	}
	return out
}

// Callable returns a snapshot of every agent currently eligible for
// dispatch (spec §4.4: idle, non-bridge, credential resolvable).
func (r *Registry) Callable() []AgentState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []AgentState
	for _, a := range r.agents {
		if a.Callable() {
			out = append(out, a.snapshot())
		}
	}
	return out
}

// SetStatus transitions an agent's status and, when moving into working,
// records the owning task id; moving out of working clears it.
func (r *Registry) SetStatus(id string, status Status, taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return
	}
	a.Status = status
	if status == StatusWorking {
		a.CurrentTaskID = taskID
	} else {
		a.CurrentTaskID = ""
	}
	r.publish(statusTopic(status), id, fmt.Sprintf("agent %s -> %s", id, status))
}

func statusTopic(s Status) string {
	switch s {
	case StatusWorking:
		return bus.TopicAgentWorking
	case StatusIdle:
		return bus.TopicAgentIdle
	case StatusCooldown:
		return bus.TopicAgentCooldown
	case StatusError:
		return bus.TopicAgentError
	default:
		return bus.TopicAgentIdle
	}
}

// DrainEnergy debits energy for a completed task, credits tokens used,
// increments tasksCompleted, and applies the xp/level formula (spec §4.9
// step 3): cost = min(5, ceil(tokens/1000)); xp += 20 + min(30,
// floor(tokens/100)); level = floor(xp/300) + 1.
func (r *Registry) DrainEnergy(id string, tokens int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return
	}
	cost := minInt(5, int(math.Ceil(float64(tokens)/1000.0)))
	a.Energy -= cost
	if a.Energy < 0 {
		a.Energy = 0
	}
	a.TotalTokensUsed += tokens
	a.TasksCompleted++
	a.XP += xpPerTaskBase + minInt(xpPerTaskTokenCapped, tokens/xpTokenDivisor)
	a.Level = a.XP/xpPerLevel + 1
	r.publish(bus.TopicAgentXPGained, id, fmt.Sprintf("agent %s gained xp, level %d", id, a.Level))
}

// RecordError increments the error counter (called on non-rate-limit
// transport failures before the orchestrator decides idle vs error).
func (r *Registry) RecordError(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return
	}
	a.ErrorCount++
}

// SetCooldown puts an agent into cooldown for durationMs from now.
func (r *Registry) SetCooldown(id string, durationMs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return
	}
	until := r.now() + durationMs
	a.CooldownUntil = &until
	a.Status = StatusCooldown
	a.CurrentTaskID = ""
	r.publish(bus.TopicAgentCooldown, id, fmt.Sprintf("agent %s cooling down until %d", id, until))
}

// RechargeAll is the 30s recharge tick (spec §4.9): every non-offline,
// non-working agent gains max(5, configured rechargeRate) energy up to
// maxEnergy, and any expired cooldown is cleared back to idle.
func (r *Registry) RechargeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for id, a := range r.agents {
		if a.CooldownUntil != nil && *a.CooldownUntil <= now {
			a.CooldownUntil = nil
			a.Status = StatusIdle
			r.publish(bus.TopicAgentIdle, id, fmt.Sprintf("agent %s cooldown expired", id))
		}
		if a.Status == StatusWorking || a.Status == StatusOffline {
			continue
		}
		rate := maxInt(minRechargeRate, a.Config.EnergyRechargeRate)
		a.Energy = minInt(a.MaxEnergy, a.Energy+rate)
	}
}

// Reload diffs a freshly parsed agent-config list against the current map:
// new ids are added with fresh state, removed ids are deleted from the map
// (a removed agent that is currently working is kept, state unchanged), and
// ids present in both have their declared config fields
// updated in place without resetting runtime counters (spec §4.4 addition).
func (r *Registry) Reload(cfgs []AgentConfig, resolve CredentialResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(cfgs))
	for _, cfg := range cfgs {
		seen[cfg.ID] = true
		if a, exists := r.agents[cfg.ID]; exists {
			rate := cfg.EnergyRechargeRate
			if rate <= 0 {
				rate = defaultRechargeRate
			}
			cfg.EnergyRechargeRate = rate
			a.Config = cfg
			if cfg.CredentialEnvVar != "" {
				a.credentialResolved = resolve != nil && resolve(cfg)
				if !a.credentialResolved && a.Status != StatusWorking {
					a.Status = StatusOffline
				}
			} else {
				a.credentialResolved = true
			}
			continue
		}
		r.addLocked(cfg, resolve)
	}

	for id, a := range r.agents {
		if seen[id] {
			continue
		}
		if a.Status != StatusWorking {
			delete(r.agents, id)
			r.publish(bus.TopicAgentRemoved, id, fmt.Sprintf("agent %s removed on reload", id))
		}
	}
}

func (r *Registry) publish(topic, agentID, msg string) {
	if r.bus == nil {
		return
	}
	r.bus.PublishActivity(topic, agentID, msg)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
