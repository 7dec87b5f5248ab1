package registry

import (
	"testing"

	"github.com/Rikinshah787/agentos/internal/bus"
)

func resolveAlways(ok bool) CredentialResolver {
	return func(AgentConfig) bool { return ok }
}

func TestLoadOfflineWhenCredentialUnresolved(t *testing.T) {
	r := New(bus.New())
	r.Load([]AgentConfig{
		{ID: "a1", CredentialEnvVar: "MISSING_KEY"},
	}, resolveAlways(false))

	a, ok := r.Get("a1")
	if !ok {
		t.Fatal("expected agent a1")
	}
	if a.Status != StatusOffline {
		t.Fatalf("status = %v, want offline", a.Status)
	}
	if len(r.Callable()) != 0 {
		t.Fatal("offline agent must not be callable")
	}
}

func TestLoadIdleWhenNoCredentialRequired(t *testing.T) {
	r := New(bus.New())
	r.Load([]AgentConfig{{ID: "a1"}}, nil)
	a, _ := r.Get("a1")
	if a.Status != StatusIdle {
		t.Fatalf("status = %v, want idle", a.Status)
	}
	if len(r.Callable()) != 1 {
		t.Fatal("expected one callable agent")
	}
}

func TestBridgeProviderNeverCallable(t *testing.T) {
	r := New(bus.New())
	r.Load([]AgentConfig{{ID: "bridge1", Provider: ProviderCursorBridge}}, resolveAlways(true))
	if len(r.Callable()) != 0 {
		t.Fatal("bridge agent must never be callable")
	}
}

func TestDrainEnergyAndXP(t *testing.T) {
	r := New(bus.New())
	r.Load([]AgentConfig{{ID: "a1"}}, nil)

	r.DrainEnergy("a1", 2500) // cost = min(5, ceil(2.5)) = 3; xp += 20+min(30,25)=45
	a, _ := r.Get("a1")
	if a.Energy != defaultMaxEnergy-3 {
		t.Fatalf("energy = %d, want %d", a.Energy, defaultMaxEnergy-3)
	}
	if a.XP != 45 {
		t.Fatalf("xp = %d, want 45", a.XP)
	}
	if a.Level != 1 {
		t.Fatalf("level = %d, want 1", a.Level)
	}
	if a.TasksCompleted != 1 {
		t.Fatalf("tasksCompleted = %d, want 1", a.TasksCompleted)
	}
}

func TestLevelUpAtXPThreshold(t *testing.T) {
	r := New(bus.New())
	r.Load([]AgentConfig{{ID: "a1"}}, nil)
	for i := 0; i < 7; i++ {
		r.DrainEnergy("a1", 10000) // xp += 50 each call -> 350 after 7
	}
	a, _ := r.Get("a1")
	if a.XP != 350 {
		t.Fatalf("xp = %d, want 350", a.XP)
	}
	if a.Level != 2 {
		t.Fatalf("level = %d, want 2 (floor(350/300)+1)", a.Level)
	}
}

func TestCooldownBlocksCallableUntilCleared(t *testing.T) {
	now := int64(1000)
	r := New(bus.New())
	r.SetClock(func() int64 { return now })
	r.Load([]AgentConfig{{ID: "a1"}}, nil)

	r.SetCooldown("a1", 60_000)
	a, _ := r.Get("a1")
	if a.Status != StatusCooldown || a.CooldownUntil == nil {
		t.Fatal("expected agent in cooldown")
	}
	if len(r.Callable()) != 0 {
		t.Fatal("agent in cooldown must not be callable")
	}

	now += 60_001
	r.RechargeAll()
	a, _ = r.Get("a1")
	if a.Status != StatusIdle {
		t.Fatalf("status = %v, want idle after cooldown expiry", a.Status)
	}
	if len(r.Callable()) != 1 {
		t.Fatal("agent should be callable again after cooldown clears")
	}
}

func TestRechargeAllSkipsWorkingAndOffline(t *testing.T) {
	r := New(bus.New())
	r.Load([]AgentConfig{{ID: "working"}, {ID: "offline", CredentialEnvVar: "X"}}, resolveAlways(false))
	r.SetStatus("working", StatusWorking, "TASK-001")
	r.DrainEnergy("working", 50000) // drop energy below max

	before, _ := r.Get("working")
	r.RechargeAll()
	after, _ := r.Get("working")
	if after.Energy != before.Energy {
		t.Fatal("working agent must not recharge")
	}

	offBefore, _ := r.Get("offline")
	r.RechargeAll()
	offAfter, _ := r.Get("offline")
	if offAfter.Energy != offBefore.Energy {
		t.Fatal("offline agent must not recharge")
	}
}

func TestReloadPreservesRuntimeCountersForExistingAgent(t *testing.T) {
	r := New(bus.New())
	r.Load([]AgentConfig{{ID: "a1", ModelID: "m1"}}, nil)
	r.DrainEnergy("a1", 5000)
	before, _ := r.Get("a1")

	r.Reload([]AgentConfig{{ID: "a1", ModelID: "m2"}}, nil)
	after, _ := r.Get("a1")

	if after.Config.ModelID != "m2" {
		t.Fatalf("modelID = %q, want m2 (config field should update)", after.Config.ModelID)
	}
	if after.XP != before.XP || after.Energy != before.Energy || after.TasksCompleted != before.TasksCompleted {
		t.Fatal("runtime counters must survive reload")
	}
}

func TestReloadAddsAndRemoves(t *testing.T) {
	r := New(bus.New())
	r.Load([]AgentConfig{{ID: "old"}}, nil)
	r.Reload([]AgentConfig{{ID: "new"}}, nil)

	if _, ok := r.Get("old"); ok {
		t.Fatal("old agent should have been removed on reload")
	}
	if _, ok := r.Get("new"); !ok {
		t.Fatal("new agent should have been added on reload")
	}
}

func TestReloadNeverRemovesAWorkingAgent(t *testing.T) {
	r := New(bus.New())
	r.Load([]AgentConfig{{ID: "busy"}}, nil)
	r.SetStatus("busy", StatusWorking, "TASK-001")

	r.Reload([]AgentConfig{}, nil)

	if _, ok := r.Get("busy"); !ok {
		t.Fatal("a working agent must not be deleted mid-task by a reload")
	}
}

func TestEmptyRegistryHasNoCallableAgents(t *testing.T) {
	r := New(bus.New())
	if len(r.Callable()) != 0 {
		t.Fatal("fresh empty registry must report zero callable agents")
	}
}
