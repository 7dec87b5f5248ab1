package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Rikinshah787/agentos/internal/registry"
)

func writeFleet(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fleet.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fleet: %v", err)
	}
	return path
}

func TestLoadMissingFileReturnsEmptyDocument(t *testing.T) {
	doc, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(doc.Agents) != 0 {
		t.Fatalf("expected empty fleet, got %d agents", len(doc.Agents))
	}
}

func TestLoadValidFleet(t *testing.T) {
	path := writeFleet(t, `
agents:
  - id: claude-1
    display_name: Claude
    provider: anthropic
    model: claude-opus
    credential_env: ANTHROPIC_API_KEY
    role: backend
  - id: bridge-1
    provider: cursor-bridge
    model: n/a
`)
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(doc.Agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(doc.Agents))
	}
	cfgs := doc.ToRegistryConfigs()
	if cfgs[0].ID != "claude-1" || cfgs[0].Provider != registry.ProviderAnthropic {
		t.Fatalf("unexpected first agent: %+v", cfgs[0])
	}
	if cfgs[1].DisplayName != "bridge-1" {
		t.Fatalf("expected id fallback for missing display_name, got %q", cfgs[1].DisplayName)
	}
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	path := writeFleet(t, `
agents:
  - id: incomplete
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing provider/model")
	}
}

func TestResolveCredentialNoEnvVarAlwaysResolves(t *testing.T) {
	resolve := ResolveCredential(func(string) string { return "" })
	cfg := registry.AgentConfig{ID: "a"}
	if !resolve(cfg) {
		t.Fatal("expected true when no credential env var is declared")
	}
}

func TestResolveCredentialChecksDeclaredVar(t *testing.T) {
	env := map[string]string{"FOO_KEY": "secret"}
	resolve := ResolveCredential(func(k string) string { return env[k] })
	if !resolve(registry.AgentConfig{CredentialEnvVar: "FOO_KEY"}) {
		t.Fatal("expected resolved=true")
	}
	if resolve(registry.AgentConfig{CredentialEnvVar: "MISSING_KEY"}) {
		t.Fatal("expected resolved=false for unset var")
	}
}
