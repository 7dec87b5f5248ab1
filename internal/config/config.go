// Package config implements the Config Loader: it parses the YAML
// agent-fleet document into Agent Registry configuration, resolves each
// declared credential env var into a secret as a pure function of
// (AgentConfig, environment snapshot) — adapters receive the secret as an
// argument and do not look up the agent's credential variable themselves
// (spec §9's "implicit environment coupling" redesign note); the Anthropic
// adapter does read ANTHROPIC_BASE_URL from the environment for its endpoint —
// and validates the parsed document against a JSON Schema before it reaches
// the registry.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/Rikinshah787/agentos/internal/registry"
)

// AgentEntry is the YAML shape of one fleet member (spec §6 "Agent
// configuration file").
type AgentEntry struct {
	ID                 string         `yaml:"id"`
	DisplayName        string         `yaml:"display_name"`
	Provider           string         `yaml:"provider"`
	Endpoint           string         `yaml:"endpoint,omitempty"`
	CredentialEnvVar   string         `yaml:"credential_env,omitempty"`
	ModelID            string         `yaml:"model"`
	AvatarTag          string         `yaml:"avatar,omitempty"`
	RoleTag            string         `yaml:"role,omitempty"`
	MaxTokens          int            `yaml:"max_tokens,omitempty"`
	EnergyRechargeRate int            `yaml:"energy_recharge_rate,omitempty"`
	// ChatTemplateKwargs is the extra_body.chat_template_kwargs passthrough
	// the "nim" provider kind requires (spec §6, e.g. {"thinking": true}).
	ChatTemplateKwargs map[string]any `yaml:"chat_template_kwargs,omitempty"`
}

// Document is the top-level YAML shape: an array of fleet members.
type Document struct {
	Agents []AgentEntry `yaml:"agents"`
}

// schemaJSON constrains the parsed document's shape: every agent needs a
// non-empty id, provider, and model before it reaches the registry.
const schemaJSON = `{
	"type": "object",
	"properties": {
		"agents": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "provider", "model"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"display_name": {"type": "string"},
					"provider": {
						"type": "string",
						"enum": ["openai-compatible", "nim", "gemini", "anthropic", "cursor-bridge", "copilot-bridge"]
					},
					"endpoint": {"type": "string"},
					"credential_env": {"type": "string"},
					"model": {"type": "string", "minLength": 1},
					"avatar": {"type": "string"},
					"role": {"type": "string"},
					"max_tokens": {"type": "integer", "minimum": 0},
					"energy_recharge_rate": {"type": "integer", "minimum": 0},
					"chat_template_kwargs": {"type": "object"}
				}
			}
		}
	}
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("config: invalid embedded schema: %v", err))
	}
	if err := c.AddResource("fleet.json", doc); err != nil {
		panic(fmt.Sprintf("config: add schema resource: %v", err))
	}
	schema, err := c.Compile("fleet.json")
	if err != nil {
		panic(fmt.Sprintf("config: compile schema: %v", err))
	}
	return schema
}

// Load reads and validates the fleet document at path. A missing file is
// not fatal: it returns an empty Document so the Agent Registry can start
// with zero callable agents (spec §8 boundary behavior). A malformed file
// (bad YAML, or shape rejected by the schema) is returned as an error; the
// caller is expected to log a warning and fall back to the prior fleet.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Document{}, nil
		}
		return Document{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return Document{}, nil
	}

	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := compiledSchema.Validate(yamlToJSONShape(raw)); err != nil {
		return Document{}, fmt.Errorf("config: fleet document failed validation: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("config: decode yaml: %w", err)
	}
	return doc, nil
}

// yamlToJSONShape recursively converts yaml.v3's map[string]interface{} (it
// decodes YAML mappings directly into that shape already) into the
// map[string]any shape jsonschema.Validate expects, normalizing nested
// slices/maps the same way.
func yamlToJSONShape(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = yamlToJSONShape(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = yamlToJSONShape(val)
		}
		return out
	default:
		return v
	}
}

// ToRegistryConfigs converts the parsed document's entries into the shape
// the Agent Registry seeds AgentState from.
func (d Document) ToRegistryConfigs() []registry.AgentConfig {
	out := make([]registry.AgentConfig, 0, len(d.Agents))
	for _, e := range d.Agents {
		out = append(out, registry.AgentConfig{
			ID:                 e.ID,
			DisplayName:        displayNameOrID(e),
			Provider:           registry.ProviderKind(e.Provider),
			Endpoint:           e.Endpoint,
			CredentialEnvVar:   e.CredentialEnvVar,
			ModelID:            e.ModelID,
			AvatarTag:          e.AvatarTag,
			RoleTag:            e.RoleTag,
			MaxTokens:          e.MaxTokens,
			EnergyRechargeRate: e.EnergyRechargeRate,
			ChatTemplateKwargs: e.ChatTemplateKwargs,
		})
	}
	return out
}

func displayNameOrID(e AgentEntry) string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	return e.ID
}

// ResolveCredential is the pure (config, environment) -> Option<secret>
// function the registry uses to decide whether an agent starts idle or
// offline. getenv is injected so tests can supply a fixed environment
// snapshot instead of the process environment.
func ResolveCredential(getenv func(string) string) registry.CredentialResolver {
	if getenv == nil {
		getenv = os.Getenv
	}
	return func(cfg registry.AgentConfig) bool {
		if cfg.CredentialEnvVar == "" {
			return true
		}
		return getenv(cfg.CredentialEnvVar) != ""
	}
}
