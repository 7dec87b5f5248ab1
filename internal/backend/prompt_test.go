package backend

import (
	"strings"
	"testing"

	"github.com/Rikinshah787/agentos/internal/memoryjson"
)

func TestComposeSystemPromptIncludesRolePreamble(t *testing.T) {
	prompt := ComposeSystemPrompt(PromptInputs{Role: "backend", TaskTitle: "x", TaskDesc: "y"})
	if !strings.Contains(prompt, RolePreambles["backend"]) {
		t.Fatal("expected backend role preamble in prompt")
	}
}

func TestComposeSystemPromptUnknownRoleFallsBack(t *testing.T) {
	prompt := ComposeSystemPrompt(PromptInputs{Role: "nonexistent-role"})
	if !strings.Contains(prompt, defaultRolePreamble) {
		t.Fatal("expected default preamble fallback for unknown role")
	}
}

func TestComposeSystemPromptMatchesSkillTrigger(t *testing.T) {
	skills := []SkillTemplate{
		{Triggers: []string{"docker"}, Template: "Use multi-stage Dockerfiles."},
		{Triggers: []string{"graphql"}, Template: "Prefer typed resolvers."},
	}
	prompt := ComposeSystemPrompt(PromptInputs{TaskDesc: "containerize with Docker", Skills: skills})
	if !strings.Contains(prompt, "multi-stage Dockerfiles") {
		t.Fatal("expected matched skill template to be injected")
	}
	if strings.Contains(prompt, "typed resolvers") {
		t.Fatal("unmatched skill template must not be injected")
	}
}

func TestAdaptiveHintTiersAreExclusive(t *testing.T) {
	strict := adaptiveHint(50, 3)
	if !strings.Contains(strict, "repeatedly failed") {
		t.Fatalf("expected strict-format hint, got %q", strict)
	}

	nudge := adaptiveHint(20, 0)
	if !strings.Contains(nudge, "exact FILE/EXEC/SUBTASK") {
		t.Fatalf("expected format-nudge hint, got %q", nudge)
	}

	initiative := adaptiveHint(80, 0)
	if !strings.Contains(initiative, "take initiative") {
		t.Fatalf("expected initiative-grant hint, got %q", initiative)
	}

	none := adaptiveHint(60, 1)
	if none != "" {
		t.Fatalf("expected no hint in the middle band, got %q", none)
	}
}

func TestAdaptiveHintRecentFailsTakesPriorityOverOverall(t *testing.T) {
	// overall >= 75 would normally grant initiative, but >=3 recent fails
	// must win.
	hint := adaptiveHint(90, 3)
	if !strings.Contains(hint, "repeatedly failed") {
		t.Fatalf("expected recent-fail hint to take priority, got %q", hint)
	}
}

func TestComposeSystemPromptTruncatesHistoryToFive(t *testing.T) {
	var hist []memoryjson.TaskHistoryEntry
	for i := 0; i < 8; i++ {
		hist = append(hist, memoryjson.TaskHistoryEntry{TaskID: "t", Title: "title", AgentName: "a", Explanation: "exp"})
	}
	prompt := ComposeSystemPrompt(PromptInputs{History: hist})
	if strings.Count(prompt, "[a] title (t)") != 5 {
		t.Fatalf("expected exactly 5 history lines, got %d occurrences", strings.Count(prompt, "[a] title (t)"))
	}
}

func TestComposeSystemPromptIncludesStructuredMarkerRules(t *testing.T) {
	prompt := ComposeSystemPrompt(PromptInputs{})
	if !strings.Contains(prompt, "END_SUBTASK") || !strings.Contains(prompt, "complete and runnable") {
		t.Fatal("expected structured-output marker rules in every composed prompt")
	}
}

func TestFirstCharsTruncates(t *testing.T) {
	if got := firstChars("hello world", 5); got != "hello" {
		t.Fatalf("firstChars = %q", got)
	}
	if got := firstChars("hi", 5); got != "hi" {
		t.Fatalf("firstChars = %q", got)
	}
}
