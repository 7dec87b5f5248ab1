package backend

import (
	"fmt"
	"strings"

	"github.com/Rikinshah787/agentos/internal/memoryjson"
)

// SkillTemplate is one role-agnostic skill whose template text is injected
// into the system prompt whenever its triggers appear in a task description.
type SkillTemplate struct {
	Triggers []string // matched case-insensitively as substrings
	Template string
}

// RolePreambles maps a role tag to its preamble paragraph; an unrecognized
// role falls back to a generic one.
var RolePreambles = map[string]string{
	"general":   "You are a capable software engineering agent working autonomously on a task queue.",
	"backend":   "You are a backend engineering agent focused on services, APIs, and data plumbing.",
	"frontend":  "You are a frontend engineering agent focused on UI and client-side behavior.",
	"reviewer":  "You are a code review agent focused on correctness, clarity, and risk.",
	"architect": "You are a systems design agent focused on structure and long-term maintainability.",
}

const defaultRolePreamble = "You are an autonomous software engineering agent."

// PromptInputs carries everything the adaptive composer needs about one
// task and the agent being assigned to it (spec §4.6).
type PromptInputs struct {
	AgentID     string
	AgentName   string
	Role        string
	TaskTitle   string
	TaskDesc    string
	Skills      []SkillTemplate
	Overall     float64
	RecentFails int
	History     []memoryjson.TaskHistoryEntry // oldest first, as RecentHistory returns it; only the first 5 are used
}

// ComposeSystemPrompt builds the adaptive system prompt: role preamble,
// matched skill templates, one adaptive hint, recent-memory context, and
// the structured-output marker rules (spec §4.6).
func ComposeSystemPrompt(in PromptInputs) string {
	var b strings.Builder

	preamble, ok := RolePreambles[strings.ToLower(in.Role)]
	if !ok {
		preamble = defaultRolePreamble
	}
	b.WriteString(preamble)
	b.WriteString("\n")

	taskText := in.TaskTitle + " " + in.TaskDesc
	lowerTaskText := strings.ToLower(taskText)
	for _, skill := range in.Skills {
		for _, trigger := range skill.Triggers {
			if strings.Contains(lowerTaskText, strings.ToLower(trigger)) {
				b.WriteString("\n")
				b.WriteString(skill.Template)
				break
			}
		}
	}

	b.WriteString("\n\n")
	b.WriteString(adaptiveHint(in.Overall, in.RecentFails))

	if len(in.History) > 0 {
		b.WriteString("\n\nRecent task history:\n")
		n := in.History
		if len(n) > 5 {
			n = n[:5]
		}
		for _, h := range n {
			b.WriteString(fmt.Sprintf("- [%s] %s (%s): %s", h.AgentName, h.Title, h.TaskID, firstChars(h.Explanation, 120)))
			if len(h.FilePaths) > 0 {
				b.WriteString(" files: " + strings.Join(h.FilePaths, ", "))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(structuredOutputRules)

	return b.String()
}

// adaptiveHint picks exactly one of three tiers (spec §4.6):
// ≥3 recent fails -> strict-format reminder; overall<40 -> format nudge;
// overall>=75 -> initiative grant. Otherwise no hint is appended.
func adaptiveHint(overall float64, recentFails int) string {
	switch {
	case recentFails >= 3:
		return "Your recent outputs have repeatedly failed to follow the required block format. Double-check every FILE/EXEC/SUBTASK block against the exact delimiter syntax before responding."
	case overall < 40:
		return "Remember to use the exact FILE/EXEC/SUBTASK delimiter syntax for any file, command, or subtask you want applied."
	case overall >= 75:
		return "You have a strong track record here. Feel free to take initiative: split work into subtasks, run verification commands, and go beyond the literal request where it clearly helps."
	default:
		return ""
	}
}

const structuredOutputRules = `Structured output markers:
FILE / path: <rel> / CONTENT / <raw content> / END_FILE
EXEC / cwd: <rel> / cmd: <single line> / END_EXEC
SUBTASK / title: <line> / agent: <id-or-"auto"> / description: <text> / END_SUBTASK
Any code emitted in a FILE block must be complete and runnable, not a fragment.`

func firstChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
