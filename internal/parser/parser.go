// Package parser implements the Output Parser: extraction of FILE, EXEC,
// and SUBTASK structured blocks from raw model text by literal delimiter
// scanning, in the line-oriented matching style used throughout this
// codebase's response post-processing.
package parser

import (
	"strings"
)

// FileIntent is a file the model asked to have written.
type FileIntent struct {
	Path    string
	Content string
}

// CommandIntent is a shell command the model asked to have executed.
type CommandIntent struct {
	Cwd     string
	Command string
}

// SubtaskIntent is a child task the model asked to have created.
type SubtaskIntent struct {
	Title       string
	AgentID     string // specific id, or "auto"
	Description string
}

// Parsed is the structured result of parsing one model response.
type Parsed struct {
	Files       []FileIntent
	Commands    []CommandIntent
	Subtasks    []SubtaskIntent
	Explanation string
}

const (
	markerFile       = "FILE"
	markerContent    = "CONTENT"
	markerEndFile    = "END_FILE"
	markerExec       = "EXEC"
	markerEndExec    = "END_EXEC"
	markerSubtask    = "SUBTASK"
	markerEndSubtask = "END_SUBTASK"
)

// Parse extracts every FILE/EXEC/SUBTASK block from raw model text.
// Matching is repeated and non-overlapping; blocks may appear in any
// order. Malformed blocks — a header with no matching terminator, or a
// header missing its required fields — are dropped silently: the model's
// well-formed output still makes progress. The residual explanation is the
// input with every recognized block's lines removed and consecutive blank
// lines collapsed.
func Parse(raw string) Parsed {
	lines := strings.Split(raw, "\n")
	var out Parsed
	consumed := make([]bool, len(lines))

	i := 0
	for i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])
		switch trimmed {
		case markerFile:
			if end, fi, ok := parseFileBlock(lines, i); ok {
				out.Files = append(out.Files, fi)
				markConsumed(consumed, i, end)
				i = end + 1
				continue
			}
		case markerExec:
			if end, ci, ok := parseExecBlock(lines, i); ok {
				out.Commands = append(out.Commands, ci)
				markConsumed(consumed, i, end)
				i = end + 1
				continue
			}
		case markerSubtask:
			if end, si, ok := parseSubtaskBlock(lines, i); ok {
				out.Subtasks = append(out.Subtasks, si)
				markConsumed(consumed, i, end)
				i = end + 1
				continue
			}
		}
		i++
	}

	out.Explanation = residual(lines, consumed)
	return out
}

func markConsumed(consumed []bool, from, to int) {
	for i := from; i <= to && i < len(consumed); i++ {
		consumed[i] = true
	}
}

func residual(lines []string, consumed []bool) string {
	var kept []string
	for i, line := range lines {
		if !consumed[i] {
			kept = append(kept, line)
		}
	}
	return collapseBlankLines(strings.Join(kept, "\n"))
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	prevBlank := false
	for _, l := range lines {
		blank := strings.TrimSpace(l) == ""
		if blank && prevBlank {
			continue
		}
		out = append(out, l)
		prevBlank = blank
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// fieldValue reports whether line (after trimming) begins with "prefix:"
// and returns the remainder, trimmed.
func fieldValue(line, prefix string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	p := prefix + ":"
	if !strings.HasPrefix(trimmed, p) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(trimmed, p)), true
}

func parseFileBlock(lines []string, start int) (end int, fi FileIntent, ok bool) {
	i := start + 1
	if i >= len(lines) {
		return 0, FileIntent{}, false
	}
	path, ok := fieldValue(lines[i], "path")
	if !ok || path == "" {
		return 0, FileIntent{}, false
	}
	i++
	if i >= len(lines) || strings.TrimSpace(lines[i]) != markerContent {
		return 0, FileIntent{}, false
	}
	i++
	contentStart := i
	for i < len(lines) && strings.TrimSpace(lines[i]) != markerEndFile {
		i++
	}
	if i >= len(lines) {
		return 0, FileIntent{}, false // unterminated
	}
	content := strings.Join(lines[contentStart:i], "\n")
	return i, FileIntent{Path: path, Content: content}, true
}

func parseExecBlock(lines []string, start int) (end int, ci CommandIntent, ok bool) {
	i := start + 1
	if i >= len(lines) {
		return 0, CommandIntent{}, false
	}
	cwd, ok := fieldValue(lines[i], "cwd")
	if !ok {
		return 0, CommandIntent{}, false
	}
	i++
	if i >= len(lines) {
		return 0, CommandIntent{}, false
	}
	cmd, ok := fieldValue(lines[i], "cmd")
	if !ok || cmd == "" {
		return 0, CommandIntent{}, false
	}
	i++
	if i >= len(lines) || strings.TrimSpace(lines[i]) != markerEndExec {
		return 0, CommandIntent{}, false
	}
	return i, CommandIntent{Cwd: cwd, Command: cmd}, true
}

func parseSubtaskBlock(lines []string, start int) (end int, si SubtaskIntent, ok bool) {
	i := start + 1
	if i >= len(lines) {
		return 0, SubtaskIntent{}, false
	}
	title, ok := fieldValue(lines[i], "title")
	if !ok || title == "" {
		return 0, SubtaskIntent{}, false
	}
	i++
	if i >= len(lines) {
		return 0, SubtaskIntent{}, false
	}
	agentID, ok := fieldValue(lines[i], "agent")
	if !ok || agentID == "" {
		return 0, SubtaskIntent{}, false
	}
	i++
	if i >= len(lines) {
		return 0, SubtaskIntent{}, false
	}
	desc, ok := fieldValue(lines[i], "description")
	if !ok {
		return 0, SubtaskIntent{}, false
	}
	i++
	descLines := []string{desc}
	for i < len(lines) && strings.TrimSpace(lines[i]) != markerEndSubtask {
		descLines = append(descLines, lines[i])
		i++
	}
	if i >= len(lines) {
		return 0, SubtaskIntent{}, false // unterminated
	}
	return i, SubtaskIntent{
		Title:       title,
		AgentID:     agentID,
		Description: strings.TrimSpace(strings.Join(descLines, "\n")),
	}, true
}

// EstimateTokens is the fallback token count used when a backend response
// carries no usage field: ceil(len(text)/4) (spec §4.6/§6).
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}

// Render serializes Parsed back into delimited blocks plus the residual
// explanation — the inverse of Parse, used only by tests to check the
// round-trip property.
func Render(p Parsed) string {
	var b strings.Builder
	if p.Explanation != "" {
		b.WriteString(p.Explanation)
		b.WriteString("\n")
	}
	for _, f := range p.Files {
		b.WriteString(markerFile + "\n")
		b.WriteString("path: " + f.Path + "\n")
		b.WriteString(markerContent + "\n")
		b.WriteString(f.Content + "\n")
		b.WriteString(markerEndFile + "\n")
	}
	for _, c := range p.Commands {
		b.WriteString(markerExec + "\n")
		b.WriteString("cwd: " + c.Cwd + "\n")
		b.WriteString("cmd: " + c.Command + "\n")
		b.WriteString(markerEndExec + "\n")
	}
	for _, s := range p.Subtasks {
		b.WriteString(markerSubtask + "\n")
		b.WriteString("title: " + s.Title + "\n")
		b.WriteString("agent: " + s.AgentID + "\n")
		b.WriteString("description: " + s.Description + "\n")
		b.WriteString(markerEndSubtask + "\n")
	}
	return b.String()
}
