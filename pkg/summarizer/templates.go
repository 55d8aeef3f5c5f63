package summarizer

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/echo-dev/echo/pkg/events"
)

// spokenOrdinals renders option positions 1-10 as words, digits beyond,
// per spec §4.2: "spoken ordinals 1–10, digits beyond".
var spokenOrdinals = [...]string{
	"one", "two", "three", "four", "five",
	"six", "seven", "eight", "nine", "ten",
}

func ordinalWord(n int) string {
	if n >= 1 && n <= len(spokenOrdinals) {
		return spokenOrdinals[n-1]
	}
	return fmt.Sprintf("%d", n)
}

// renderToolEvent renders a single tool_executed event per the spec's
// input->output-rule table (§4.2).
func renderToolEvent(e events.RawEvent) string {
	switch e.ToolName {
	case "Bash":
		cmd, _ := e.ToolInput["command"].(string)
		return "Ran command: " + truncate(cmd, 60)
	case "Read":
		return "Read " + basenameOf(e.ToolInput, "file_path", "path")
	case "Edit":
		return "Edited " + basenameOf(e.ToolInput, "file_path", "path")
	case "Write":
		return "Created " + basenameOf(e.ToolInput, "file_path", "path")
	case "Glob":
		pattern, _ := e.ToolInput["pattern"].(string)
		return "Searched for files matching " + pattern
	case "Grep":
		pattern, _ := e.ToolInput["pattern"].(string)
		return "Searched code for " + pattern
	case "Task":
		return "Launched a sub-agent"
	case "WebFetch":
		return "Fetched a web page"
	case "WebSearch":
		query, _ := e.ToolInput["query"].(string)
		return "Searched the web for " + query
	default:
		return "Used " + e.ToolName + " tool"
	}
}

func basenameOf(input map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := input[k].(string); ok && v != "" {
			return filepath.Base(v)
		}
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// toolVerbAndNoun returns the imperative verb and plural noun used when batching
// same-tool events together (spec §4.2: "{Verb} {n} {nouns}.").
func toolVerbAndNoun(toolName string) (verb, noun string) {
	switch toolName {
	case "Read":
		return "Read", "files"
	case "Edit":
		return "Edited", "files"
	case "Write":
		return "Created", "files"
	case "Bash":
		return "ran", "commands"
	case "Glob", "Grep":
		return "ran", "searches"
	default:
		return "used", strings.ToLower(toolName) + " tool"
	}
}

// toolPhrase describes a batch entry of homogeneous tool calls, e.g.
// "Edited 3 files" or "ran a command" for a singleton.
func toolPhrase(toolName string, count int) string {
	verb, noun := toolVerbAndNoun(toolName)
	if count == 1 {
		article := "a"
		singular := strings.TrimSuffix(noun, "s")
		if startsWithVowelSound(singular) {
			article = "an"
		}
		return fmt.Sprintf("%s %s %s", strings.ToLower(verb), article, singular)
	}
	return fmt.Sprintf("%s %d %s", capitalize(verb), count, noun)
}

func startsWithVowelSound(s string) bool {
	if s == "" {
		return false
	}
	switch s[0] {
	case 'a', 'e', 'i', 'o', 'u', 'A', 'E', 'I', 'O', 'U':
		return true
	default:
		return false
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// renderBatch renders a flushed Batch of tool_executed events into a single
// Narration text, per spec §4.2: same-tool batches get "{Verb} {n}
// {nouns}.", mixed-tool batches get pair-joined phrases, e.g. "Edited 2
// files and ran a command."
func renderBatch(b events.Batch) string {
	if b.Empty() {
		return ""
	}
	if b.Len() == 1 {
		return renderToolEvent(b.Events[0])
	}

	order := []string{}
	counts := map[string]int{}
	for _, e := range b.Events {
		if _, seen := counts[e.ToolName]; !seen {
			order = append(order, e.ToolName)
		}
		counts[e.ToolName]++
	}

	if len(order) == 1 {
		// homogeneous batch: "Edited 3 files."
		return capitalize(toolPhrase(order[0], counts[order[0]])) + "."
	}

	phrases := make([]string, 0, len(order))
	for i, tool := range order {
		p := toolPhrase(tool, counts[tool])
		if i == 0 {
			p = capitalize(p)
		}
		phrases = append(phrases, p)
	}
	return joinWithAnd(phrases) + "."
}

func joinWithAnd(phrases []string) string {
	switch len(phrases) {
	case 0:
		return ""
	case 1:
		return phrases[0]
	default:
		return strings.Join(phrases[:len(phrases)-1], ", ") + " and " + phrases[len(phrases)-1]
	}
}

// renderBlocked renders an agent_blocked event per spec §4.2's block-reason
// rules, appending spoken options when present.
func renderBlocked(e events.RawEvent) string {
	var base string
	switch e.BlockReason {
	case events.BlockPermissionPrompt:
		base = "The agent needs your permission and is waiting for your answer. It's asking: " + e.Message
	case events.BlockQuestion:
		base = "The agent has a question and is waiting for your answer. It's asking: " + e.Message
	case events.BlockIdlePrompt:
		base = "The agent is idle and waiting for your input."
	default:
		base = "The agent is blocked and needs your attention."
		if e.Message != "" {
			base += " " + e.Message
		}
	}

	if len(e.Options) > 0 {
		base += " " + renderOptions(e.Options)
	}
	return base
}

func renderOptions(options []string) string {
	var b strings.Builder
	for i, opt := range options {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(fmt.Sprintf("Option %s: %s.", ordinalWord(i+1), opt))
	}
	return b.String()
}

// renderStopped renders an agent_stopped event per spec §4.2.
func renderStopped(e events.RawEvent) string {
	if e.StopReason == "" {
		return "Agent finished."
	}
	return "Agent stopped: " + e.StopReason
}

// renderSessionStart renders a session_start event per spec §4.2.
func renderSessionStart(events.RawEvent) string {
	return "New coding session started."
}

// renderSessionEnd renders a session_end event per spec §4.2.
func renderSessionEnd(events.RawEvent) string {
	return "Session ended."
}
