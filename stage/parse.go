package stage

import "strings"

// stripCodeFence removes a surrounding Markdown code fence from model
// output. Models regularly wrap requested JSON in ```json fences even when
// told not to; parsers here must tolerate both fenced and bare output.
func stripCodeFence(s string) string {
	if strings.Contains(s, "```json") {
		after := strings.SplitN(s, "```json", 2)[1]
		return strings.TrimSpace(strings.SplitN(after, "```", 2)[0])
	}
	if strings.Contains(s, "```") {
		parts := strings.Split(s, "```")
		if len(parts) >= 3 {
			inner := parts[1]
			// Drop a language tag on the fence line.
			if idx := strings.Index(inner, "\n"); idx >= 0 {
				inner = inner[idx+1:]
			}
			return strings.TrimSpace(inner)
		}
	}
	return strings.TrimSpace(s)
}

// extractMarkdown unwraps a draft that the model returned inside a
// ```markdown fence, leaving plain output untouched.
func extractMarkdown(s string) string {
	if strings.Contains(s, "```markdown") {
		after := strings.SplitN(s, "```markdown", 2)[1]
		return strings.TrimSpace(strings.SplitN(after, "```", 2)[0])
	}
	if strings.HasPrefix(strings.TrimSpace(s), "```") {
		return stripCodeFence(s)
	}
	return strings.TrimSpace(s)
}
