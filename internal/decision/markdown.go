package decision

import (
	"fmt"
	"strings"
)

// RenderMarkdown renders a verdict as a Markdown fragment. Reporting embeds
// it below the performance tables.
func RenderMarkdown(v Verdict) string {
	var sb strings.Builder

	word := "PASS"
	if !v.Pass {
		word = "FAIL"
	}
	sb.WriteString(fmt.Sprintf("## Verdict: %s\n\n", word))

	sb.WriteString("| # | Check | Want | Got | Status |\n")
	sb.WriteString("|---|-------|------|-----|--------|\n")
	passed := 0
	for i, c := range v.Checks {
		status := "PASS"
		if c.Pass {
			passed++
		} else {
			status = "FAIL"
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
			i+1, c.Name, c.Want, c.Got, status))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Checks: %d/%d passed\n", passed, len(v.Checks)))

	if !v.Pass {
		sb.WriteString("\nFailed:\n")
		for _, c := range v.FailedChecks() {
			sb.WriteString(fmt.Sprintf("- %s: got %s, want %s\n", c.Name, c.Got, c.Want))
		}
	}

	return sb.String()
}
