// Package review drives the TechLead review of a developed task and turns
// the agent's free-text answer into a verdict the pipeline can act on.
package review

import (
	"regexp"
	"strings"

	"github.com/titabash/kugutsu/internal/task"
)

// verdictHeader matches the explicit verdict line the review prompt asks
// for: `レビュー結果: APPROVED` (full-width colon accepted).
var verdictHeader = regexp.MustCompile(`レビュー結果[:：]\s*(APPROVED|CHANGES_REQUESTED|COMMENTED)`)

// changeRequestKeywords force CHANGES_REQUESTED when no explicit header is
// present. The set is intentionally the one the review prompt's language
// elicits; it is matched case-insensitively for the English entries.
var changeRequestKeywords = []string{
	"修正が必要",
	"修正してください",
	"修正を行ってください",
	"変更が必要",
	"要修正",
	"問題があります",
	"changes required",
	"needs changes",
	"must be fixed",
	"must fix",
}

// approvalKeywords force APPROVED in the keyword fallback pass.
var approvalKeywords = []string{
	"承認します",
	"承認しました",
	"問題ありません",
	"lgtm",
	"approved",
}

// ParseVerdict extracts a verdict from review output in two passes: the
// explicit header first, then keyword matching. When neither matches, the
// defaultVerdict applies. The historical default is APPROVED even when the
// text is ambiguous; callers who want stricter gating configure
// CHANGES_REQUESTED as the default instead.
func ParseVerdict(text string, defaultVerdict task.Verdict) task.Verdict {
	if m := verdictHeader.FindStringSubmatch(text); m != nil {
		return task.Verdict(m[1])
	}

	lower := strings.ToLower(text)
	for _, kw := range changeRequestKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return task.VerdictChangesRequested
		}
	}
	for _, kw := range approvalKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return task.VerdictApproved
		}
	}

	return defaultVerdict
}

// ExtractComments pulls reviewer remarks out of the review text: bullet and
// numbered list items, in document order.
func ExtractComments(text string) []string {
	var comments []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		var body string
		switch {
		case strings.HasPrefix(trimmed, "- "):
			body = trimmed[2:]
		case strings.HasPrefix(trimmed, "* "):
			body = trimmed[2:]
		default:
			if m := numberedItem.FindStringSubmatch(trimmed); m != nil {
				body = m[1]
			}
		}
		body = strings.TrimSpace(body)
		if body != "" {
			comments = append(comments, body)
		}
	}
	return comments
}

var numberedItem = regexp.MustCompile(`^\d+[.)]\s+(.*)$`)
