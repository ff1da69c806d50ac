package pipeline

import (
	"fmt"
	"strings"

	"github.com/titabash/kugutsu/internal/task"
)

// buildEngineerPrompt renders the development brief. Conflict-resolution
// tasks get the original context plus the prior review history so the fresh
// session can reconstruct intent without a resume handle.
func buildEngineerPrompt(t *task.Task) string {
	var b strings.Builder

	if t.IsConflictResolution() {
		b.WriteString("あなたはエンジニアです。マージコンフリクトを解消してください。\n\n")
	} else if t.IsRevision() {
		b.WriteString("あなたはエンジニアです。レビュー指摘に対応してください。\n\n")
	} else {
		b.WriteString("あなたはエンジニアです。以下のタスクを実装してください。\n\n")
	}

	fmt.Fprintf(&b, "## タスク\n- ID: %s\n- タイトル: %s\n- 種別: %s\n- 優先度: %s\n\n",
		t.ID, t.Title, t.Type, t.Priority)
	fmt.Fprintf(&b, "## 説明\n%s\n\n", t.Description)

	if t.IsConflictResolution() && len(t.PriorReviews) > 0 {
		b.WriteString("## 解消時に尊重すべきレビュー指摘\n")
		for _, r := range t.PriorReviews {
			for _, c := range r.Comments {
				fmt.Fprintf(&b, "- %s\n", c)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## 制約\n")
	b.WriteString("- 作業はこのディレクトリ(専用ワークツリー)内で完結させてください\n")
	b.WriteString("- 他のタスクのファイルやベースリポジトリには触れないでください\n")
	b.WriteString("- 実装が完了したら変更をすべてコミットしてください\n")

	return b.String()
}

// revisionDescription appends the review comments to the task description for
// a re-admitted task.
func revisionDescription(desc string, comments []string) string {
	var b strings.Builder
	b.WriteString(desc)
	b.WriteString("\n\n## レビュー指摘(要対応)\n")
	for _, c := range comments {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	return b.String()
}
