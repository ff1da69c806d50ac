package review

import (
	"fmt"
	"strings"

	"github.com/titabash/kugutsu/internal/task"
)

// BuildPrompt renders the TechLead review brief for a developed task. The
// prompt pins the verdict format the parser's first pass looks for.
func BuildPrompt(t *task.Task, result *task.EngineerResult) string {
	var b strings.Builder

	b.WriteString("あなたはテックリードです。以下のタスクの実装をレビューしてください。\n\n")

	fmt.Fprintf(&b, "## タスク\n- ID: %s\n- タイトル: %s\n- 種別: %s\n\n", t.ID, t.Title, t.Type)
	fmt.Fprintf(&b, "## 説明\n%s\n\n", t.Description)

	if t.WorktreePath != "" {
		fmt.Fprintf(&b, "## 作業ディレクトリ\n%s (ブランチ: %s)\n\n", t.WorktreePath, t.BranchName)
	}

	if result != nil {
		b.WriteString("## エンジニアの実装結果\n")
		if len(result.ChangedFiles) > 0 {
			b.WriteString("変更ファイル:\n")
			for _, f := range result.ChangedFiles {
				fmt.Fprintf(&b, "- %s\n", f)
			}
		}
		if result.NeedsReReview {
			b.WriteString("\nこの実装はマージコンフリクト解消後のものです。コンフリクト解消の正しさも確認してください。\n")
		}
		b.WriteString("\n")
	}

	if len(t.PriorReviews) > 0 {
		b.WriteString("## 過去のレビュー指摘\n")
		for _, r := range t.PriorReviews {
			for _, c := range r.Comments {
				fmt.Fprintf(&b, "- %s\n", c)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## レビュー観点\n")
	b.WriteString("- タスクの要件を満たしているか\n")
	b.WriteString("- 既存コードの規約・設計に沿っているか\n")
	b.WriteString("- テストが適切か\n")
	b.WriteString("- 明らかなバグや抜けがないか\n\n")

	b.WriteString("レビュー完了後、必ず次の形式で結論を1行で出力してください:\n")
	b.WriteString("レビュー結果: APPROVED | CHANGES_REQUESTED | COMMENTED\n")
	b.WriteString("修正が必要な場合は、指摘事項を箇条書き(- )で列挙してください。\n")

	return b.String()
}
