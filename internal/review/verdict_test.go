package review

import (
	"testing"

	"github.com/titabash/kugutsu/internal/task"
)

func TestParseVerdict_ExplicitHeader(t *testing.T) {
	tests := []struct {
		name string
		text string
		want task.Verdict
	}{
		{
			name: "approved",
			text: "全体的に良い実装です。\nレビュー結果: APPROVED",
			want: task.VerdictApproved,
		},
		{
			name: "changes requested",
			text: "レビュー結果: CHANGES_REQUESTED\n- テストを追加してください",
			want: task.VerdictChangesRequested,
		},
		{
			name: "commented",
			text: "レビュー結果: COMMENTED\n軽微な指摘のみ。",
			want: task.VerdictCommented,
		},
		{
			name: "full-width colon",
			text: "レビュー結果：APPROVED",
			want: task.VerdictApproved,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseVerdict(tt.text, task.VerdictApproved); got != tt.want {
				t.Errorf("ParseVerdict = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseVerdict_HeaderWinsOverKeywords(t *testing.T) {
	// The explicit header takes precedence even when change-request
	// keywords appear in the body.
	text := "一部修正が必要に見えますが軽微です。\nレビュー結果: APPROVED"
	if got := ParseVerdict(text, task.VerdictApproved); got != task.VerdictApproved {
		t.Errorf("ParseVerdict = %q, want APPROVED", got)
	}
}

func TestParseVerdict_KeywordFallback(t *testing.T) {
	tests := []struct {
		name string
		text string
		want task.Verdict
	}{
		{"japanese change request", "このコードは修正が必要です。", task.VerdictChangesRequested},
		{"english change request", "Several changes required before merge.", task.VerdictChangesRequested},
		{"japanese approval", "実装に問題ありません。", task.VerdictApproved},
		{"lgtm", "LGTM!", task.VerdictApproved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseVerdict(tt.text, task.VerdictApproved); got != tt.want {
				t.Errorf("ParseVerdict = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseVerdict_DefaultApplies(t *testing.T) {
	text := "実装を確認しました。"

	if got := ParseVerdict(text, task.VerdictApproved); got != task.VerdictApproved {
		t.Errorf("default APPROVED: got %q", got)
	}
	// The permissive default is a knob; stricter deployments flip it.
	if got := ParseVerdict(text, task.VerdictChangesRequested); got != task.VerdictChangesRequested {
		t.Errorf("default CHANGES_REQUESTED: got %q", got)
	}
}

func TestExtractComments(t *testing.T) {
	text := `レビュー結果: CHANGES_REQUESTED

指摘事項:
- Add test
* エラーハンドリングを追加
1. Rename the helper
2) Remove dead code

以上です。`

	comments := ExtractComments(text)
	want := []string{"Add test", "エラーハンドリングを追加", "Rename the helper", "Remove dead code"}
	if len(comments) != len(want) {
		t.Fatalf("got %d comments %v, want %d", len(comments), comments, len(want))
	}
	for i := range want {
		if comments[i] != want[i] {
			t.Errorf("comment %d = %q, want %q", i, comments[i], want[i])
		}
	}
}

func TestExtractComments_Empty(t *testing.T) {
	if got := ExtractComments("問題ありません。"); len(got) != 0 {
		t.Errorf("expected no comments, got %v", got)
	}
}
