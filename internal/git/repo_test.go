package git

import (
	"context"
	"errors"
	"testing"

	"github.com/titabash/kugutsu/internal/testutil"
)

func newTestRepo(t *testing.T, runner *testutil.StubRunner) *Repo {
	t.Helper()
	useRunner(t, runner)
	r, err := NewRepo(t.TempDir())
	if err != nil {
		t.Fatalf("NewRepo: %v", err)
	}
	return r
}

func TestStatusEntry_Conflicted(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"UU", true},
		{"AA", true},
		{"DD", true},
		{" M", false},
		{"??", false},
		{"A ", false},
	}
	for _, tt := range tests {
		e := StatusEntry{Code: tt.code, Path: "f.go"}
		if got := e.Conflicted(); got != tt.want {
			t.Errorf("Conflicted(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestStatus_ParsesPorcelain(t *testing.T) {
	runner := testutil.NewStubRunner()
	r := newTestRepo(t, runner)
	runner.Stub("status --porcelain", " M cmd/main.go\n?? notes.txt\nUU shared.go\n", nil)

	entries, err := r.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0].Code != " M" || entries[0].Path != "cmd/main.go" {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if !entries[2].Conflicted() {
		t.Error("UU entry must be conflicted")
	}
}

func TestHasConflicts(t *testing.T) {
	runner := testutil.NewStubRunner()
	r := newTestRepo(t, runner)

	runner.Stub("status --porcelain", " M a.go\n", nil)
	conflicted, err := r.HasConflicts(context.Background())
	if err != nil || conflicted {
		t.Errorf("clean tree: conflicted=%v err=%v", conflicted, err)
	}

	runner.Stub("status --porcelain", " M a.go\nDD b.go\n", nil)
	conflicted, err = r.HasConflicts(context.Background())
	if err != nil || !conflicted {
		t.Errorf("DD tree: conflicted=%v err=%v", conflicted, err)
	}
}

func TestHasRemote(t *testing.T) {
	runner := testutil.NewStubRunner()
	r := newTestRepo(t, runner)

	runner.Stub("remote", "origin\nupstream\n", nil)
	if !r.HasRemote(context.Background(), "origin") {
		t.Error("origin should be found")
	}

	runner.Stub("remote", "upstream\n", nil)
	if r.HasRemote(context.Background(), "origin") {
		t.Error("origin should not be found")
	}

	runner.Stub("remote", "", errors.New("fatal"))
	if r.HasRemote(context.Background(), "origin") {
		t.Error("errors must read as no remote")
	}
}

func TestChangedFiles(t *testing.T) {
	runner := testutil.NewStubRunner()
	r := newTestRepo(t, runner)
	runner.Stub("status --porcelain", " M a.go\n?? b/c.go\n", nil)

	files, err := r.ChangedFiles(context.Background())
	if err != nil {
		t.Fatalf("ChangedFiles: %v", err)
	}
	if len(files) != 2 || files[0] != "a.go" || files[1] != "b/c.go" {
		t.Errorf("files = %v", files)
	}
}

func TestCommit_SkipsHooks(t *testing.T) {
	runner := testutil.NewStubRunner()
	r := newTestRepo(t, runner)
	runner.Stub("commit --no-verify -m add feature", "", nil)

	if err := r.Commit(context.Background(), "add feature"); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if runner.CallsFor("commit", "--no-verify", "-m", "add feature") != 1 {
		t.Error("commit did not pass --no-verify")
	}
}

func TestRevParse_TrimsOutput(t *testing.T) {
	runner := testutil.NewStubRunner()
	r := newTestRepo(t, runner)
	runner.Stub("rev-parse --verify main", "deadbeef\n", nil)

	hash, err := r.RevParse(context.Background(), "main")
	if err != nil {
		t.Fatalf("RevParse: %v", err)
	}
	if hash != "deadbeef" {
		t.Errorf("hash = %q", hash)
	}
}
