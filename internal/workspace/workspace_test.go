package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFilesWritesUnderRoot(t *testing.T) {
	dir := t.TempDir()
	e, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	written, dropped := e.WriteFiles([]FileIntent{{Path: "a/b.txt", Content: "hello"}})
	if len(dropped) != 0 {
		t.Fatalf("unexpected drops: %v", dropped)
	}
	if len(written) != 1 || written[0] != "a/b.txt" {
		t.Fatalf("written = %v", written)
	}

	data, err := os.ReadFile(filepath.Join(e.Root(), "a", "b.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Fatalf("content = %q", data)
	}
}

func TestWriteFilesDropsPathEscapingRoot(t *testing.T) {
	dir := t.TempDir()
	e, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	written, dropped := e.WriteFiles([]FileIntent{{Path: "../../etc/passwd", Content: "x"}})
	if len(written) != 0 {
		t.Fatalf("expected zero writes, got %v", written)
	}
	if len(dropped) != 1 {
		t.Fatalf("expected one dropped path, got %v", dropped)
	}
}

func TestWriteFilesMixedBatch(t *testing.T) {
	dir := t.TempDir()
	e, _ := New(dir)

	written, dropped := e.WriteFiles([]FileIntent{
		{Path: "ok.txt", Content: "fine"},
		{Path: "../escape.txt", Content: "bad"},
	})
	if len(written) != 1 || len(dropped) != 1 {
		t.Fatalf("written=%v dropped=%v", written, dropped)
	}
}

func TestRunCommandsSequentialAndCaptured(t *testing.T) {
	dir := t.TempDir()
	e, _ := New(dir)

	outcomes := e.RunCommands(context.Background(), []CommandIntent{
		{Cwd: ".", Command: "echo first"},
		{Cwd: ".", Command: "echo second"},
	})
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outcomes))
	}
	if !outcomes[0].Success || !strings.Contains(outcomes[0].Output, "first") {
		t.Fatalf("outcome[0] = %+v", outcomes[0])
	}
	if !outcomes[1].Success || !strings.Contains(outcomes[1].Output, "second") {
		t.Fatalf("outcome[1] = %+v", outcomes[1])
	}
}

func TestRunCommandsFailureCaptured(t *testing.T) {
	dir := t.TempDir()
	e, _ := New(dir)

	outcomes := e.RunCommands(context.Background(), []CommandIntent{
		{Cwd: ".", Command: "exit 1"},
	})
	if len(outcomes) != 1 || outcomes[0].Success {
		t.Fatalf("expected a failed outcome, got %+v", outcomes)
	}
}

func TestRunCommandsCwdEscapingRootFailsWithoutRunning(t *testing.T) {
	dir := t.TempDir()
	e, _ := New(dir)

	outcomes := e.RunCommands(context.Background(), []CommandIntent{
		{Cwd: "../../../../tmp", Command: "echo should-not-run"},
	})
	if len(outcomes) != 1 || outcomes[0].Success {
		t.Fatalf("expected escaping cwd to fail closed, got %+v", outcomes)
	}
}

func TestTailTruncatesFromEnd(t *testing.T) {
	s := strings.Repeat("a", 10) + "END"
	got := tail(s, 3)
	if got != "END" {
		t.Fatalf("tail = %q, want END", got)
	}
	if tail("short", 100) != "short" {
		t.Fatal("tail must not pad short strings")
	}
}
