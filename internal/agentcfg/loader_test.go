package agentcfg

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/Iron-Ham/agentline/internal/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Config
	}{
		{
			name: "all fields",
			content: `---
name: tester
description: "Writes tests"
tools: Read, Edit ,Bash
model: 'sonnet'
permissionMode: acceptEdits
---
prose`,
			want: Config{
				Name:           "tester",
				Description:    "Writes tests",
				Tools:          []string{"Read", "Edit", "Bash"},
				Model:          "sonnet",
				PermissionMode: "acceptEdits",
				Path:           "a.md",
			},
		},
		{
			name:    "defaults",
			content: "---\ndescription: Minimal\n---\n",
			want: Config{
				Description:    "Minimal",
				Tools:          []string{},
				Model:          DefaultModel,
				PermissionMode: DefaultPermissionMode,
				Path:           "a.md",
			},
		},
		{
			name:    "comments blank lines and colon in value",
			content: "---\n# comment\n\ndescription: Fix: all the things\ncolor: blue\n---",
			want: Config{
				Description:    "Fix: all the things",
				Tools:          []string{},
				Model:          DefaultModel,
				PermissionMode: DefaultPermissionMode,
				Path:           "a.md",
				Extra:          map[string]string{"color": "blue"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse("a.md", tt.content)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"no front matter", "description: x\n", "missing front matter"},
		{"empty file", "", "missing front matter"},
		{"unterminated", "---\ndescription: x\n", "unterminated"},
		{"missing description", "---\nname: x\n---\n", "description"},
		{"empty description", "---\ndescription: \"\"\n---\n", "description"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.md", tt.content)
			if err == nil {
				t.Fatal("Parse() error = nil")
			}
			if !errors.Is(err, errors.ErrAgentConfigInvalid) {
				t.Errorf("error %v does not match ErrAgentConfigInvalid", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) || !strings.Contains(err.Error(), "bad.md") {
				t.Errorf("error = %q, want mention of %q and the file", err.Error(), tt.wantMsg)
			}
			if StatusOf(err) != StatusInvalid {
				t.Errorf("StatusOf() = %v, want invalid", StatusOf(err))
			}
		})
	}
}

func TestLoader_Load(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "agents", "tester.txt"), "---\ndescription: from agents dir\n---\n")
	writeFile(t, filepath.Join(root, ".claude", "agents", "tester.md"), "---\ndescription: from claude dir\n---\n")
	writeFile(t, filepath.Join(root, "agents", "reviewer.markdown"), "---\nname: Reviewer\ndescription: reviews\n---\n")

	l := NewLoader(root, []string{".claude/agents", "agents"}, []string{".md", ".markdown", ".txt"})

	cfg, err := l.Load("tester")
	if err != nil {
		t.Fatalf("Load(tester) error = %v", err)
	}
	if cfg.Description != "from claude dir" {
		t.Errorf("Description = %q, want first directory to win", cfg.Description)
	}
	if cfg.Name != "tester" {
		t.Errorf("Name = %q, want agent id as default", cfg.Name)
	}

	cfg, err = l.Load("reviewer")
	if err != nil {
		t.Fatalf("Load(reviewer) error = %v", err)
	}
	if cfg.Name != "Reviewer" || !strings.HasSuffix(cfg.Path, "reviewer.markdown") {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoader_NotFound(t *testing.T) {
	root := t.TempDir()
	l := NewLoader(root, []string{".claude/agents", "/abs/agents"}, []string{".md", ".txt"})

	_, err := l.Load("ghost")
	if !errors.Is(err, errors.ErrAgentNotFound) {
		t.Fatalf("Load() error = %v, want ErrAgentNotFound", err)
	}
	var nf *errors.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error type = %T, want *errors.NotFoundError", err)
	}
	want := []string{
		filepath.Join(root, ".claude", "agents", "ghost.md"),
		filepath.Join(root, ".claude", "agents", "ghost.txt"),
		"/abs/agents/ghost.md",
		"/abs/agents/ghost.txt",
	}
	if !reflect.DeepEqual(nf.Tried, want) {
		t.Errorf("Tried = %q, want %q", nf.Tried, want)
	}
	for _, p := range want {
		if !strings.Contains(err.Error(), p) {
			t.Errorf("error message missing %q", p)
		}
	}
	if StatusOf(err) != StatusNotFound {
		t.Errorf("StatusOf() = %v, want not_found", StatusOf(err))
	}
}

func TestLoader_InvalidFirstMatchIsReported(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "x.md"), "no front matter")
	writeFile(t, filepath.Join(root, "b", "x.md"), "---\ndescription: valid\n---\n")

	l := NewLoader(root, []string{"a", "b"}, []string{".md"})
	if _, err := l.Load("x"); StatusOf(err) != StatusInvalid {
		t.Errorf("Load() error = %v, want invalid from first match", err)
	}
}

func TestLoader_RejectsPathLikeNames(t *testing.T) {
	l := NewLoader(t.TempDir(), []string{"agents"}, []string{".md"})
	for _, name := range []string{"", "../etc/passwd", "a/b", ".."} {
		if _, err := l.Load(name); !errors.Is(err, errors.ErrInvalidInput) {
			t.Errorf("Load(%q) error = %v, want ErrInvalidInput", name, err)
		}
	}
}

func TestLoader_List(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".claude", "agents", "tester.md"), "x")
	writeFile(t, filepath.Join(root, "agents", "tester.txt"), "x")
	writeFile(t, filepath.Join(root, "agents", "wave1-auth.md"), "x")
	writeFile(t, filepath.Join(root, "agents", "notes.json"), "x")
	if err := os.MkdirAll(filepath.Join(root, "agents", "dir.md"), 0755); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(root, []string{".claude/agents", "agents", "missing"}, []string{".md", ".txt"})
	if got, want := l.List(), []string{"tester", "wave1-auth"}; !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %q, want %q", got, want)
	}
}

func TestStatus_String(t *testing.T) {
	for s, want := range map[Status]string{StatusFound: "found", StatusNotFound: "not_found", StatusInvalid: "invalid", Status(9): "unknown"} {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", s, got, want)
		}
	}
	if StatusOf(nil) != StatusFound {
		t.Error("StatusOf(nil) != StatusFound")
	}
}
