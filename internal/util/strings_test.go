package util

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
)

func TestTruncateANSI(t *testing.T) {
	styled := lipgloss.NewStyle().Bold(true).Render("verification failed")

	got := TruncateANSI(styled, 10)
	if w := lipgloss.Width(got); w > 10 {
		t.Errorf("width = %d, want <= 10", w)
	}
	if !strings.HasSuffix(got, "...") && !strings.Contains(got, "...") {
		t.Errorf("TruncateANSI() = %q, want ellipsis", got)
	}
	if got := TruncateANSI("short", 10); got != "short" {
		t.Errorf("TruncateANSI(short) = %q", got)
	}
	// Wide runes take two cells each.
	if got := TruncateANSI("漢字漢字漢字", 8); got != "漢字..." {
		t.Errorf("TruncateANSI(wide) = %q, want %q", got, "漢字...")
	}
	if got := TruncateANSI("anything", 2); got != "..." {
		t.Errorf("TruncateANSI(maxWidth=2) = %q", got)
	}
}

func TestTruncateOutput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		limit int
		want  string
	}{
		{"unlimited", "abc\n", 0, "abc"},
		{"within limit", "abc", 5, "abc"},
		{"truncated", "abcdefgh", 3, "abc\n... (5 more characters)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateOutput(tt.input, tt.limit); got != tt.want {
				t.Errorf("TruncateOutput() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		argv []string
		want string
	}{
		{[]string{"agentline", "agent", "run", "tester", "add tests"}, "agentline agent run tester 'add tests'"},
		{[]string{"echo", "it's"}, `echo 'it'\''s'`},
		{[]string{"x", ""}, "x ''"},
		{[]string{"wave1-auth", "a/b.go"}, "wave1-auth a/b.go"},
	}
	for _, tt := range tests {
		if got := ShellQuote(tt.argv); got != tt.want {
			t.Errorf("ShellQuote(%q) = %q, want %q", tt.argv, got, tt.want)
		}
	}
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{72 * time.Hour, "3d"},
		{-time.Minute, "0s"},
	}
	for _, tt := range tests {
		if got := FormatAge(now.Add(-tt.ago), now); got != tt.want {
			t.Errorf("FormatAge(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
	if got := FormatAge(time.Time{}, now); got != "-" {
		t.Errorf("FormatAge(zero) = %q, want -", got)
	}
}
