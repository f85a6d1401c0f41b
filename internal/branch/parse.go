package branch

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Info is the parsed view of a task branch name.
type Info struct {
	Branch    string
	Agent     string
	Wave      int // 0 for standard branches
	Feature   string
	Timestamp time.Time
	Slug      string
	Suffix    string
}

// IsWave reports whether the branch uses the wave grammar.
func (i Info) IsWave() bool {
	return i.Wave > 0 || i.Feature != ""
}

var leafPattern = regexp.MustCompile(`^(\d{8}-\d{6})-(.+)-([a-z0-9]{6})$`)

var waveComponent = regexp.MustCompile(`^wave(\d+)$`)

// Parse reverses both branch grammars. It returns false for any branch not
// produced by a Generator.
func Parse(name string) (Info, bool) {
	parts := strings.Split(name, "/")

	var info Info
	var leaf string
	switch {
	case len(parts) == 3 && parts[0] == StandardPrefix:
		info.Agent = parts[1]
		leaf = parts[2]
	case len(parts) == 4 && parts[0] == WavePrefix:
		m := waveComponent.FindStringSubmatch(parts[1])
		if m == nil {
			return Info{}, false
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return Info{}, false
		}
		info.Wave = n
		info.Feature = parts[2]
		info.Agent = parts[1] + "-" + parts[2]
		leaf = parts[3]
	default:
		return Info{}, false
	}
	if info.Agent == "" {
		return Info{}, false
	}

	m := leafPattern.FindStringSubmatch(leaf)
	if m == nil {
		return Info{}, false
	}
	ts, err := time.Parse(TimestampLayout, m[1])
	if err != nil {
		return Info{}, false
	}

	info.Branch = name
	info.Timestamp = ts
	info.Slug = m[2]
	info.Suffix = m[3]
	return info, true
}

// IsTaskBranch reports whether name was produced by a Generator.
func IsTaskBranch(name string) bool {
	_, ok := Parse(name)
	return ok
}
