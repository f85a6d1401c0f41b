// Package branch generates and parses agent task branch names.
//
// Two grammars are produced:
//
//	agent/<agent>/<YYYYMMDD-HHMMSS>-<slug>-<suffix>
//	claude/wave<N>/<feature>/<YYYYMMDD-HHMMSS>-<slug>-<suffix>
//
// The wave form is used when the agent name matches wave<N>-<feature>.
// Timestamps are UTC. The suffix is six random base-36 characters.
package branch

import (
	"encoding/binary"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// StandardPrefix is the first path component of standard task branches.
	StandardPrefix = "agent"
	// WavePrefix is the first path component of wave task branches.
	WavePrefix = "claude"

	// MaxComponentLen bounds the agent and feature components.
	MaxComponentLen = 50
	// MaxSlugLen bounds the task slug.
	MaxSlugLen = 30
	// SuffixLen is the length of the random suffix.
	SuffixLen = 6

	// TimestampLayout is the time.Format layout of the timestamp component.
	TimestampLayout = "20060102-150405"
)

var wavePattern = regexp.MustCompile(`^wave(\d+)-(.+)$`)

// Sanitize lowercases s, replaces every run of characters outside [a-z0-9-]
// (and every run of hyphens) with a single hyphen, trims hyphens from both
// ends, and truncates to max characters. Sanitize(Sanitize(s, n), n) ==
// Sanitize(s, n).
func Sanitize(s string, max int) string {
	var b strings.Builder
	b.Grow(len(s))
	prevHyphen := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevHyphen = false
		default:
			if !prevHyphen {
				b.WriteByte('-')
				prevHyphen = true
			}
		}
	}

	out := strings.Trim(b.String(), "-")
	if max > 0 && len(out) > max {
		out = strings.TrimRight(out[:max], "-")
	}
	return out
}

// Slug derives the task component of a branch name. A task with no usable
// characters yields "task".
func Slug(task string) string {
	if s := Sanitize(task, MaxSlugLen); s != "" {
		return s
	}
	return "task"
}

// Component sanitizes an agent or feature name for use as a path component.
func Component(name string) string {
	if s := Sanitize(name, MaxComponentLen); s != "" {
		return s
	}
	return "agent"
}

// WaveOf reports the wave number and feature when agent follows the
// wave<N>-<feature> convention.
func WaveOf(agent string) (wave int, feature string, ok bool) {
	m := wavePattern.FindStringSubmatch(Component(agent))
	if m == nil {
		return 0, "", false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false
	}
	return n, Component(m[2]), true
}

// Generator produces fresh branch names. It is safe for concurrent use and
// never returns the same name twice.
type Generator struct {
	now    func() time.Time
	suffix func() string

	mu     sync.Mutex
	issued map[string]struct{}
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithSuffix overrides the random suffix source.
func WithSuffix(suffix func() string) Option {
	return func(g *Generator) { g.suffix = suffix }
}

// NewGenerator creates a Generator using the wall clock and random suffixes.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		now:    time.Now,
		suffix: RandomSuffix,
		issued: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// maxSuffixAttempts bounds retries when a suffix source keeps colliding.
const maxSuffixAttempts = 64

// New returns a fresh branch name for agent working on task.
func (g *Generator) New(agent, task string) string {
	ts := g.now().UTC().Format(TimestampLayout)
	slug := Slug(task)

	g.mu.Lock()
	defer g.mu.Unlock()

	var name string
	for i := 0; i < maxSuffixAttempts; i++ {
		name = format(agent, ts, slug, g.suffix())
		if _, dup := g.issued[name]; !dup {
			break
		}
	}
	g.issued[name] = struct{}{}
	return name
}

func format(agent, ts, slug, suffix string) string {
	if wave, feature, ok := WaveOf(agent); ok {
		return fmt.Sprintf("%s/wave%d/%s/%s-%s-%s", WavePrefix, wave, feature, ts, slug, suffix)
	}
	return fmt.Sprintf("%s/%s/%s-%s-%s", StandardPrefix, Component(agent), ts, slug, suffix)
}

const suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// RandomSuffix returns SuffixLen random base-36 characters drawn from a
// version 4 UUID.
func RandomSuffix() string {
	id := uuid.New()
	n := binary.BigEndian.Uint64(id[8:])
	buf := make([]byte, SuffixLen)
	for i := range buf {
		buf[i] = suffixAlphabet[n%36]
		n /= 36
	}
	return string(buf)
}
