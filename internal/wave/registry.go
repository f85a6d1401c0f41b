// Package wave holds the registry of task batches ("waves") and reports
// their progress from existing branches. It never runs agents itself.
package wave

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Iron-Ham/agentline/internal/errors"
	"github.com/Iron-Ham/agentline/internal/repo"
	"github.com/Iron-Ham/agentline/internal/util"
	"gopkg.in/yaml.v3"
)

//go:embed waves.yaml
var builtinYAML []byte

// Task is one agent invocation in a wave.
type Task struct {
	Agent string `yaml:"agent"`
	Task  string `yaml:"task"`
}

// Wave is a numbered, ordered batch of tasks.
type Wave struct {
	Number      int    `yaml:"number"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Tasks       []Task `yaml:"tasks"`
}

type document struct {
	Waves []Wave `yaml:"waves"`
}

// Registry is an immutable set of waves. Accessors return copies.
type Registry struct {
	waves map[int]Wave
}

// Builtin returns the registry compiled into the binary.
func Builtin() (*Registry, error) {
	return Parse(builtinYAML)
}

// LoadFile reads a registry from a YAML file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfigError(path, "cannot read wave registry").WithCause(err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, errors.NewConfigError(path, "invalid wave registry").WithCause(err)
	}
	return r, nil
}

// Parse decodes and validates a YAML registry.
func Parse(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	waves := make(map[int]Wave, len(doc.Waves))
	for i, w := range doc.Waves {
		if w.Number <= 0 {
			return nil, errors.NewValidationError("wave number must be positive").
				WithField(fmt.Sprintf("waves[%d].number", i)).
				WithValue(w.Number)
		}
		if _, dup := waves[w.Number]; dup {
			return nil, errors.NewValidationError("duplicate wave number").
				WithField(fmt.Sprintf("waves[%d].number", i)).
				WithValue(w.Number)
		}
		for j, t := range w.Tasks {
			if strings.TrimSpace(t.Agent) == "" || strings.TrimSpace(t.Task) == "" {
				return nil, errors.NewValidationError("task needs an agent and a description").
					WithField(fmt.Sprintf("waves[%d].tasks[%d]", i, j))
			}
		}
		w.Tasks = append([]Task(nil), w.Tasks...)
		waves[w.Number] = w
	}
	return &Registry{waves: waves}, nil
}

// All returns every wave ordered by number.
func (r *Registry) All() []Wave {
	all := make([]Wave, 0, len(r.waves))
	for _, w := range r.waves {
		all = append(all, copyWave(w))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Number < all[j].Number })
	return all
}

// Get returns wave n.
func (r *Registry) Get(n int) (Wave, error) {
	w, ok := r.waves[n]
	if !ok {
		return Wave{}, errors.NewNotFoundError("wave", fmt.Sprint(n))
	}
	return copyWave(w), nil
}

// Commands returns, for each task of wave n, the command line that runs it.
func (r *Registry) Commands(n int) ([]string, error) {
	w, err := r.Get(n)
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(w.Tasks))
	for i, t := range w.Tasks {
		lines[i] = util.ShellQuote([]string{"agentline", "agent", "run", t.Agent, t.Task})
	}
	return lines, nil
}

func copyWave(w Wave) Wave {
	w.Tasks = append([]Task(nil), w.Tasks...)
	return w
}

// BranchLister is the part of repo.Service Status needs.
type BranchLister interface {
	ListAgentBranches(ctx context.Context) ([]repo.AgentBranchInfo, error)
}

// TaskStatus pairs a task with the branches its agent produced.
type TaskStatus struct {
	Task     Task
	Branches []repo.AgentBranchInfo
}

// Started reports whether the task has at least one branch.
func (s TaskStatus) Started() bool {
	return len(s.Branches) > 0
}

// Commits returns the total commits across the task's branches.
func (s TaskStatus) Commits() int {
	n := 0
	for _, b := range s.Branches {
		n += b.CommitCount
	}
	return n
}

// Status is the progress of one wave.
type Status struct {
	Wave  Wave
	Tasks []TaskStatus
	// Other holds matching branches whose agent is not a task of the wave.
	Other []repo.AgentBranchInfo
}

// Status reports the branches belonging to wave n. A branch belongs to the
// wave when its agent contains "wave<n>", so wave1 also matches agents
// named for wave10 and up.
func (r *Registry) Status(ctx context.Context, lister BranchLister, n int) (Status, error) {
	w, err := r.Get(n)
	if err != nil {
		return Status{}, err
	}
	branches, err := lister.ListAgentBranches(ctx)
	if err != nil {
		return Status{}, err
	}

	tag := fmt.Sprintf("wave%d", n)
	st := Status{Wave: w, Tasks: make([]TaskStatus, len(w.Tasks))}
	byAgent := make(map[string]int, len(w.Tasks))
	for i, t := range w.Tasks {
		st.Tasks[i] = TaskStatus{Task: t}
		byAgent[t.Agent] = i
	}

	for _, b := range branches {
		if !strings.Contains(b.Agent, tag) {
			continue
		}
		if i, ok := byAgent[b.Agent]; ok {
			st.Tasks[i].Branches = append(st.Tasks[i].Branches, b)
			continue
		}
		st.Other = append(st.Other, b)
	}
	return st, nil
}
