// Package verify runs a project's build, lint and test commands against a
// working tree and reports which of them failed.
package verify

import (
	"path/filepath"
	"time"

	"github.com/Iron-Ham/agentline/internal/config"
	"github.com/Iron-Ham/agentline/internal/util"
)

// Step is one command in a Subsystem.
type Step struct {
	Name    string
	Command []string
	// Timeout bounds the step; zero means the Runner's default.
	Timeout time.Duration
	// ExpectOutput, when set, must match the step's combined output.
	ExpectOutput string
}

// Subsystem is a named group of steps run in Dir, relative to the working
// tree being verified.
type Subsystem struct {
	Name  string
	Dir   string
	Steps []Step
}

// Pipeline is an ordered list of subsystems.
type Pipeline struct {
	Subsystems []Subsystem
}

// FromConfig converts the configured subsystems into a Pipeline.
func FromConfig(cfg config.VerifyConfig) Pipeline {
	p := Pipeline{Subsystems: make([]Subsystem, 0, len(cfg.Subsystems))}
	for _, sub := range cfg.Subsystems {
		s := Subsystem{Name: sub.Name, Dir: sub.Dir, Steps: make([]Step, 0, len(sub.Steps))}
		for _, step := range sub.Steps {
			s.Steps = append(s.Steps, Step{
				Name:         step.Name,
				Command:      append([]string(nil), step.Command...),
				Timeout:      cfg.EffectiveTimeout(step),
				ExpectOutput: step.ExpectOutput,
			})
		}
		p.Subsystems = append(p.Subsystems, s)
	}
	return p
}

// StepResult is the outcome of one step.
type StepResult struct {
	Subsystem string
	Name      string
	Command   []string
	Passed    bool
	// ExitCode is -1 when the command could not be started or was killed.
	ExitCode int
	TimedOut bool
	// Output is the combined stdout and stderr.
	Output   string
	Duration time.Duration
	// Reason explains a failure that is not a plain non-zero exit.
	Reason string
}

// ID returns "<subsystem>/<step>".
func (s StepResult) ID() string {
	return s.Subsystem + "/" + s.Name
}

// SubsystemResult is the outcome of one subsystem.
type SubsystemResult struct {
	Name string
	Dir  string
	// Skipped is set when Dir does not exist. A skipped subsystem passes on
	// its own, but a pipeline in which no step ran fails.
	Skipped bool
	Passed  bool
	Steps   []StepResult
}

// Result is the outcome of a whole pipeline.
type Result struct {
	WorkDir    string
	Passed     bool
	Subsystems []SubsystemResult
	Duration   time.Duration
	// Reason explains a failure that no single step accounts for.
	Reason string
}

// StepsRun returns the number of steps that were executed.
func (r Result) StepsRun() int {
	n := 0
	for _, sub := range r.Subsystems {
		n += len(sub.Steps)
	}
	return n
}

// Failures returns every failed step in pipeline order.
func (r Result) Failures() []StepResult {
	var failed []StepResult
	for _, sub := range r.Subsystems {
		for _, step := range sub.Steps {
			if !step.Passed {
				failed = append(failed, step)
			}
		}
	}
	return failed
}

// FailedIDs returns the ID of every failed step.
func (r Result) FailedIDs() []string {
	var ids []string
	for _, f := range r.Failures() {
		ids = append(ids, f.ID())
	}
	return ids
}

// Truncate returns a copy of r whose failed step output is cut to limit
// characters. Output of passing steps is dropped. A limit <= 0 leaves
// failing output intact.
func (r Result) Truncate(limit int) Result {
	out := r
	out.Subsystems = make([]SubsystemResult, len(r.Subsystems))
	for i, sub := range r.Subsystems {
		sub.Steps = append([]StepResult(nil), sub.Steps...)
		for j := range sub.Steps {
			switch {
			case sub.Steps[j].Passed:
				sub.Steps[j].Output = ""
			case limit > 0:
				sub.Steps[j].Output = util.TruncateOutput(sub.Steps[j].Output, limit)
			}
		}
		out.Subsystems[i] = sub
	}
	return out
}

func subsystemDir(workDir, dir string) string {
	if dir == "" || dir == "." {
		return workDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(workDir, dir)
}
