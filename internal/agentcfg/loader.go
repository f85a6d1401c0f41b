// Package agentcfg locates and parses agent descriptors.
//
// A descriptor is a text file whose first line is "---", followed by
// "key: value" lines and a closing "---". Everything after the closing
// fence is prose and is ignored here.
package agentcfg

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Iron-Ham/agentline/internal/errors"
)

// Defaults applied to optional descriptor fields.
const (
	DefaultModel          = "inherit"
	DefaultPermissionMode = "default"
)

// Config is the metadata of one agent.
type Config struct {
	Name           string
	Description    string
	Tools          []string
	Model          string
	PermissionMode string
	// Path is the descriptor file the config was read from.
	Path string
	// Extra holds recognized-syntax keys this package does not interpret.
	Extra map[string]string
}

// Loader searches Dirs in order, trying each of Extensions, for
// <dir>/<agent><ext>. The first file that exists wins.
type Loader struct {
	Dirs       []string
	Extensions []string
}

// NewLoader returns a Loader whose relative dirs are anchored at root.
func NewLoader(root string, dirs, extensions []string) *Loader {
	abs := make([]string, len(dirs))
	for i, d := range dirs {
		if filepath.IsAbs(d) {
			abs[i] = d
		} else {
			abs[i] = filepath.Join(root, d)
		}
	}
	return &Loader{Dirs: abs, Extensions: append([]string(nil), extensions...)}
}

// Candidates lists every path Load would try for agent, in order.
func (l *Loader) Candidates(agent string) []string {
	var paths []string
	for _, dir := range l.Dirs {
		for _, ext := range l.Extensions {
			paths = append(paths, filepath.Join(dir, agent+ext))
		}
	}
	return paths
}

// Load finds and parses the descriptor for agent. A missing descriptor
// yields a *errors.NotFoundError (matching errors.ErrAgentNotFound) whose
// Tried field lists every candidate path; a malformed one yields a
// *errors.ConfigError (matching errors.ErrAgentConfigInvalid).
func (l *Loader) Load(agent string) (Config, error) {
	if agent == "" || strings.ContainsAny(agent, `/\`) || agent == "." || agent == ".." {
		return Config{}, errors.NewValidationError("agent name must be a single path component").
			WithField("agent").
			WithValue(agent)
	}

	tried := l.Candidates(agent)
	for _, path := range tried {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		cfg, err := ParseFile(path)
		if err != nil {
			return Config{}, err
		}
		if cfg.Name == "" {
			cfg.Name = agent
		}
		return cfg, nil
	}

	return Config{}, errors.NewNotFoundError("agent", agent).
		WithCause(errors.ErrAgentNotFound).
		WithTried(tried)
}

// List returns the names of every agent with a descriptor in any search
// directory, sorted and de-duplicated.
func (l *Loader) List() []string {
	seen := make(map[string]bool)
	for _, dir := range l.Dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			for _, ext := range l.Extensions {
				if name, ok := strings.CutSuffix(e.Name(), ext); ok && name != "" {
					seen[name] = true
					break
				}
			}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ParseFile reads and parses the descriptor at path.
func ParseFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.NewConfigError(path, "cannot read descriptor").WithCause(err)
	}
	defer f.Close()

	fields, err := readFrontMatter(path, bufio.NewScanner(f))
	if err != nil {
		return Config{}, err
	}
	return fromFields(path, fields)
}

// Parse parses descriptor content; path is used only in errors.
func Parse(path, content string) (Config, error) {
	fields, err := readFrontMatter(path, bufio.NewScanner(strings.NewReader(content)))
	if err != nil {
		return Config{}, err
	}
	return fromFields(path, fields)
}

func readFrontMatter(path string, sc *bufio.Scanner) (map[string]string, error) {
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !sc.Scan() || strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff")) != "---" {
		if err := sc.Err(); err != nil {
			return nil, errors.NewConfigError(path, "cannot read descriptor").WithCause(err)
		}
		return nil, errors.NewConfigError(path, "missing front matter (first line must be ---)")
	}

	fields := make(map[string]string)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "---" {
			return fields, nil
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		fields[key] = unquote(strings.TrimSpace(value))
	}
	if err := sc.Err(); err != nil {
		return nil, errors.NewConfigError(path, "cannot read descriptor").WithCause(err)
	}
	return nil, errors.NewConfigError(path, "unterminated front matter (missing closing ---)")
}

func unquote(v string) string {
	if len(v) >= 2 {
		first, last := v[0], v[len(v)-1]
		if (first == '"' || first == '\'') && first == last {
			return v[1 : len(v)-1]
		}
	}
	return v
}

func fromFields(path string, fields map[string]string) (Config, error) {
	cfg := Config{
		Name:           fields["name"],
		Description:    fields["description"],
		Tools:          splitTools(fields["tools"]),
		Model:          fields["model"],
		PermissionMode: fields["permissionMode"],
		Path:           path,
	}
	if cfg.Description == "" {
		return Config{}, errors.NewConfigError(path, "missing required field").WithField("description")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.PermissionMode == "" {
		cfg.PermissionMode = DefaultPermissionMode
	}

	for k, v := range fields {
		switch k {
		case "name", "description", "tools", "model", "permissionMode":
		default:
			if cfg.Extra == nil {
				cfg.Extra = make(map[string]string)
			}
			cfg.Extra[k] = v
		}
	}
	return cfg, nil
}

func splitTools(s string) []string {
	tools := []string{}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tools = append(tools, t)
		}
	}
	return tools
}

// Status classifies a Load outcome.
type Status int

const (
	// StatusFound means the descriptor was loaded.
	StatusFound Status = iota
	// StatusNotFound means no candidate path existed.
	StatusNotFound
	// StatusInvalid means a descriptor existed but was malformed.
	StatusInvalid
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not_found"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// StatusOf classifies the error returned by Load.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusFound
	case errors.Is(err, errors.ErrAgentNotFound):
		return StatusNotFound
	default:
		return StatusInvalid
	}
}
