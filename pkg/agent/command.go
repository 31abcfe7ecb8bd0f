package agent

import (
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/matzehuels/stackscan/pkg/errors"
)

// Commands maps a focus to the worker command template. Templates are
// split with POSIX shell quoting rules and may use the placeholders
// {resource}, {path}, {focus} and {output}; substitution happens per word,
// so values containing spaces stay a single argument.
type Commands struct {
	Default string
	ByFocus map[string]string
}

// Template returns the template used for focus.
func (c Commands) Template(focus Focus) string {
	if t, ok := c.ByFocus[string(focus)]; ok && strings.TrimSpace(t) != "" {
		return t
	}
	return c.Default
}

// Vars are the placeholder values for one agent.
type Vars struct {
	Resource string
	Path     string
	Focus    Focus
	Output   string
}

// Resolve expands the template for focus into an argv.
func (c Commands) Resolve(focus Focus, v Vars) ([]string, error) {
	tmpl := c.Template(focus)
	if strings.TrimSpace(tmpl) == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput,
			"no worker command configured for focus %q (set agent.command)", focus)
	}
	words, err := shellquote.Split(tmpl)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse worker command %q", tmpl)
	}
	r := strings.NewReplacer(
		"{resource}", v.Resource,
		"{path}", v.Path,
		"{focus}", string(v.Focus),
		"{output}", v.Output,
	)
	for i, w := range words {
		words[i] = r.Replace(w)
	}
	return words, nil
}

// Env returns the environment handed to the worker.
func (v Vars) Env(agentID string) []string {
	return []string{
		"STACKSCAN_AGENT_ID=" + agentID,
		"STACKSCAN_RESOURCE=" + v.Resource,
		"STACKSCAN_RESOURCE_PATH=" + v.Path,
		"STACKSCAN_FOCUS=" + string(v.Focus),
		"STACKSCAN_FINDINGS_FILE=" + v.Output,
	}
}

// CommandString renders argv for display.
func CommandString(argv []string) string {
	return shellquote.Join(argv...)
}
