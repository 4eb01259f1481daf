// Package process describes the external executables a pipeline stage runs and
// renders their command lines from parameter values.
package process

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"text/template"

	batcherrors "github.com/alexisbeaulieu97/batchrun/pkg/errors"
)

// Process is one runnable stage definition.
type Process interface {
	Name() string
	Executable() string
	Parameters() []Parameter
	// FullCommand validates params and renders the command line.
	FullCommand(params map[string]string) (string, error)
}

// Parameter declares one named input of a process.
type Parameter struct {
	Name        string
	Description string
	Required    bool
	// Flag parameters render as present or absent and accept only true/false.
	Flag    bool
	Default string
	// Pattern, when set, must match the whole value.
	Pattern *regexp.Regexp
}

// Validate checks one supplied value.
func (p Parameter) Validate(value string) error {
	if p.Flag {
		if value != "true" && value != "false" {
			return fmt.Errorf("flag %q expects true or false, got %q", p.Name, value)
		}
		return nil
	}
	if p.Pattern != nil && !p.Pattern.MatchString(value) {
		return fmt.Errorf("parameter %q value %q does not match %s", p.Name, value, p.Pattern)
	}
	return nil
}

// Validate checks a complete parameter map against the declarations: required
// values present, every value well formed and no undeclared names.
func Validate(declared []Parameter, params map[string]string) error {
	known := make(map[string]Parameter, len(declared))
	for _, p := range declared {
		known[p.Name] = p
	}

	var problems []string
	for _, p := range declared {
		value, ok := params[p.Name]
		if !ok {
			if p.Required && p.Default == "" {
				problems = append(problems, fmt.Sprintf("missing required parameter %q", p.Name))
			}
			continue
		}
		if err := p.Validate(value); err != nil {
			problems = append(problems, err.Error())
		}
	}

	var unknown []string
	for name := range params {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		problems = append(problems, fmt.Sprintf("unknown parameter %q", name))
	}

	if len(problems) > 0 {
		return batcherrors.NewValidationError("parameters", strings.Join(problems, "; "), nil)
	}
	return nil
}

// Select returns only the entries of params that p declares.
func Select(p Process, params map[string]string) map[string]string {
	selected := make(map[string]string)
	for _, decl := range p.Parameters() {
		if value, ok := params[decl.Name]; ok {
			selected[decl.Name] = value
		}
	}
	return selected
}

// CommandProcess renders its command line from a text/template over the parameter map.
type CommandProcess struct {
	name       string
	executable string
	params     []Parameter
	tmpl       *template.Template
}

// NewCommandProcess parses commandTemplate, e.g. "bwa mem -t {{.threads}} {{.ref}} {{.reads}}".
func NewCommandProcess(name, executable, commandTemplate string, params []Parameter) (*CommandProcess, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(commandTemplate)
	if err != nil {
		return nil, batcherrors.NewValidationError(name, "invalid command template", err)
	}
	return &CommandProcess{
		name:       name,
		executable: executable,
		params:     append([]Parameter(nil), params...),
		tmpl:       tmpl,
	}, nil
}

func (c *CommandProcess) Name() string { return c.name }

func (c *CommandProcess) Executable() string { return c.executable }

func (c *CommandProcess) Parameters() []Parameter {
	return append([]Parameter(nil), c.params...)
}

// FullCommand fills defaults, validates and renders. Declared but unset optional
// parameters render as empty strings.
func (c *CommandProcess) FullCommand(params map[string]string) (string, error) {
	if err := Validate(c.params, params); err != nil {
		return "", err
	}

	data := make(map[string]any, len(c.params))
	for _, p := range c.params {
		value, ok := params[p.Name]
		if !ok {
			value = p.Default
		}
		if p.Flag {
			data[p.Name] = value == "true"
			continue
		}
		data[p.Name] = value
	}

	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, data); err != nil {
		return "", batcherrors.NewValidationError(c.name, "could not build command from supplied parameters", err)
	}
	return strings.Join(strings.Fields(buf.String()), " "), nil
}
