package execution

import (
	"fmt"
	"maps"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExternalConfig maps stage names to commands that must run first in the same
// shell, typically environment setup such as "module load samtools".
type ExternalConfig struct {
	commands map[string]string
}

// NewExternalConfig copies commands.
func NewExternalConfig(commands map[string]string) *ExternalConfig {
	cp := make(map[string]string, len(commands))
	for name, cmd := range commands {
		cp[name] = strings.TrimSpace(cmd)
	}
	return &ExternalConfig{commands: cp}
}

// LoadExternalConfig reads a YAML map of stage name to pre-command.
func LoadExternalConfig(path string) (*ExternalConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read external configuration: %w", err)
	}
	var commands map[string]string
	if err := yaml.Unmarshal(data, &commands); err != nil {
		return nil, fmt.Errorf("parse external configuration %s: %w", path, err)
	}
	return NewExternalConfig(commands), nil
}

// Command returns the pre-command for name, or "".
func (e *ExternalConfig) Command(name string) string {
	if e == nil {
		return ""
	}
	return e.commands[name]
}

// Len is the number of configured stages.
func (e *ExternalConfig) Len() int {
	if e == nil {
		return 0
	}
	return len(e.commands)
}

// Commands returns a copy of every configured pre-command.
func (e *ExternalConfig) Commands() map[string]string {
	if e == nil {
		return map[string]string{}
	}
	return maps.Clone(e.commands)
}
