package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stageflow/stageflow/internal/machine"
	"github.com/stageflow/stageflow/internal/step"
)

// modesFile is the on-disk shape of a modes.yaml preset:
//
//	modes:
//	  market-research: skip
//	  architecture: manual
type modesFile struct {
	Modes map[string]string `yaml:"modes"`
}

// LoadModes parses a modes.yaml preset mapping step identifiers to
// automation modes. A missing file yields an empty map; unknown step ids
// or modes are errors so typos fail loudly instead of silently running.
func LoadModes(path string) (map[step.Step]machine.Mode, error) {
	modes := make(map[step.Step]machine.Mode)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return modes, nil
		}
		return nil, fmt.Errorf("failed to read modes file: %w", err)
	}

	var file modesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse modes file %s: %w", path, err)
	}

	for id, modeStr := range file.Modes {
		s, err := step.FromID(id)
		if err != nil {
			return nil, fmt.Errorf("modes file %s: %w", path, err)
		}
		mode := machine.Mode(modeStr)
		switch mode {
		case machine.ModeAuto, machine.ModeManual, machine.ModeSkip:
		default:
			return nil, fmt.Errorf("modes file %s: unknown mode %q for step %s", path, modeStr, id)
		}
		modes[s] = mode
	}

	return modes, nil
}
