package workflow

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Definition is a declarative stage workflow, typically loaded from a
// YAML file checked in next to the application.
type Definition struct {
	Name            string            `yaml:"name"`
	Version         string            `yaml:"version"`
	Description     string            `yaml:"description"`
	ContinueOnError bool              `yaml:"continue_on_error"`
	Stages          []StageDefinition `yaml:"stages"`
}

// StageDefinition is the declarative form of a Stage. Validators are
// code, not configuration; they are attached after parsing.
type StageDefinition struct {
	Name           string `yaml:"name"`
	Description    string `yaml:"description"`
	PromptTemplate string `yaml:"prompt_template"`
	MaxRetries     int    `yaml:"max_retries"`
}

// ParseDefinition parses and validates a workflow definition from YAML
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing workflow YAML: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("workflow validation failed: %w", err)
	}
	return &def, nil
}

// Validate checks the definition for structural problems
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if len(d.Stages) == 0 {
		return fmt.Errorf("workflow %q has no stages", d.Name)
	}

	seen := make(map[string]bool, len(d.Stages))
	for i, stage := range d.Stages {
		if stage.Name == "" {
			return fmt.Errorf("stage %d has no name", i)
		}
		if seen[stage.Name] {
			return fmt.Errorf("duplicate stage name %q", stage.Name)
		}
		seen[stage.Name] = true
		if stage.PromptTemplate == "" {
			return fmt.Errorf("stage %q has no prompt template", stage.Name)
		}
		if stage.MaxRetries < 0 {
			return fmt.Errorf("stage %q has negative max_retries", stage.Name)
		}
	}
	return nil
}

// BuildStages converts the definition into runnable stages. validators
// maps stage names to validator functions; stages without an entry run
// unvalidated.
func (d *Definition) BuildStages(validators map[string]Validator) []Stage {
	stages := make([]Stage, len(d.Stages))
	for i, def := range d.Stages {
		stages[i] = Stage{
			Name:           def.Name,
			Description:    def.Description,
			PromptTemplate: def.PromptTemplate,
			MaxRetries:     def.MaxRetries,
			Validator:      validators[def.Name],
		}
	}
	return stages
}
