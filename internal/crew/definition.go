package crew

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Output files produced by the built-in definition.
const (
	ResumeOutputFile    = "tailored_resume.md"
	InterviewOutputFile = "interview_materials.md"
)

//go:embed crew.yaml
var defaultDefinitionYAML []byte

// Agent is a persona the executor adopts for a task.
type Agent struct {
	Name      string   `yaml:"name"`
	Role      string   `yaml:"role"`
	Goal      string   `yaml:"goal"`
	Backstory string   `yaml:"backstory"`
	Tools     []string `yaml:"tools"`
}

// Task is one unit of work. Context names earlier tasks whose output is
// prepended to the prompt; Async tasks start immediately and run concurrently.
type Task struct {
	Name           string   `yaml:"name"`
	Agent          string   `yaml:"agent"`
	Description    string   `yaml:"description"`
	ExpectedOutput string   `yaml:"expected_output"`
	Context        []string `yaml:"context"`
	Async          bool     `yaml:"async"`
	OutputFile     string   `yaml:"output_file"`
}

// Definition is a declarative crew: agents plus tasks in execution order.
type Definition struct {
	Agents []Agent `yaml:"agents"`
	Tasks  []Task  `yaml:"tasks"`
}

// DefaultDefinition returns the built-in four-agent job application crew.
func DefaultDefinition() *Definition {
	def, err := ParseDefinition(defaultDefinitionYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded crew definition is invalid: %v", err))
	}
	return def
}

// LoadDefinition reads and validates a crew definition file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read crew definition %s: %w", path, err)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("crew definition %s: %w", path, err)
	}
	return def, nil
}

// ParseDefinition decodes YAML strictly and validates the result.
func ParseDefinition(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("failed to decode crew definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks names are unique, references resolve, tools are known and
// every context entry points at an earlier task.
func (d *Definition) Validate() error {
	if len(d.Agents) == 0 {
		return fmt.Errorf("crew has no agents")
	}
	if len(d.Tasks) == 0 {
		return fmt.Errorf("crew has no tasks")
	}

	agents := make(map[string]bool, len(d.Agents))
	for _, a := range d.Agents {
		if a.Name == "" || a.Role == "" {
			return fmt.Errorf("agent requires a name and a role")
		}
		if agents[a.Name] {
			return fmt.Errorf("duplicate agent %q", a.Name)
		}
		agents[a.Name] = true
		for _, tool := range a.Tools {
			if !slices.Contains(KnownTools, tool) {
				return fmt.Errorf("agent %q uses unknown tool %q", a.Name, tool)
			}
		}
	}

	seen := make(map[string]bool, len(d.Tasks))
	outputs := make(map[string]bool)
	for _, t := range d.Tasks {
		if t.Name == "" || t.Description == "" {
			return fmt.Errorf("task requires a name and a description")
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate task %q", t.Name)
		}
		if !agents[t.Agent] {
			return fmt.Errorf("task %q references unknown agent %q", t.Name, t.Agent)
		}
		for _, dep := range t.Context {
			if !seen[dep] {
				return fmt.Errorf("task %q context %q must name an earlier task", t.Name, dep)
			}
		}
		if t.OutputFile != "" {
			if outputs[t.OutputFile] {
				return fmt.Errorf("output file %q is written by more than one task", t.OutputFile)
			}
			outputs[t.OutputFile] = true
		}
		seen[t.Name] = true
	}
	return nil
}

// Agent returns the named agent.
func (d *Definition) Agent(name string) (Agent, bool) {
	for _, a := range d.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return Agent{}, false
}
