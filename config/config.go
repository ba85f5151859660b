// Package config loads agent and team definitions from YAML files and
// builds runnable agents from them.
package config

import (
	"fmt"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentcrew/agent"
	"github.com/hupe1980/agentcrew/model"
	"github.com/hupe1980/agentcrew/model/anthropic"
	"github.com/hupe1980/agentcrew/model/openai"
)

// StringList accepts either a single YAML scalar or a sequence of scalars.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*s = StringList{single}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*s = StringList(list)
		return nil
	default:
		return fmt.Errorf("expected scalar or sequence, got yaml kind %d", value.Kind)
	}
}

// ModelConfig selects and configures an LLM provider.
type ModelConfig struct {
	Provider    string   `yaml:"provider"`
	Name        string   `yaml:"name"`
	Temperature *float64 `yaml:"temperature"`
	APIKey      string   `yaml:"api_key"`
}

// AgentConfig describes a single agent.
type AgentConfig struct {
	Role      string       `yaml:"role"`
	Goal      string       `yaml:"goal"`
	Approach  StringList   `yaml:"approach"`
	Backstory StringList   `yaml:"backstory"`
	MaxIter   *int         `yaml:"max_iter"`
	Model     *ModelConfig `yaml:"model"`
}

// TeamConfig describes a team and its member agents.
type TeamConfig struct {
	Role    string        `yaml:"role"`
	Goal    string        `yaml:"goal"`
	Plan    StringList    `yaml:"plan"`
	MaxIter *int          `yaml:"max_iter"`
	Model   *ModelConfig  `yaml:"model"`
	Agents  []AgentConfig `yaml:"agents"`
}

// Config is the root of a YAML definition file.
type Config struct {
	Team   *TeamConfig   `yaml:"team"`
	Agents []AgentConfig `yaml:"agents"`
}

// Load reads and parses a YAML definition file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses YAML definition data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// BuildModel constructs the configured model. A nil config returns nil so
// callers can fall back to inheritance from a parent team.
func (m *ModelConfig) BuildModel() (model.Model, error) {
	if m == nil {
		return nil, nil
	}

	switch m.Provider {
	case "openai", "":
		return openai.NewModel(func(o *openai.Options) {
			if m.Name != "" {
				o.Model = m.Name
			}
			if m.Temperature != nil {
				o.Temperature = *m.Temperature
			}
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if m.Name != "" {
				o.Model = anthropicsdk.Model(m.Name)
			}
			if m.Temperature != nil {
				o.Temperature = *m.Temperature
			}
			if m.APIKey != "" {
				o.APIKey = m.APIKey
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider: %s", m.Provider)
	}
}

// Build constructs an agent from its config.
func (a *AgentConfig) Build(optFns ...func(o *agent.Options)) (*agent.Agent, error) {
	if a.Role == "" {
		return nil, fmt.Errorf("agent config requires a role")
	}

	llm, err := a.Model.BuildModel()
	if err != nil {
		return nil, fmt.Errorf("agent %q: %w", a.Role, err)
	}

	fns := []func(o *agent.Options){func(o *agent.Options) {
		o.Goal = a.Goal
		o.Approach = []string(a.Approach)
		o.Backstory = []string(a.Backstory)
		if a.MaxIter != nil {
			o.MaxIter = *a.MaxIter
		}
		if llm != nil {
			o.Model = llm
		}
	}}
	fns = append(fns, optFns...)

	return agent.New(a.Role, fns...), nil
}

// Build constructs a team with all of its member agents.
func (t *TeamConfig) Build(optFns ...func(o *agent.TeamOptions)) (*agent.Team, error) {
	if len(t.Agents) == 0 {
		return nil, fmt.Errorf("team config requires at least one agent")
	}

	members := make([]agent.Member, 0, len(t.Agents))
	for _, ac := range t.Agents {
		member, err := ac.Build()
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}

	llm, err := t.Model.BuildModel()
	if err != nil {
		return nil, fmt.Errorf("team %q: %w", t.Role, err)
	}

	fns := []func(o *agent.TeamOptions){func(o *agent.TeamOptions) {
		if t.Role != "" {
			o.Role = t.Role
		}
		if t.Goal != "" {
			o.Goal = t.Goal
		}
		o.Plan = []string(t.Plan)
		if t.MaxIter != nil {
			o.MaxIter = *t.MaxIter
		}
		if llm != nil {
			o.Model = llm
		}
	}}
	fns = append(fns, optFns...)

	return agent.NewTeam(members, fns...), nil
}
