package sources

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"communitybot/pkg/logx"
)

// AgentConfig is one entry in the agents YAML file.
type AgentConfig struct {
	ID       string         `yaml:"id"`
	Type     string         `yaml:"type"`
	Enabled  *bool          `yaml:"enabled"`
	Schedule string         `yaml:"schedule"`
	Config   map[string]any `yaml:"config"`
}

type agentsFile struct {
	Agents []AgentConfig `yaml:"agents"`
}

var configLogger = logx.NewLogger("agent-config")

// LoadAgents reads the YAML configuration and registers the enabled
// agents. A missing file is not an error; individual agents that fail
// to build are logged and skipped. Returns the number registered.
func LoadAgents(path string, registry *Registry) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			configLogger.Warn("agent configuration file not found: %s", path)
			return 0, nil
		}
		return 0, fmt.Errorf("read agent configuration: %w", err)
	}

	var file agentsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parse agent configuration: %w", err)
	}
	if len(file.Agents) == 0 {
		configLogger.Warn("no agents defined in %s", path)
		return 0, nil
	}

	registered := 0
	for _, cfg := range file.Agents {
		if cfg.Enabled != nil && !*cfg.Enabled {
			configLogger.Info("skipping disabled agent: %s", cfg.ID)
			continue
		}
		agent, err := NewAgentFromConfig(cfg)
		if err != nil {
			configLogger.Error("failed to create agent %s: %v", cfg.ID, err)
			continue
		}
		registry.Register(agent, cfg.Schedule)
		registered++
	}
	return registered, nil
}

// NewAgentFromConfig builds an agent from one configuration entry.
// ${VAR} values in the config block are replaced from the environment.
func NewAgentFromConfig(cfg AgentConfig) (Agent, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("agent entry missing id")
	}
	settings := expandEnv(cfg.Config).(map[string]any)

	switch cfg.Type {
	case "database":
		connString, err := requireString(settings, "connection_string")
		if err != nil {
			return nil, err
		}
		query, err := requireString(settings, "query")
		if err != nil {
			return nil, err
		}
		return NewDatabaseAgent(cfg.ID, connString, query, DatabaseAgentOptions{
			Category:       optionalString(settings, "category"),
			IDColumn:       optionalString(settings, "id_column"),
			TitleColumn:    optionalString(settings, "title_column"),
			ContentColumns: optionalStrings(settings, "content_columns"),
		}), nil

	case "script":
		path, err := requireString(settings, "script_path")
		if err != nil {
			return nil, err
		}
		return NewScriptAgent(cfg.ID, path, optionalStrings(settings, "script_args"), optionalString(settings, "category")), nil

	default:
		return nil, fmt.Errorf("unknown agent type: %s", cfg.Type)
	}
}

// expandEnv recursively replaces values of the exact form ${VAR} with
// the environment variable. Unset variables keep the literal so the
// failure is visible downstream.
func expandEnv(v any) any {
	switch value := v.(type) {
	case string:
		if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
			name := value[2 : len(value)-1]
			if resolved, ok := os.LookupEnv(name); ok {
				return resolved
			}
		}
		return value
	case map[string]any:
		out := make(map[string]any, len(value))
		for k, item := range value {
			out[k] = expandEnv(item)
		}
		return out
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = expandEnv(item)
		}
		return out
	default:
		return v
	}
}

func requireString(settings map[string]any, key string) (string, error) {
	s := optionalString(settings, key)
	if s == "" {
		return "", fmt.Errorf("missing required config key %q", key)
	}
	return s, nil
}

func optionalString(settings map[string]any, key string) string {
	if v, ok := settings[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func optionalStrings(settings map[string]any, key string) []string {
	v, ok := settings[key]
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
