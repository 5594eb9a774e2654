// Package config loads crosslink configuration from a JSONC file and
// provides the built-in agent definition registry.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrUnknownParser  = errors.New("unknown parser kind")
	ErrUnknownRecover = errors.New("unknown recovery kind")
)

// Parser kinds an agent definition may reference.
const (
	ParserPlaintext  = "plaintext"
	ParserStreamJSON = "stream_json"
)

// Recovery kinds an agent definition may reference.
const (
	RecoveryNone    = "none"
	RecoverySalvage = "salvage"
)

// AgentDef describes one external CLI assistant.
type AgentDef struct {
	// Name is the agent identifier used in tool calls (e.g. "claude").
	Name string `json:"name"`
	// DisplayName is the human-readable CLI name used in messages
	// (e.g. "Claude CLI"). Derived from Name when empty.
	DisplayName string `json:"display_name,omitempty"`
	// Command is the executable to invoke.
	Command string `json:"command"`
	// Args are fixed arguments placed before the prompt.
	Args []string `json:"args,omitempty"`
	// Parser selects the output format: "plaintext" or "stream_json".
	Parser string `json:"parser"`
	// Recovery selects the non-zero-exit policy: "none" or "salvage".
	Recovery string `json:"recovery,omitempty"`
	// VersionKey is the system-event field carrying the CLI version
	// (stream_json only).
	VersionKey string `json:"version_key,omitempty"`
	// TimeoutSeconds bounds one invocation. Zero means the server default.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
	// Env lists environment variable names passed through to the CLI.
	Env []string `json:"env,omitempty"`
	// OutputFileFlag, when set, makes the runner append this flag plus a
	// temp file path and collect the file content after exit (e.g. "-o").
	OutputFileFlag string `json:"output_file_flag,omitempty"`
	// Sandbox runs the CLI inside the configured container image.
	Sandbox bool `json:"sandbox,omitempty"`
}

// ServerConfig holds MCP server settings.
type ServerConfig struct {
	Address           string  `json:"address"`
	LogDir            string  `json:"log_dir"`
	JSONLogs          bool    `json:"json_logs"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	RequestBurst      int     `json:"request_burst"`
}

// HistoryConfig holds invocation persistence settings.
type HistoryConfig struct {
	Dir           string `json:"dir"`
	RetentionDays int    `json:"retention_days"`
	// PurgeSchedule is a standard 5-field cron expression.
	PurgeSchedule string `json:"purge_schedule"`
}

// SandboxConfig holds the optional containerized executor settings.
type SandboxConfig struct {
	Enabled bool   `json:"enabled"`
	Image   string `json:"image"`
}

// Config is the unified crosslink configuration.
type Config struct {
	Server                ServerConfig  `json:"server"`
	History               HistoryConfig `json:"history"`
	Sandbox               SandboxConfig `json:"sandbox"`
	DefaultTimeoutSeconds int           `json:"default_timeout_seconds"`
	// Agents overrides or extends the built-in definitions, matched by name.
	Agents []AgentDef `json:"agents,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:           ":8585",
			LogDir:            "logs",
			RequestsPerSecond: 10,
			RequestBurst:      20,
		},
		History: HistoryConfig{
			Dir:           "data",
			RetentionDays: 14,
			PurgeSchedule: "0 3 * * *",
		},
		Sandbox: SandboxConfig{
			Image: "crosslink-agents:latest",
		},
		DefaultTimeoutSeconds: 600,
	}
}

// BuiltinAgents returns the definitions shipped with crosslink. Stream-json
// agents rely on the tolerant JSONL parser; copilot and cursor-agent print
// plain text and salvage stdout/stderr on non-zero exit.
func BuiltinAgents() []AgentDef {
	return []AgentDef{
		{
			Name:        "claude",
			DisplayName: "Claude CLI",
			Command:     "claude",
			Args:        []string{"--print", "--output-format", "stream-json", "--verbose"},
			Parser:      ParserStreamJSON,
			VersionKey:  "claude_code_version",
		},
		{
			Name:        "gemini",
			DisplayName: "Gemini CLI",
			Command:     "gemini",
			Args:        []string{"-o", "stream-json"},
			Parser:      ParserStreamJSON,
			VersionKey:  "gemini_cli_version",
		},
		{
			Name:        "qwen",
			DisplayName: "Qwen CLI",
			Command:     "qwen",
			Args:        []string{"-o", "stream-json"},
			Parser:      ParserStreamJSON,
			VersionKey:  "qwen_code_version",
		},
		{
			Name:        "codex",
			DisplayName: "Codex CLI",
			Command:     "codex",
			Args:        []string{"exec", "--json"},
			Parser:      ParserStreamJSON,
		},
		{
			Name:        "copilot",
			DisplayName: "Copilot CLI",
			Command:     "copilot",
			Args:        []string{"--silent"},
			Parser:      ParserPlaintext,
			Recovery:    RecoverySalvage,
		},
		{
			Name:        "cursor-agent",
			DisplayName: "Cursor Agent CLI",
			Command:     "cursor-agent",
			Args:        []string{"--print"},
			Parser:      ParserPlaintext,
			Recovery:    RecoverySalvage,
		},
	}
}

// Load reads configuration from path. When path is empty the file is
// discovered via CROSSLINK_CONFIG, ./crosslink.jsonc, then
// ~/.crosslink/crosslink.jsonc; if none exists, defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		var err error
		path, err = findConfigPath()
		if errors.Is(err, ErrConfigNotFound) {
			cfg.Agents = mergeAgents(nil)
			return cfg, nil
		}
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(stripComments(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.Agents = mergeAgents(cfg.Agents)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigPath locates the config file using the documented precedence.
func findConfigPath() (string, error) {
	if env := os.Getenv("CROSSLINK_CONFIG"); env != "" {
		return env, nil
	}
	if _, err := os.Stat("crosslink.jsonc"); err == nil {
		return "crosslink.jsonc", nil
	}
	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".crosslink", "crosslink.jsonc")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrConfigNotFound
}

// mergeAgents overlays user definitions onto the built-ins by name,
// preserving built-in order and appending new agents at the end.
func mergeAgents(overrides []AgentDef) []AgentDef {
	merged := BuiltinAgents()
	index := make(map[string]int, len(merged))
	for i, def := range merged {
		index[def.Name] = i
	}

	for _, def := range overrides {
		if i, ok := index[def.Name]; ok {
			merged[i] = def
		} else {
			index[def.Name] = len(merged)
			merged = append(merged, def)
		}
	}
	return merged
}

// Validate checks agent definitions and server settings.
func (c *Config) Validate() error {
	for _, def := range c.Agents {
		if def.Name == "" {
			return fmt.Errorf("agent definition missing name")
		}
		if def.Command == "" {
			return fmt.Errorf("agent %q: command is required", def.Name)
		}
		switch def.Parser {
		case ParserPlaintext, ParserStreamJSON:
		default:
			return fmt.Errorf("agent %q: %w: %q", def.Name, ErrUnknownParser, def.Parser)
		}
		switch def.Recovery {
		case "", RecoveryNone, RecoverySalvage:
		default:
			return fmt.Errorf("agent %q: %w: %q", def.Name, ErrUnknownRecover, def.Recovery)
		}
		if def.Sandbox && !c.Sandbox.Enabled {
			return fmt.Errorf("agent %q: sandbox requested but sandbox.enabled is false", def.Name)
		}
	}
	if c.DefaultTimeoutSeconds <= 0 {
		return fmt.Errorf("default_timeout_seconds must be positive")
	}
	return nil
}

// Display returns the human-readable CLI name for a definition.
func (d AgentDef) Display() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.Name + " CLI"
}
