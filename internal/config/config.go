// Package config handles intake configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./intake.yaml, ~/.config/intake/intake.yaml, /etc/intake/intake.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"intake.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "intake", "intake.yaml"))
	}

	paths = append(paths, "/etc/intake/intake.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all intake configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Model      ModelConfig      `yaml:"model"`
	Loop       LoopConfig       `yaml:"loop"`
	Remote     RemoteConfig     `yaml:"remote"`
	QueueBoard QueueBoardConfig `yaml:"queue_board"`
	History    HistoryConfig    `yaml:"history"`
	Doctors    []DoctorConfig   `yaml:"doctors"`
	ClinicDB   string           `yaml:"clinic_db"`
	MemoryDB   string           `yaml:"memory_db"`
	ClinicName string           `yaml:"clinic_name"`
	LogLevel   string           `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ModelConfig defines the language model connection.
type ModelConfig struct {
	Name       string `yaml:"name"`    // e.g. gemini-2.0-flash
	BaseURL    string `yaml:"baseurl"` // API base, defaults to the public endpoint
	APIKey     string `yaml:"api_key"`
	TimeoutSec int    `yaml:"timeout_sec"` // per model call (default 60)
}

// LoopConfig bounds the tool-use loop for a single request.
type LoopConfig struct {
	// MaxToolIterations is the maximum number of tool invocations in one
	// request. Values outside 1..10 fall back to the default of 4.
	MaxToolIterations int `yaml:"max_tool_iterations"`
	// ToolOutputBudget is the maximum number of characters of a tool
	// result folded back into the conversation (default 4000).
	ToolOutputBudget int `yaml:"tool_output_budget"`
	// ToolTimeoutSec is the per-tool-call timeout (default 30).
	ToolTimeoutSec int `yaml:"tool_timeout_sec"`
}

// RemoteConfig defines the remote tool-server subprocess.
type RemoteConfig struct {
	// Command is the executable that speaks MCP over stdio. Empty
	// disables remote tools entirely.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"` // extra KEY=VALUE pairs

	// DescribeTool is the schema-introspection tool that must never be
	// called without an argument; DefaultTable is the argument injected
	// when the model omits one.
	DescribeTool string `yaml:"describe_tool"`
	DefaultTable string `yaml:"default_table"`
}

// QueueBoardConfig defines the optional MQTT waiting-room display feed.
type QueueBoardConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"` // e.g. mqtt://localhost:1883
	Topic    string `yaml:"topic"`  // default clinic/queue
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// DoctorConfig is one duty-roster entry, seeded into the clinic store
// on first boot.
type DoctorConfig struct {
	Name   string `yaml:"name"`
	Room   string `yaml:"room"`
	OnDuty bool   `yaml:"on_duty"`
}

// HistoryConfig bounds conversation growth across requests.
type HistoryConfig struct {
	// MaxMessages caps how much stored history is loaded into a prompt.
	// This is an operational limit, separate from the per-request tool
	// loop bound (default 100).
	MaxMessages int `yaml:"max_messages"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Model: ModelConfig{
			Name:       "gemini-2.0-flash",
			BaseURL:    "https://generativelanguage.googleapis.com/v1beta",
			TimeoutSec: 60,
		},
		Loop: LoopConfig{
			MaxToolIterations: 4,
			ToolOutputBudget:  4000,
			ToolTimeoutSec:    30,
		},
		Remote: RemoteConfig{
			DescribeTool: "describe_table",
			DefaultTable: "patients",
		},
		QueueBoard: QueueBoardConfig{
			Topic: "clinic/queue",
		},
		History: HistoryConfig{MaxMessages: 100},
		Doctors: []DoctorConfig{
			{Name: "Dr. Aminah", Room: "1", OnDuty: true},
			{Name: "Dr. Tan", Room: "2", OnDuty: true},
		},
		ClinicDB:   "clinic.db",
		MemoryDB:   "conversations.db",
		ClinicName: "Klinik Intake",
	}
}
