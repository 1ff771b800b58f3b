package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Engine  EngineConfig  `json:"engine"`
	History HistoryConfig `json:"history"`
	Memory  MemoryConfig  `json:"memory"`
	Tools   ToolsConfig   `json:"tools"`
	Prompt  PromptConfig  `json:"prompt"`
	mu      sync.RWMutex
}

type EngineConfig struct {
	Host              string  `json:"host" env:"AMI_ENGINE_HOST"`
	Model             string  `json:"model" env:"AMI_ENGINE_MODEL"`
	SummarizerModel   string  `json:"summarizer_model" env:"AMI_ENGINE_SUMMARIZER_MODEL"`
	MaxTokens         int     `json:"max_tokens" env:"AMI_ENGINE_MAX_TOKENS"`
	Temperature       float64 `json:"temperature" env:"AMI_ENGINE_TEMPERATURE"`
	MaxToolIterations int     `json:"max_tool_iterations" env:"AMI_ENGINE_MAX_TOOL_ITERATIONS"`
}

type HistoryConfig struct {
	// Limit is the sliding-window bound on persisted messages, excluding
	// the system message. 0 means unbounded.
	Limit     int    `json:"limit" env:"AMI_HISTORY_LIMIT"`
	Workspace string `json:"workspace" env:"AMI_HISTORY_WORKSPACE"`
}

type MemoryConfig struct {
	SearchLimit int `json:"search_limit" env:"AMI_MEMORY_SEARCH_LIMIT"`
	RecentLimit int `json:"recent_limit" env:"AMI_MEMORY_RECENT_LIMIT"`
}

type WebToolConfig struct {
	Enabled    bool   `json:"enabled" env:"AMI_TOOLS_WEB_ENABLED"`
	Region     string `json:"region" env:"AMI_TOOLS_WEB_REGION"`
	MaxResults int    `json:"max_results" env:"AMI_TOOLS_WEB_MAX_RESULTS"`
}

type FilesToolConfig struct {
	SandboxDir string `json:"sandbox_dir" env:"AMI_TOOLS_FILES_SANDBOX_DIR"`
}

type ToolsConfig struct {
	Web   WebToolConfig   `json:"web"`
	Files FilesToolConfig `json:"files"`
}

type PromptConfig struct {
	AssistantName string `json:"assistant_name" env:"AMI_PROMPT_ASSISTANT_NAME"`
	PersonaFile   string `json:"persona_file" env:"AMI_PROMPT_PERSONA_FILE"`
}

func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Host:              "http://localhost:1234",
			Model:             "google/gemma-3-12b",
			SummarizerModel:   "",
			MaxTokens:         4096,
			Temperature:       0.7,
			MaxToolIterations: 10,
		},
		History: HistoryConfig{
			Limit:     16,
			Workspace: "~/.ami",
		},
		Memory: MemoryConfig{
			SearchLimit: 10,
			RecentLimit: 5,
		},
		Tools: ToolsConfig{
			Web: WebToolConfig{
				Enabled:    true,
				Region:     "br-pt",
				MaxResults: 5,
			},
			Files: FilesToolConfig{
				SandboxDir: "file_sandbox",
			},
		},
		Prompt: PromptConfig{
			AssistantName: "Ami",
			PersonaFile:   "PERSONA.md",
		},
	}
}

// DefaultPath returns the config file location inside the default workspace.
func DefaultPath() string {
	return filepath.Join(expandHome("~/.ami"), "config.json")
}

// LoadConfig reads the JSON config at path, layering it over defaults and
// applying AMI_* environment overrides last. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if envErr := env.Parse(cfg); envErr != nil {
				return nil, envErr
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// WorkspacePath returns the expanded workspace directory that holds
// history.json, the memory database, the persona file, and the file sandbox.
func (c *Config) WorkspacePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.History.Workspace)
}

func (c *Config) HistoryPath() string {
	return filepath.Join(c.WorkspacePath(), "history.json")
}

func (c *Config) MemoryDBPath() string {
	return filepath.Join(c.WorkspacePath(), "memories.db")
}

func (c *Config) SandboxPath() string {
	c.mu.RLock()
	sandbox := c.Tools.Files.SandboxDir
	c.mu.RUnlock()
	if filepath.IsAbs(sandbox) {
		return sandbox
	}
	return filepath.Join(c.WorkspacePath(), sandbox)
}

func (c *Config) PersonaPath() string {
	c.mu.RLock()
	persona := c.Prompt.PersonaFile
	c.mu.RUnlock()
	if filepath.IsAbs(persona) {
		return persona
	}
	return filepath.Join(c.WorkspacePath(), persona)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
