package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestDefaultConfig_Engine(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Engine.Host != "http://localhost:1234" {
		t.Errorf("Host = %q, want %q", cfg.Engine.Host, "http://localhost:1234")
	}
	if cfg.Engine.Model == "" {
		t.Error("Model should not be empty")
	}
	if cfg.Engine.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %d, want 4096", cfg.Engine.MaxTokens)
	}
	if cfg.Engine.Temperature == 0 {
		t.Error("Temperature should have default value")
	}
	if cfg.Engine.MaxToolIterations != 10 {
		t.Errorf("MaxToolIterations = %d, want 10", cfg.Engine.MaxToolIterations)
	}
}

func TestDefaultConfig_History(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.History.Limit != 16 {
		t.Errorf("Limit = %d, want 16", cfg.History.Limit)
	}
	if cfg.History.Workspace == "" {
		t.Error("Workspace should not be empty")
	}
}

func TestDefaultConfig_Memory(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Memory.SearchLimit != 10 {
		t.Errorf("SearchLimit = %d, want 10", cfg.Memory.SearchLimit)
	}
	if cfg.Memory.RecentLimit != 5 {
		t.Errorf("RecentLimit = %d, want 5", cfg.Memory.RecentLimit)
	}
}

func TestDefaultConfig_Tools(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.Tools.Web.Enabled {
		t.Error("Web tools should be enabled by default")
	}
	if cfg.Tools.Web.Region != "br-pt" {
		t.Errorf("Region = %q, want %q", cfg.Tools.Web.Region, "br-pt")
	}
	if cfg.Tools.Web.MaxResults != 5 {
		t.Errorf("MaxResults = %d, want 5", cfg.Tools.Web.MaxResults)
	}
	if cfg.Tools.Files.SandboxDir == "" {
		t.Error("SandboxDir should not be empty")
	}
}

func TestDefaultConfig_Prompt(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Prompt.AssistantName != "Ami" {
		t.Errorf("AssistantName = %q, want %q", cfg.Prompt.AssistantName, "Ami")
	}
	if cfg.Prompt.PersonaFile != "PERSONA.md" {
		t.Errorf("PersonaFile = %q, want %q", cfg.Prompt.PersonaFile, "PERSONA.md")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-config.json")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Engine.Host != DefaultConfig().Engine.Host {
		t.Errorf("expected defaults for missing file, got host %q", cfg.Engine.Host)
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"engine": {"host": "http://10.0.0.2:1234", "model": "outro/modelo", "max_tokens": 2048, "temperature": 0.7, "max_tool_iterations": 10},
		"history": {"limit": 8, "workspace": "~/.ami"},
		"tools": {"web": {"enabled": false, "region": "us-en", "max_results": 3}, "files": {"sandbox_dir": "file_sandbox"}}
	}`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Engine.Host != "http://10.0.0.2:1234" {
		t.Errorf("Host = %q, want file value", cfg.Engine.Host)
	}
	if cfg.Engine.MaxTokens != 2048 {
		t.Errorf("MaxTokens = %d, want 2048", cfg.Engine.MaxTokens)
	}
	if cfg.History.Limit != 8 {
		t.Errorf("Limit = %d, want 8", cfg.History.Limit)
	}
	if cfg.Tools.Web.Enabled {
		t.Error("Web tools should be disabled by the file")
	}
	if cfg.Tools.Web.Region != "us-en" {
		t.Errorf("Region = %q, want %q", cfg.Tools.Web.Region, "us-en")
	}
	// Sections absent from the file keep their defaults.
	if cfg.Memory.SearchLimit != 10 {
		t.Errorf("SearchLimit = %d, want default 10", cfg.Memory.SearchLimit)
	}
	if cfg.Prompt.AssistantName != "Ami" {
		t.Errorf("AssistantName = %q, want default", cfg.Prompt.AssistantName)
	}
}

func TestLoadConfig_EnvOverridesWithoutFile(t *testing.T) {
	t.Setenv("AMI_ENGINE_MODEL", "env/modelo")
	path := filepath.Join(t.TempDir(), "missing-config.json")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got := cfg.Engine.Model; got != "env/modelo" {
		t.Fatalf("expected env override model, got %q", got)
	}
}

func TestLoadConfig_EnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"engine": {"host": "http://do-arquivo:1234"}}`), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Setenv("AMI_ENGINE_HOST", "http://do-ambiente:1234")
	t.Setenv("AMI_ENGINE_MAX_TOKENS", "1024")
	t.Setenv("AMI_TOOLS_WEB_ENABLED", "false")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got := cfg.Engine.Host; got != "http://do-ambiente:1234" {
		t.Fatalf("expected env host to win, got %q", got)
	}
	if cfg.Engine.MaxTokens != 1024 {
		t.Errorf("MaxTokens = %d, want env value 1024", cfg.Engine.MaxTokens)
	}
	if cfg.Tools.Web.Enabled {
		t.Error("expected env to disable web tools")
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{nope"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")

	cfg := DefaultConfig()
	cfg.Engine.Model = "salvo/modelo"
	cfg.History.Limit = 42
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Engine.Model != "salvo/modelo" {
		t.Errorf("Model = %q, want %q", loaded.Engine.Model, "salvo/modelo")
	}
	if loaded.History.Limit != 42 {
		t.Errorf("Limit = %d, want 42", loaded.History.Limit)
	}
}

func TestSaveConfig_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file permission bits are not enforced on Windows")
	}

	path := filepath.Join(t.TempDir(), "config.json")
	if err := SaveConfig(path, DefaultConfig()); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file has permission %04o, want 0600", perm)
	}
}

func TestWorkspacePaths(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.History.Workspace = dir

	if got := cfg.WorkspacePath(); got != dir {
		t.Errorf("WorkspacePath = %q, want %q", got, dir)
	}
	if got := cfg.HistoryPath(); got != filepath.Join(dir, "history.json") {
		t.Errorf("HistoryPath = %q", got)
	}
	if got := cfg.MemoryDBPath(); got != filepath.Join(dir, "memories.db") {
		t.Errorf("MemoryDBPath = %q", got)
	}
	if got := cfg.SandboxPath(); got != filepath.Join(dir, "file_sandbox") {
		t.Errorf("SandboxPath = %q", got)
	}
	if got := cfg.PersonaPath(); got != filepath.Join(dir, "PERSONA.md") {
		t.Errorf("PersonaPath = %q", got)
	}
}

func TestAbsoluteSandboxAndPersona(t *testing.T) {
	cfg := DefaultConfig()
	cfg.History.Workspace = t.TempDir()
	cfg.Tools.Files.SandboxDir = "/var/tmp/caixa"
	cfg.Prompt.PersonaFile = "/etc/ami/persona.md"

	if got := cfg.SandboxPath(); got != "/var/tmp/caixa" {
		t.Errorf("SandboxPath = %q, want absolute value kept", got)
	}
	if got := cfg.PersonaPath(); got != "/etc/ami/persona.md" {
		t.Errorf("PersonaPath = %q, want absolute value kept", got)
	}
}

func TestWorkspaceHomeExpansion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.History.Workspace = "~/.ami"

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("UserHomeDir failed: %v", err)
	}
	if got := cfg.WorkspacePath(); got != filepath.Join(home, ".ami") {
		t.Errorf("WorkspacePath = %q, want under home", got)
	}
}

func TestDefaultPath(t *testing.T) {
	if got := filepath.Base(DefaultPath()); got != "config.json" {
		t.Errorf("DefaultPath base = %q", got)
	}
	if !filepath.IsAbs(DefaultPath()) {
		t.Errorf("DefaultPath should be absolute, got %q", DefaultPath())
	}
}
