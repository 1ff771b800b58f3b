package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ami-agent/ami/pkg/engine"
	"github.com/ami-agent/ami/pkg/logger"
)

// Provider describes one capability-providing unit. Build runs exactly once
// during discovery and owns any resource acquisition (opening the memory
// database, creating the sandbox directory); the returned tools stay bound
// to that single instance for the process lifetime.
type Provider struct {
	Name  string
	Build func() ([]Tool, error)
}

// Registry owns the flat catalog of invocable capabilities. It is built once
// at process start from a static provider list; the capability set is fixed
// and not hot-reloadable.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Discover instantiates each provider and registers its tools. A provider
// that fails to build is skipped with a warning; discovery itself never
// fails.
func (r *Registry) Discover(providers ...Provider) {
	for _, p := range providers {
		if p.Build == nil {
			continue
		}
		tools, err := buildProvider(p)
		if err != nil {
			logger.WarnCF("tools", "Capability provider skipped",
				map[string]any{"provider": p.Name, "error": err.Error()})
			continue
		}
		for _, tool := range tools {
			r.Register(tool)
		}
		logger.InfoCF("tools", "Capability provider registered",
			map[string]any{"provider": p.Name, "tools": len(tools)})
	}
}

// buildProvider isolates provider construction so a panicking constructor is
// demoted to a skipped provider.
func buildProvider(p Provider) (tools []Tool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			tools = nil
			err = fmt.Errorf("provider panicked: %v", rec)
		}
	}()
	return p.Build()
}

// Register binds one tool. Names are unique: a duplicate replaces the
// earlier registration with a warning.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		logger.WarnCF("tools", "Duplicate tool name, replacing earlier registration",
			map[string]any{"tool": name})
	} else {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Catalog returns the engine-facing definitions of every bound operation, in
// registration order. Stable across calls until Reset.
func (r *Registry) Catalog() []engine.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]engine.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, ToolToSchema(r.tools[name]))
	}
	return defs
}

// Summaries returns "name - description" lines for the system prompt's
// tool-guidance section, sorted for stable output.
func (r *Registry) Summaries() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for _, tool := range r.tools {
		out = append(out, fmt.Sprintf("- `%s` - %s", tool.Name(), tool.Description()))
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Reset clears all registrations. Used between independent runs and in
// tests, never mid-session.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = map[string]Tool{}
	r.order = nil
}

// Close tears down every tool that holds resources, aggregating failures.
func (r *Registry) Close() error {
	r.mu.RLock()
	closers := make([]ClosableTool, 0, len(r.tools))
	for _, tool := range r.tools {
		if closer, ok := tool.(ClosableTool); ok {
			closers = append(closers, closer)
		}
	}
	r.mu.RUnlock()

	var errs []string
	for _, closer := range closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", closer.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("tool close failures: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Invoke forwards one call to the named tool. The registry is a transparent
// call-forwarder with one fallback: any uncaught fault (panic, nil result)
// becomes a textual "operation failed" result instead of escaping to the
// dispatch loop.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) *ToolResult {
	logger.InfoCF("tools", "Tool invocation started",
		map[string]any{"tool": name, "args": sanitizeArgs(args)})

	tool, ok := r.Get(name)
	if !ok {
		logger.ErrorCF("tools", "Tool not found", map[string]any{"tool": name})
		return ErrorResult(fmt.Sprintf("operation failed: tool %q not found", name))
	}

	start := time.Now()
	result := safeExecute(ctx, tool, args)
	duration := time.Since(start)

	if result.IsError {
		logger.ErrorCF("tools", "Tool invocation failed",
			map[string]any{"tool": name, "duration_ms": duration.Milliseconds(), "error": result.ForLLM})
	} else {
		logger.InfoCF("tools", "Tool invocation completed",
			map[string]any{"tool": name, "duration_ms": duration.Milliseconds(), "result_length": len(result.ForLLM)})
	}
	return result
}

func safeExecute(ctx context.Context, tool Tool, args map[string]any) (result *ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = ErrorResult(fmt.Sprintf("operation failed: %v", rec))
		}
	}()
	result = tool.Execute(ctx, args)
	if result == nil {
		result = ErrorResult(fmt.Sprintf("operation failed: tool %q returned no result", tool.Name()))
	}
	return result
}

var sensitiveArgKeyFragments = []string{
	"api_key", "apikey", "authorization", "bearer", "password", "secret", "token",
}

func sanitizeArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	sanitized := make(map[string]any, len(args))
	for key, value := range args {
		if isSensitiveArgKey(key) {
			sanitized[key] = "<redacted>"
			continue
		}
		if s, ok := value.(string); ok {
			sanitized[key] = truncateLogString(s)
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}

func isSensitiveArgKey(key string) bool {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(key), "-", "_"))
	for _, fragment := range sensitiveArgKeyFragments {
		if strings.Contains(normalized, fragment) {
			return true
		}
	}
	return false
}

func truncateLogString(value string) string {
	const maxLen = 256
	if len(value) <= maxLen {
		return value
	}
	return value[:maxLen] + "...(truncated)"
}
