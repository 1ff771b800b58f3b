package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ami-agent/ami/pkg/engine"
	"github.com/ami-agent/ami/pkg/logger"
	"github.com/ami-agent/ami/pkg/prompt"
	"github.com/ami-agent/ami/pkg/session"
	"github.com/ami-agent/ami/pkg/tools"
	"github.com/google/uuid"
)

// ChatEngine is the inference boundary the dispatcher talks to.
type ChatEngine interface {
	Chat(ctx context.Context, messages []engine.ChatMessage, defs []engine.ToolDefinition, params engine.Params, onFragment engine.FragmentFunc) (*engine.ChatResponse, error)
}

// DefaultResponse is used when the model ends a turn with no text at all.
const DefaultResponse = "Processamento concluído, mas não tenho uma resposta a dar."

// Dispatcher orchestrates one user turn: persist the user message, compose
// the engine input for the current prompt state, loop through tool rounds,
// and persist everything the turn produced.
type Dispatcher struct {
	engine     ChatEngine
	registry   *tools.Registry
	history    *session.History
	composer   *prompt.Composer
	params     engine.Params
	maxRounds  int
	onFragment engine.FragmentFunc

	state prompt.State
}

type Options struct {
	Engine     ChatEngine
	Registry   *tools.Registry
	History    *session.History
	Composer   *prompt.Composer
	Params     engine.Params
	MaxRounds  int
	OnFragment engine.FragmentFunc
}

func NewDispatcher(opts Options) *Dispatcher {
	maxRounds := opts.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 10
	}
	return &Dispatcher{
		engine:     opts.Engine,
		registry:   opts.Registry,
		history:    opts.History,
		composer:   opts.Composer,
		params:     opts.Params,
		maxRounds:  maxRounds,
		onFragment: opts.OnFragment,
		state:      prompt.StateFirst,
	}
}

// State reports the current prompt lifecycle state.
func (d *Dispatcher) State() prompt.State {
	return d.state
}

// Resume moves the lifecycle directly to continuation. Called at startup
// when a previous session's history was loaded.
func (d *Dispatcher) Resume() {
	d.state = prompt.StateContinuation
}

// RunTurn processes one user utterance through the tool-calling loop and
// returns the assistant's final text. On engine failure the user message is
// rolled back from history so a retry starts clean.
func (d *Dispatcher) RunTurn(ctx context.Context, userText string, mediaRefs []string) (string, error) {
	turnID := "turn-" + uuid.NewString()
	logger.InfoCF("agent", "Turn started", map[string]any{
		"turn_id": turnID,
		"state":   d.state.String(),
		"media":   len(mediaRefs),
	})

	userMsg := buildUserMessage(userText, mediaRefs)
	if err := d.history.Append(userMsg); err != nil {
		return "", fmt.Errorf("persisting user message: %w", err)
	}

	stored, _ := d.history.Load()
	messages := d.composer.Inject(stored, d.state)
	catalog := d.registry.Catalog()

	var finalContent string
	rounds := 0

	for rounds < d.maxRounds {
		rounds++
		logger.DebugCF("agent", "Engine round", map[string]any{
			"turn_id": turnID,
			"round":   rounds,
			"max":     d.maxRounds,
		})

		response, err := d.engine.Chat(ctx, messages, catalog, d.params, d.onFragment)
		if err != nil {
			if rounds == 1 {
				if rbErr := d.history.RemoveLast(); rbErr != nil {
					logger.WarnCF("agent", "Failed to roll back user message",
						map[string]any{"turn_id": turnID, "error": rbErr.Error()})
				}
			}
			logger.ErrorCF("agent", "Engine call failed", map[string]any{
				"turn_id": turnID,
				"round":   rounds,
				"error":   err.Error(),
			})
			return "", fmt.Errorf("engine call failed: %w", err)
		}

		if len(response.ToolRequests) == 0 {
			finalContent = strings.TrimSpace(response.Content)
			break
		}

		names := make([]string, 0, len(response.ToolRequests))
		for _, req := range response.ToolRequests {
			names = append(names, req.Name)
		}
		logger.InfoCF("agent", "Engine requested tool calls", map[string]any{
			"turn_id": turnID,
			"round":   rounds,
			"tools":   names,
		})

		assistantMsg := buildToolCallMessage(response)
		messages = append(messages, assistantMsg)
		if err := d.history.Append(assistantMsg); err != nil {
			logger.ErrorCF("agent", "Failed to persist tool-call message",
				map[string]any{"turn_id": turnID, "error": err.Error()})
		}

		// Requests run strictly in the order the engine emitted them.
		for _, req := range response.ToolRequests {
			result := d.registry.Invoke(ctx, req.Name, req.Arguments)
			toolMsg := engine.ChatMessage{
				Role:       engine.RoleTool,
				Content:    []engine.Part{engine.TextPart(result.ForLLM)},
				ToolCallID: req.ID,
				ToolName:   req.Name,
			}
			messages = append(messages, toolMsg)
			if err := d.history.Append(toolMsg); err != nil {
				logger.ErrorCF("agent", "Failed to persist tool result",
					map[string]any{"turn_id": turnID, "tool": req.Name, "error": err.Error()})
			}
		}
	}

	if finalContent == "" {
		finalContent = DefaultResponse
	}

	if err := d.history.Append(engine.TextMessage(engine.RoleAssistant, finalContent)); err != nil {
		logger.ErrorCF("agent", "Failed to persist assistant message",
			map[string]any{"turn_id": turnID, "error": err.Error()})
	}

	d.state = prompt.StateContinuation

	logger.InfoCF("agent", "Turn completed", map[string]any{
		"turn_id":      turnID,
		"rounds":       rounds,
		"final_length": len(finalContent),
	})
	return finalContent, nil
}

func buildUserMessage(text string, mediaRefs []string) engine.ChatMessage {
	parts := []engine.Part{engine.TextPart(text)}
	for _, ref := range mediaRefs {
		parts = append(parts, engine.ImagePart(ref))
	}
	return engine.ChatMessage{Role: engine.RoleUser, Content: parts}
}

func buildToolCallMessage(response *engine.ChatResponse) engine.ChatMessage {
	msg := engine.ChatMessage{Role: engine.RoleAssistant}
	if response.Content != "" {
		msg.Content = []engine.Part{engine.TextPart(response.Content)}
	}
	for _, req := range response.ToolRequests {
		argsJSON, _ := json.Marshal(req.Arguments)
		msg.ToolCalls = append(msg.ToolCalls, engine.ToolCall{
			ID:   req.ID,
			Type: "function",
			Function: engine.FunctionCall{
				Name:      req.Name,
				Arguments: string(argsJSON),
			},
		})
	}
	return msg
}
