package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ami-agent/ami/pkg/engine"
	"github.com/ami-agent/ami/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.SetNop()
	os.Exit(m.Run())
}

func newTestHistory(t *testing.T, limit int) *History {
	t.Helper()
	return NewHistory(filepath.Join(t.TempDir(), "history.json"), limit)
}

func TestHistoryLoadMissingFile(t *testing.T) {
	h := newTestHistory(t, 16)

	messages, empty := h.Load()
	assert.True(t, empty)
	assert.Empty(t, messages)
}

func TestHistoryAppendRoundTrip(t *testing.T) {
	h := newTestHistory(t, 16)

	require.NoError(t, h.Append(engine.TextMessage(engine.RoleUser, "olá")))
	require.NoError(t, h.Append(engine.TextMessage(engine.RoleAssistant, "oi, tudo bem?")))

	reloaded := NewHistory(h.Path(), 16)
	messages, empty := reloaded.Load()
	assert.False(t, empty)
	require.Len(t, messages, 2)
	assert.Equal(t, engine.RoleUser, messages[0].Role)
	assert.Equal(t, "olá", messages[0].Text())
	assert.Equal(t, "oi, tudo bem?", messages[1].Text())
}

func TestHistoryPreservesToolMessages(t *testing.T) {
	h := newTestHistory(t, 16)

	require.NoError(t, h.Append(engine.TextMessage(engine.RoleUser, "que horas são?")))
	require.NoError(t, h.Append(engine.ChatMessage{
		Role: engine.RoleAssistant,
		ToolCalls: []engine.ToolCall{{
			ID:       "call_1",
			Type:     "function",
			Function: engine.FunctionCall{Name: "obter_horario", Arguments: `{"pais":"brasil"}`},
		}},
	}))
	require.NoError(t, h.Append(engine.ChatMessage{
		Role:       engine.RoleTool,
		Content:    []engine.Part{engine.TextPart("14:30")},
		ToolCallID: "call_1",
		ToolName:   "obter_horario",
	}))

	messages, _ := h.Load()
	require.Len(t, messages, 3)
	require.Len(t, messages[1].ToolCalls, 1)
	assert.Equal(t, "obter_horario", messages[1].ToolCalls[0].Function.Name)
	assert.Equal(t, "call_1", messages[2].ToolCallID)
	assert.Equal(t, "obter_horario", messages[2].ToolName)
}

func TestHistoryWindowEvictsOldestFirst(t *testing.T) {
	h := newTestHistory(t, 4)

	for i := 0; i < 4; i++ {
		require.NoError(t, h.Append(engine.TextMessage(engine.RoleUser, fmt.Sprintf("pergunta %d", i))))
		require.NoError(t, h.Append(engine.TextMessage(engine.RoleAssistant, fmt.Sprintf("resposta %d", i))))
	}

	messages, _ := h.Load()
	require.Len(t, messages, 4)
	assert.Equal(t, "pergunta 2", messages[0].Text())
	assert.Equal(t, "resposta 3", messages[3].Text())
}

func TestHistoryWindowExcludesSystemMessage(t *testing.T) {
	h := newTestHistory(t, 2)

	require.NoError(t, h.Append(engine.TextMessage(engine.RoleSystem, "persona")))
	require.NoError(t, h.Append(engine.TextMessage(engine.RoleUser, "a")))
	require.NoError(t, h.Append(engine.TextMessage(engine.RoleAssistant, "b")))
	require.NoError(t, h.Append(engine.TextMessage(engine.RoleUser, "c")))

	messages, _ := h.Load()
	require.Len(t, messages, 3)
	assert.Equal(t, engine.RoleSystem, messages[0].Role)
	// Window keeps the two newest non-system messages, then drops the
	// leading assistant so the conversation starts with a user turn.
	assert.Equal(t, engine.RoleUser, messages[1].Role)
	assert.Equal(t, "c", messages[2].Text())
}

func TestHistoryRepairsLeadingNonUser(t *testing.T) {
	h := newTestHistory(t, 16)

	require.NoError(t, h.Append(engine.TextMessage(engine.RoleAssistant, "orphaned")))
	require.NoError(t, h.Append(engine.TextMessage(engine.RoleUser, "oi")))
	require.NoError(t, h.Append(engine.TextMessage(engine.RoleAssistant, "olá")))

	messages, _ := h.Load()
	require.Len(t, messages, 2)
	assert.Equal(t, engine.RoleUser, messages[0].Role)
}

func TestHistoryCorruptFileLoadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	h := NewHistory(path, 16)
	messages, empty := h.Load()
	assert.True(t, empty)
	assert.Empty(t, messages)

	// A corrupt document never blocks new writes.
	require.NoError(t, h.Append(engine.TextMessage(engine.RoleUser, "recomeço")))
	messages, empty = h.Load()
	assert.False(t, empty)
	require.Len(t, messages, 1)
}

func TestHistoryRemoveLast(t *testing.T) {
	h := newTestHistory(t, 16)

	require.NoError(t, h.Append(engine.TextMessage(engine.RoleUser, "primeira")))
	require.NoError(t, h.Append(engine.TextMessage(engine.RoleUser, "segunda")))
	require.NoError(t, h.RemoveLast())

	messages, _ := h.Load()
	require.Len(t, messages, 1)
	assert.Equal(t, "primeira", messages[0].Text())

	require.NoError(t, h.RemoveLast())
	require.NoError(t, h.RemoveLast()) // empty history is a no-op
	_, empty := h.Load()
	assert.True(t, empty)
}

func TestHistoryClear(t *testing.T) {
	h := newTestHistory(t, 16)

	require.NoError(t, h.Append(engine.TextMessage(engine.RoleUser, "algo")))
	require.NoError(t, h.Clear())

	_, empty := h.Load()
	assert.True(t, empty)

	// The cleared document still parses as a valid empty list.
	data, err := os.ReadFile(h.Path())
	require.NoError(t, err)
	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.NotNil(t, doc.Messages)
	assert.Empty(t, doc.Messages)
}
