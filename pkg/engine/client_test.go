package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/ami-agent/ami/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.SetNop()
	os.Exit(m.Run())
}

func sseServer(t *testing.T, lines []string, capture *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/models" {
			fmt.Fprint(w, `{"data":[]}`)
			return
		}
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "data: %s\n\n", line)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestChatStreamsContent(t *testing.T) {
	server := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"Olá"}}]}`,
		`{"choices":[{"delta":{"content":", tudo"}}]}`,
		`{"choices":[{"delta":{"content":" bem?"}}]}`,
	}, nil)
	defer server.Close()

	client := NewClient(server.URL)
	var fragments []string
	resp, err := client.Chat(context.Background(),
		[]ChatMessage{TextMessage(RoleUser, "oi")},
		nil, Params{Model: "test"},
		func(fragment string) { fragments = append(fragments, fragment) })
	require.NoError(t, err)

	assert.Equal(t, "Olá, tudo bem?", resp.Content)
	assert.Empty(t, resp.ToolRequests)
	assert.Equal(t, []string{"Olá", ", tudo", " bem?"}, fragments)
}

func TestChatAccumulatesToolCallDeltas(t *testing.T) {
	server := sseServer(t, []string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"obter_horario","arguments":""}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"pais\":"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"brasil\"}"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":1,"id":"call_2","function":{"name":"pesquisar_web","arguments":"{\"busca\":\"clima\"}"}}]}}]}`,
	}, nil)
	defer server.Close()

	client := NewClient(server.URL)
	resp, err := client.Chat(context.Background(),
		[]ChatMessage{TextMessage(RoleUser, "que horas?")},
		nil, Params{Model: "test"}, nil)
	require.NoError(t, err)

	require.Len(t, resp.ToolRequests, 2)
	assert.Equal(t, "call_1", resp.ToolRequests[0].ID)
	assert.Equal(t, "obter_horario", resp.ToolRequests[0].Name)
	assert.Equal(t, map[string]any{"pais": "brasil"}, resp.ToolRequests[0].Arguments)
	assert.Equal(t, "pesquisar_web", resp.ToolRequests[1].Name)
	assert.Equal(t, map[string]any{"busca": "clima"}, resp.ToolRequests[1].Arguments)
}

func TestChatMalformedToolArgs(t *testing.T) {
	server := sseServer(t, []string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"obter_horario","arguments":"{trunca"}}]}}]}`,
	}, nil)
	defer server.Close()

	client := NewClient(server.URL)
	resp, err := client.Chat(context.Background(),
		[]ChatMessage{TextMessage(RoleUser, "oi")},
		nil, Params{Model: "test"}, nil)
	require.NoError(t, err)

	// Malformed arguments degrade to an empty map, never an error.
	require.Len(t, resp.ToolRequests, 1)
	assert.Equal(t, "obter_horario", resp.ToolRequests[0].Name)
	assert.Empty(t, resp.ToolRequests[0].Arguments)
}

func TestChatRequestShape(t *testing.T) {
	var captured map[string]any
	server := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"ok"}}]}`,
	}, &captured)
	defer server.Close()

	client := NewClient(server.URL)
	tools := []ToolDefinition{{
		Type: "function",
		Function: ToolFunctionDefinition{
			Name:        "obter_horario",
			Description: "horário atual",
			Parameters:  map[string]any{"type": "object"},
		},
	}}
	_, err := client.Chat(context.Background(),
		[]ChatMessage{
			TextMessage(RoleSystem, "persona"),
			{Role: RoleUser, Content: []Part{TextPart("veja isso"), ImagePart("foto.png")}},
		},
		tools, Params{Model: "google/gemma-3-12b", MaxTokens: 4096, Temperature: 0.7}, nil)
	require.NoError(t, err)

	assert.Equal(t, "google/gemma-3-12b", captured["model"])
	assert.Equal(t, true, captured["stream"])
	assert.Equal(t, float64(4096), captured["max_tokens"])
	assert.InDelta(t, 0.7, captured["temperature"], 0.001)
	assert.Equal(t, "auto", captured["tool_choice"])

	messages, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	user := messages[1].(map[string]any)
	content, _ := user["content"].(string)
	assert.Contains(t, content, "veja isso")
	// Media parts ride along as textual markers.
	assert.Contains(t, content, "[anexo: foto.png]")
}

func TestChatEngineErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not loaded"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Chat(context.Background(),
		[]ChatMessage{TextMessage(RoleUser, "oi")},
		nil, Params{Model: "test"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestPing(t *testing.T) {
	server := sseServer(t, nil, nil)
	client := NewClient(server.URL)
	assert.NoError(t, client.Ping(context.Background()))
	server.Close()

	assert.Error(t, client.Ping(context.Background()))
}

func TestComplete(t *testing.T) {
	server := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"  resumo do arquivo  "}}]}`,
	}, nil)
	defer server.Close()

	client := NewClient(server.URL)
	out, err := client.Complete(context.Background(), "resuma isto", Params{Model: "test"})
	require.NoError(t, err)
	assert.Equal(t, "resumo do arquivo", out)
}

func TestMessageText(t *testing.T) {
	msg, err := json.Marshal(ChatMessage{
		Role: RoleUser,
		Content: []Part{
			TextPart("primeira parte"),
			ImagePart("png"),
			TextPart("segunda parte"),
		},
	})
	require.NoError(t, err)

	var decoded ChatMessage
	require.NoError(t, json.Unmarshal(msg, &decoded))
	require.Len(t, decoded.Content, 3)
	assert.True(t, strings.Contains(decoded.Text(), "primeira parte"))
	assert.True(t, strings.Contains(decoded.Text(), "segunda parte"))
}
