package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ami-agent/ami/pkg/engine"
	"github.com/ami-agent/ami/pkg/logger"
)

// Document is the on-disk shape of a persisted conversation.
type Document struct {
	Messages []engine.ChatMessage `json:"messages"`
}

// History is the durable, ordered, size-bounded conversation log. The whole
// document is rewritten on every append; with a single in-flight turn there
// are no concurrent writers, so the only hazard is a torn write, which the
// temp-write-then-rename replace rules out.
type History struct {
	path  string
	limit int
}

// NewHistory binds a history to its document path. limit bounds the message
// count excluding the system message; 0 means unbounded.
func NewHistory(path string, limit int) *History {
	if limit < 0 {
		limit = 0
	}
	return &History{path: path, limit: limit}
}

func (h *History) Path() string { return h.path }

// Load reads the persisted messages, applies the window and the leading-user
// repair, and reports whether the result is empty (the "first conversation"
// signal). Missing or corrupted storage reads as an empty history.
func (h *History) Load() ([]engine.ChatMessage, bool) {
	doc := h.readDocument()
	messages := applyWindow(doc.Messages, h.limit)
	return messages, len(messages) == 0
}

// Append persists one message, evicting from the head when the window
// overflows. The write is all-or-nothing.
func (h *History) Append(msg engine.ChatMessage) error {
	doc := h.readDocument()
	doc.Messages = append(doc.Messages, msg)
	doc.Messages = applyWindow(doc.Messages, h.limit)
	return h.writeDocument(doc)
}

// RemoveLast drops the most recently persisted message. Used to roll back a
// user message when the turn's engine call fails.
func (h *History) RemoveLast() error {
	doc := h.readDocument()
	if len(doc.Messages) == 0 {
		return nil
	}
	doc.Messages = doc.Messages[:len(doc.Messages)-1]
	doc.Messages = applyWindow(doc.Messages, h.limit)
	return h.writeDocument(doc)
}

// Clear resets the document to an empty message list.
func (h *History) Clear() error {
	return h.writeDocument(Document{Messages: []engine.ChatMessage{}})
}

func (h *History) readDocument() Document {
	data, err := os.ReadFile(h.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WarnCF("session", "History unreadable, starting empty",
				map[string]any{"path": h.path, "error": err.Error()})
		}
		return Document{}
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.WarnCF("session", "History corrupted, starting empty",
			map[string]any{"path": h.path, "error": err.Error()})
		return Document{}
	}
	return doc
}

func (h *History) writeDocument(doc Document) error {
	if doc.Messages == nil {
		doc.Messages = []engine.ChatMessage{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	dir := filepath.Dir(h.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".history-*.json")
	if err != nil {
		return fmt.Errorf("create history temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write history temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close history temp file: %w", err)
	}
	if err := os.Rename(tmpName, h.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace history document: %w", err)
	}
	return nil
}

// applyWindow enforces the two persistence invariants in order: the sliding
// window bound (system message excluded from the count), then the repair that
// guarantees the first non-system message has role user. A stray system
// message is kept only at index 0.
func applyWindow(messages []engine.ChatMessage, limit int) []engine.ChatMessage {
	if len(messages) == 0 {
		return messages
	}

	var system *engine.ChatMessage
	rest := make([]engine.ChatMessage, 0, len(messages))
	for i, m := range messages {
		if m.Role == engine.RoleSystem {
			if i == 0 && system == nil {
				s := m
				system = &s
			}
			continue
		}
		rest = append(rest, m)
	}

	if limit > 0 && len(rest) > limit {
		rest = rest[len(rest)-limit:]
	}

	for len(rest) > 0 && rest[0].Role != engine.RoleUser {
		rest = rest[1:]
	}

	if system == nil {
		return rest
	}
	if len(rest) == 0 {
		return []engine.ChatMessage{*system}
	}
	return append([]engine.ChatMessage{*system}, rest...)
}
