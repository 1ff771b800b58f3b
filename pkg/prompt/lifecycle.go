package prompt

import (
	"fmt"
	"os"
	"strings"

	"github.com/ami-agent/ami/pkg/engine"
	"github.com/ami-agent/ami/pkg/logger"
)

// State tracks where the conversation is in its lifetime. The transition
// StateFirst -> StateContinuation happens exactly once, right after the first
// user turn's response is produced.
type State int

const (
	// StateFirst means no prior user turn was ever recorded.
	StateFirst State = iota
	// StateContinuation means at least one prior turn exists.
	StateContinuation
)

func (s State) String() string {
	if s == StateFirst {
		return "first"
	}
	return "continuation"
}

// Composer assembles the system message from its fixed sections and injects
// it into a conversation. The persona section can be overridden by a persona
// file in the workspace.
type Composer struct {
	assistantName string
	personaPath   string
	toolSummaries []string
}

func NewComposer(assistantName, personaPath string) *Composer {
	name := strings.TrimSpace(assistantName)
	if name == "" {
		name = "Ami"
	}
	return &Composer{
		assistantName: name,
		personaPath:   personaPath,
	}
}

// SetToolSummaries supplies the "name - description" lines for the
// tool-guidance section. Called once after capability discovery.
func (c *Composer) SetToolSummaries(summaries []string) {
	c.toolSummaries = summaries
}

// Compose builds the full system message for the given state: bridge,
// persona, context rules (state-dependent), tool guidance, and style.
func (c *Composer) Compose(state State) (string, error) {
	persona, err := c.personaSection()
	if err != nil {
		return "", err
	}

	sections := []string{
		c.bridgeSection(),
		persona,
		c.contextRulesSection(state),
		c.toolGuidanceSection(),
		c.styleSection(),
	}
	return strings.Join(sections, "\n\n---\n\n"), nil
}

// Fallback is the minimal one-line persona used when template composition
// fails. The session continues instead of aborting.
func (c *Composer) Fallback() string {
	return fmt.Sprintf("Você é %s, uma assistente pessoal prestativa. Responda sempre em português.", c.assistantName)
}

// Inject returns a new conversation with exactly one system message at index
// 0. Any pre-existing system message is removed wherever it sits, so a
// corrupted conversation heals on the next injection. The caller replaces its
// conversation reference with the returned slice.
func (c *Composer) Inject(conversation []engine.ChatMessage, state State) []engine.ChatMessage {
	content, err := c.Compose(state)
	if err != nil {
		logger.WarnCF("prompt", "System prompt composition failed, using fallback persona",
			map[string]any{"error": err.Error()})
		content = c.Fallback()
	}

	out := make([]engine.ChatMessage, 0, len(conversation)+1)
	out = append(out, engine.TextMessage(engine.RoleSystem, content))
	for _, m := range conversation {
		if m.Role == engine.RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (c *Composer) bridgeSection() string {
	return fmt.Sprintf("# %s\n\nVocê é %s, a assistente pessoal do usuário neste terminal. "+
		"A conversa abaixo é a continuação direta do histórico persistido entre vocês.",
		c.assistantName, c.assistantName)
}

func (c *Composer) personaSection() (string, error) {
	if c.personaPath != "" {
		data, err := os.ReadFile(c.personaPath)
		if err == nil {
			text := strings.TrimSpace(string(data))
			if text != "" {
				return "## Persona\n\n" + text, nil
			}
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("read persona file %s: %w", c.personaPath, err)
		}
	}
	return "## Persona\n\n" +
		"Amigável, direta e curiosa. Trata o usuário pelo nome quando o conhece, " +
		"admite quando não sabe algo e prefere respostas curtas a rodeios.", nil
}

func (c *Composer) contextRulesSection(state State) string {
	if state == StateFirst {
		return "## Contexto\n\n" +
			"Esta é a primeira conversa de vocês. Não há histórico anterior: " +
			"apresente-se brevemente e não finja lembrar de conversas que não aconteceram."
	}
	return "## Contexto\n\n" +
		"Vocês já conversaram antes. O histórico acima é real: use-o com naturalidade " +
		"e nunca alegue não ter acesso às mensagens anteriores desta conversa."
}

func (c *Composer) toolGuidanceSection() string {
	var sb strings.Builder
	sb.WriteString("## Ferramentas\n\n")
	sb.WriteString("Quando precisar executar uma ação (consultar horário, mexer em arquivos, ")
	sb.WriteString("lembrar ou buscar algo), chame a ferramenta apropriada em vez de fingir o resultado.")
	if len(c.toolSummaries) > 0 {
		sb.WriteString("\n\nFerramentas disponíveis:\n")
		for _, s := range c.toolSummaries {
			sb.WriteString(s)
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (c *Composer) styleSection() string {
	return "## Estilo\n\n" +
		"Responda em português, em tom de conversa. Sem listas desnecessárias, " +
		"sem repetir a pergunta do usuário, sem assinatura."
}
