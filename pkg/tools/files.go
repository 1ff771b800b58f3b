package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Summarizer condenses file content, optionally steered by a focus hint.
// The files tool receives one so it does not depend on the engine package.
type Summarizer func(ctx context.Context, name, content, focus string) (string, error)

// FilesTool performs file operations confined to a sandbox directory.
// Names are flattened to their base component so a call can never escape
// the sandbox.
type FilesTool struct {
	sandboxDir string
	summarize  Summarizer
}

func NewFilesTool(sandboxDir string, summarize Summarizer) (*FilesTool, error) {
	if err := os.MkdirAll(sandboxDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating sandbox directory: %w", err)
	}
	return &FilesTool{sandboxDir: sandboxDir, summarize: summarize}, nil
}

type filesArgs struct {
	Acao     string `json:"acao" jsonschema:"enum=criar,enum=deletar,enum=listar,enum=resumir" jsonschema_description:"Operação a executar (obrigatório)."`
	Arquivo  string `json:"arquivo,omitempty" jsonschema_description:"Nome do arquivo. Obrigatório exceto para 'listar'. Para 'deletar' aceita vários nomes separados por '|'."`
	Conteudo string `json:"conteudo,omitempty" jsonschema_description:"Conteúdo a escrever (apenas para 'criar')."`
	Foco     string `json:"foco,omitempty" jsonschema_description:"Aspecto a enfatizar no resumo (apenas para 'resumir')."`
}

func (t *FilesTool) Name() string { return "gerenciar_arquivos" }

func (t *FilesTool) Description() string {
	return "Realiza operações seguras com arquivos em um diretório isolado. " +
		"Ações: 'criar' (novo arquivo com conteúdo), 'deletar' (um ou mais arquivos separados por '|'), " +
		"'listar' (todos os arquivos), 'resumir' (resumo conciso do conteúdo)."
}

func (t *FilesTool) Parameters() map[string]any {
	return GenerateSchema[filesArgs]()
}

func (t *FilesTool) Execute(ctx context.Context, args map[string]any) *ToolResult {
	var parsed filesArgs
	if err := DecodeArgs(args, &parsed); err != nil {
		return ErrorResult(fmt.Sprintf("argumentos inválidos: %v", err))
	}

	switch parsed.Acao {
	case "criar":
		if parsed.Arquivo == "" {
			return ErrorResult("Especifique o nome do arquivo a ser criado!")
		}
		return t.create(parsed.Arquivo, parsed.Conteudo)
	case "deletar":
		if parsed.Arquivo == "" {
			return ErrorResult("Especifique o(s) arquivo(s) a ser(em) deletado(s)!")
		}
		return t.deleteFiles(parsed.Arquivo)
	case "listar":
		return t.list()
	case "resumir":
		if parsed.Arquivo == "" {
			return ErrorResult("Especifique o nome do arquivo a ser resumido!")
		}
		return t.summarizeFile(ctx, parsed.Arquivo, parsed.Foco)
	default:
		return ErrorResult(fmt.Sprintf("Operação desconhecida: %s", parsed.Acao))
	}
}

// resolve confines a requested name to the sandbox.
func (t *FilesTool) resolve(name string) string {
	return filepath.Join(t.sandboxDir, filepath.Base(strings.TrimSpace(name)))
}

func (t *FilesTool) create(name, content string) *ToolResult {
	path := t.resolve(name)

	if current, err := os.ReadFile(path); err == nil {
		preview := string(current)
		if len(preview) >= 200 {
			preview = preview[:200] + "[...]"
		}
		return ErrorResult(fmt.Sprintf("Arquivo já existe! Conteúdo: %s", preview))
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("Erro ao criar arquivo %s: %v", name, err)).WithError(err)
	}
	return TextResult(fmt.Sprintf("Arquivo %s criado com sucesso!", name))
}

func (t *FilesTool) deleteFiles(names string) *ToolResult {
	var deleted, failures []string
	for _, raw := range strings.Split(names, "|") {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if err := os.Remove(t.resolve(name)); err != nil {
			failures = append(failures, fmt.Sprintf("Erro ao deletar %s: %v", name, err))
			continue
		}
		deleted = append(deleted, name)
	}

	var parts []string
	if len(deleted) > 0 {
		parts = append(parts, "Arquivos deletados: "+strings.Join(deleted, ", "))
	}
	if len(failures) > 0 {
		parts = append(parts, strings.Join(failures, "\n"))
	}
	if len(parts) == 0 {
		return ErrorResult("Nenhum arquivo foi processado.")
	}
	result := TextResult(strings.Join(parts, "\n"))
	if len(failures) > 0 && len(deleted) == 0 {
		result.IsError = true
	}
	return result
}

func (t *FilesTool) list() *ToolResult {
	entries, err := os.ReadDir(t.sandboxDir)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Erro ao listar arquivos: %v", err)).WithError(err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return TextResult("Diretório vazio.")
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("Arquivos:")
	for _, name := range names {
		sb.WriteString("\n- ")
		sb.WriteString(name)
	}
	return TextResult(sb.String())
}

// summarizeInputCap bounds how much file content is handed to the model.
const summarizeInputCap = 35000

func (t *FilesTool) summarizeFile(ctx context.Context, name, focus string) *ToolResult {
	content, err := os.ReadFile(t.resolve(name))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrorResult(fmt.Sprintf("Erro: Arquivo %s não encontrado.", name))
		}
		return ErrorResult(fmt.Sprintf("Erro ao ler arquivo %s: %v", name, err)).WithError(err)
	}

	// Short files are returned as is, a summary would not help.
	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) < 200 {
		return TextResult(fmt.Sprintf("Conteúdo muito curto. Conteúdo: %s", trimmed))
	}

	if t.summarize == nil {
		return ErrorResult("Resumo indisponível: nenhum modelo de resumo configurado.")
	}

	input := string(content)
	if len(input) > summarizeInputCap {
		input = input[:summarizeInputCap]
	}
	summary, err := t.summarize(ctx, name, input, focus)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Erro ao gerar resumo: %v", err)).WithError(err)
	}
	return TextResult(fmt.Sprintf("Resumo de %s:\n%s", name, summary))
}
