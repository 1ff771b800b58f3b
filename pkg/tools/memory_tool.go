package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ami-agent/ami/pkg/memory"
)

// MemoryTool exposes the durable memory store to the model. It owns the
// store and closes it on shutdown.
type MemoryTool struct {
	store       *memory.Store
	searchLimit int
	recentLimit int
}

func NewMemoryTool(store *memory.Store, searchLimit, recentLimit int) *MemoryTool {
	if searchLimit <= 0 {
		searchLimit = 10
	}
	if recentLimit <= 0 {
		recentLimit = 5
	}
	return &MemoryTool{store: store, searchLimit: searchLimit, recentLimit: recentLimit}
}

type memoryArgs struct {
	Acao      string `json:"acao" jsonschema:"enum=salvar,enum=pesquisar,enum=recentes,enum=deletar" jsonschema_description:"Ação a executar (obrigatório)."`
	Titulo    string `json:"titulo,omitempty" jsonschema_description:"Título da memória (obrigatório para 'salvar' e 'deletar')."`
	Descricao string `json:"descricao,omitempty" jsonschema_description:"Conteúdo detalhado da memória (obrigatório para 'salvar')."`
	Busca     string `json:"busca,omitempty" jsonschema_description:"Termo de pesquisa (obrigatório para 'pesquisar')."`
}

func (t *MemoryTool) Name() string { return "gerenciar_memorias" }

func (t *MemoryTool) Description() string {
	return "Gerencia informações armazenadas permanentemente. " +
		"Ações: 'salvar' (guardar informação com título e descrição), 'pesquisar' (busca textual por termo), " +
		"'recentes' (memórias mais recentes), 'deletar' (remove pelo título)."
}

func (t *MemoryTool) Parameters() map[string]any {
	return GenerateSchema[memoryArgs]()
}

func (t *MemoryTool) Close() error {
	return t.store.Close()
}

func (t *MemoryTool) Execute(ctx context.Context, args map[string]any) *ToolResult {
	var parsed memoryArgs
	if err := DecodeArgs(args, &parsed); err != nil {
		return ErrorResult(fmt.Sprintf("argumentos inválidos: %v", err))
	}

	switch parsed.Acao {
	case "salvar":
		if strings.TrimSpace(parsed.Titulo) == "" {
			return ErrorResult(`Erro: operação "salvar" requer título`)
		}
		return t.save(ctx, parsed.Titulo, parsed.Descricao)
	case "pesquisar":
		if strings.TrimSpace(parsed.Busca) == "" {
			return ErrorResult(`Erro: operação "pesquisar" requer argumento "busca"`)
		}
		return t.search(ctx, parsed.Busca)
	case "recentes":
		return t.recent(ctx)
	case "deletar":
		if strings.TrimSpace(parsed.Titulo) == "" {
			return ErrorResult(`Erro: operação "deletar" requer título`)
		}
		return t.delete(ctx, parsed.Titulo)
	default:
		return ErrorResult(fmt.Sprintf("Operação inválida: %s. Use: salvar, pesquisar, recentes ou deletar", parsed.Acao))
	}
}

func (t *MemoryTool) save(ctx context.Context, titulo, descricao string) *ToolResult {
	record, err := t.store.Save(ctx, titulo, descricao)
	if err != nil {
		if errors.Is(err, memory.ErrBlankTitle) {
			return ErrorResult("Erro: Título não pode estar vazio")
		}
		return ErrorResult(fmt.Sprintf("Erro ao salvar: %v", err)).WithError(err)
	}
	return TextResult(fmt.Sprintf("Memória salva: %q (ID: %d)", record.Titulo, record.ID))
}

func (t *MemoryTool) search(ctx context.Context, term string) *ToolResult {
	records, err := t.store.Search(ctx, term, t.searchLimit)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Erro ao buscar: %v", err)).WithError(err)
	}
	if len(records) == 0 {
		return TextResult(fmt.Sprintf("Nenhuma memória encontrada para %q", term))
	}
	return TextResult(formatRecords(fmt.Sprintf("Encontradas %d memória(s):", len(records)), records))
}

func (t *MemoryTool) recent(ctx context.Context) *ToolResult {
	records, err := t.store.Recent(ctx, t.recentLimit)
	if err != nil {
		return ErrorResult(fmt.Sprintf("Erro ao recuperar memórias recentes: %v", err)).WithError(err)
	}
	if len(records) == 0 {
		return TextResult("Nenhuma memória salva ainda")
	}
	return TextResult(formatRecords(fmt.Sprintf("Últimas %d memória(s):", len(records)), records))
}

func (t *MemoryTool) delete(ctx context.Context, titulo string) *ToolResult {
	record, err := t.store.DeleteByTitle(ctx, titulo)
	if err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			return TextResult(fmt.Sprintf("Memória %q não encontrada", titulo))
		}
		return ErrorResult(fmt.Sprintf("Erro ao deletar: %v", err)).WithError(err)
	}
	return TextResult(fmt.Sprintf("Memória deletada: %q (ID: %d)", record.Titulo, record.ID))
}

func formatRecords(header string, records []memory.Record) string {
	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\n")
	for _, r := range records {
		sb.WriteString(fmt.Sprintf("\n• **%s** (ID: %d)\n  %s\n  %s\n",
			r.Titulo, r.ID, r.Descricao, r.Timestamp.Format("02/01/2006 às 15:04")))
	}
	return strings.TrimSpace(sb.String())
}
