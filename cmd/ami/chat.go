package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ami-agent/ami/pkg/agent"
	"github.com/ami-agent/ami/pkg/config"
	"github.com/ami-agent/ami/pkg/engine"
	"github.com/ami-agent/ami/pkg/logger"
	"github.com/ami-agent/ami/pkg/memory"
	"github.com/ami-agent/ami/pkg/prompt"
	"github.com/ami-agent/ami/pkg/session"
	"github.com/ami-agent/ami/pkg/tools"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

func newChatCommand() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant (interactive by default)",
		Long: "Start an interactive session with the assistant, or send a single " +
			"message with --message. Attach images with '/img <path>' inside a message.",
		Example: strings.Join([]string{
			"  ami chat",
			"  ami chat --message \"qual é a previsão do tempo?\"",
			"  ami chat --message \"o que aparece aqui? /img ./foto.png\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return chatMain(cmd.Context(), message)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "One-shot message to send")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	return chatMain(cmd.Context(), "")
}

func loadConfig() (*config.Config, error) {
	path := flagConfig
	if path == "" {
		path = config.DefaultPath()
	}
	return config.LoadConfig(path)
}

func chatMain(parent context.Context, oneShot string) error {
	logger.SetDebug(flagDebug)

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := os.MkdirAll(cfg.WorkspacePath(), 0o755); err != nil {
		return fmt.Errorf("creating workspace: %w", err)
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := engine.NewClient(cfg.Engine.Host)
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("inference engine unreachable at %s: %w", cfg.Engine.Host, err)
	}

	registry := tools.NewRegistry()
	defer func() {
		if cerr := registry.Close(); cerr != nil {
			logger.WarnCF("main", "Tool shutdown reported errors", map[string]any{"error": cerr.Error()})
		}
	}()
	registry.Discover(capabilityProviders(cfg, client)...)

	composer := prompt.NewComposer(cfg.Prompt.AssistantName, cfg.PersonaPath())
	composer.SetToolSummaries(registry.Summaries())

	history := session.NewHistory(cfg.HistoryPath(), cfg.History.Limit)

	streaming := false
	dispatcher := agent.NewDispatcher(agent.Options{
		Engine:   client,
		Registry: registry,
		History:  history,
		Composer: composer,
		Params: engine.Params{
			Model:       cfg.Engine.Model,
			MaxTokens:   cfg.Engine.MaxTokens,
			Temperature: cfg.Engine.Temperature,
		},
		MaxRounds: cfg.Engine.MaxToolIterations,
		OnFragment: func(fragment string) {
			streaming = true
			fmt.Print(fragment)
		},
	})
	if _, empty := history.Load(); !empty {
		dispatcher.Resume()
	}

	logger.InfoCF("main", "Assistant ready", map[string]any{
		"engine": cfg.Engine.Host,
		"model":  cfg.Engine.Model,
		"tools":  registry.Count(),
		"state":  dispatcher.State().String(),
	})

	runTurn := func(input string) {
		text, mediaRefs := parseMediaRefs(input)
		streaming = false
		response, err := dispatcher.RunTurn(ctx, text, mediaRefs)
		if err != nil {
			fmt.Printf("\n%s Erro: %v\n\n", appName, err)
			return
		}
		if streaming {
			fmt.Print("\n\n")
		} else {
			fmt.Printf("\n%s %s\n\n", appName, response)
		}
	}

	if strings.TrimSpace(oneShot) != "" {
		runTurn(oneShot)
		return nil
	}

	fmt.Printf("%s Modo interativo (exit ou Ctrl+C para sair)\n\n", appName)
	interactiveLoop(ctx, runTurn)
	return nil
}

// capabilityProviders declares the fixed capability set. A provider that
// fails to build is skipped by discovery, never fatal.
func capabilityProviders(cfg *config.Config, client *engine.Client) []tools.Provider {
	providers := []tools.Provider{
		{
			Name: "clock",
			Build: func() ([]tools.Tool, error) {
				return []tools.Tool{tools.NewClockTool()}, nil
			},
		},
		{
			Name: "files",
			Build: func() ([]tools.Tool, error) {
				filesTool, err := tools.NewFilesTool(cfg.SandboxPath(), fileSummarizer(cfg, client))
				if err != nil {
					return nil, err
				}
				return []tools.Tool{filesTool}, nil
			},
		},
		{
			Name: "memory",
			Build: func() ([]tools.Tool, error) {
				store, err := memory.Open(cfg.MemoryDBPath())
				if err != nil {
					return nil, err
				}
				return []tools.Tool{tools.NewMemoryTool(store, cfg.Memory.SearchLimit, cfg.Memory.RecentLimit)}, nil
			},
		},
	}
	if cfg.Tools.Web.Enabled {
		providers = append(providers, tools.Provider{
			Name: "web",
			Build: func() ([]tools.Tool, error) {
				return []tools.Tool{
					tools.NewWebSearchTool(cfg.Tools.Web.Region, cfg.Tools.Web.MaxResults),
					tools.NewPageTool(8000),
				}, nil
			},
		})
	}
	return providers
}

func fileSummarizer(cfg *config.Config, client *engine.Client) tools.Summarizer {
	model := cfg.Engine.SummarizerModel
	if model == "" {
		model = cfg.Engine.Model
	}
	return func(ctx context.Context, name, content, focus string) (string, error) {
		prompt := fmt.Sprintf(
			"Resuma concisamente o conteúdo abaixo do arquivo '%s':\n---\n%s\n---\nForneça um resumo claro em 2-3 parágrafos",
			name, content)
		if focus != "" {
			prompt += fmt.Sprintf(" focando em %q.", focus)
		} else {
			prompt += "."
		}
		return client.Complete(ctx, prompt, engine.Params{
			Model:       model,
			MaxTokens:   cfg.Engine.MaxTokens,
			Temperature: 0.2,
		})
	}
}

func interactiveLoop(ctx context.Context, runTurn func(string)) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "Você: ",
		HistoryFile:     filepath.Join(os.TempDir(), ".ami_input_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		fmt.Println("Falling back to simple input mode...")
		simpleLoop(ctx, runTurn)
		return
	}
	defer rl.Close()

	for {
		if ctx.Err() != nil {
			fmt.Println("\nAté logo!")
			return
		}
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nAté logo!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Até logo!")
			return
		}
		runTurn(input)
	}
}

func simpleLoop(ctx context.Context, runTurn func(string)) {
	reader := bufio.NewReader(os.Stdin)
	for {
		if ctx.Err() != nil {
			fmt.Println("\nAté logo!")
			return
		}
		fmt.Print("Você: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println("\nAté logo!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Até logo!")
			return
		}
		runTurn(input)
	}
}

// parseMediaRefs splits "/img <path>" attachments out of a message. The
// token after each /img marker is taken as a path; everything else stays in
// the text.
func parseMediaRefs(input string) (string, []string) {
	fields := strings.Fields(input)
	var textParts []string
	var refs []string
	for i := 0; i < len(fields); i++ {
		if fields[i] == "/img" && i+1 < len(fields) {
			refs = append(refs, fields[i+1])
			i++
			continue
		}
		textParts = append(textParts, fields[i])
	}
	return strings.Join(textParts, " "), refs
}
