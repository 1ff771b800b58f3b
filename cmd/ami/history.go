package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ami-agent/ami/pkg/engine"
	"github.com/ami-agent/ami/pkg/session"
	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	historyRoot := &cobra.Command{
		Use:   "history",
		Short: "Inspect or reset the persisted conversation",
	}

	historyRoot.AddCommand(&cobra.Command{
		Use:     "show",
		Short:   "Print the stored conversation",
		Example: "  ami history show",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			history := session.NewHistory(cfg.HistoryPath(), cfg.History.Limit)
			messages, empty := history.Load()
			if empty {
				fmt.Println("Histórico vazio.")
				return nil
			}
			for _, msg := range messages {
				printMessage(msg)
			}
			fmt.Printf("\n%d mensagem(ns) em %s\n", len(messages), cfg.HistoryPath())
			return nil
		},
	})

	historyRoot.AddCommand(&cobra.Command{
		Use:     "clear",
		Short:   "Delete the stored conversation",
		Example: "  ami history clear",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			history := session.NewHistory(cfg.HistoryPath(), cfg.History.Limit)
			if err := history.Clear(); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("clearing history: %w", err)
			}
			fmt.Println("Histórico apagado.")
			return nil
		},
	})

	return historyRoot
}

func printMessage(msg engine.ChatMessage) {
	label := msg.Role
	if msg.Role == engine.RoleTool && msg.ToolName != "" {
		label = fmt.Sprintf("%s(%s)", msg.Role, msg.ToolName)
	}

	text := strings.TrimSpace(msg.Text())
	if text == "" && len(msg.ToolCalls) > 0 {
		names := make([]string, 0, len(msg.ToolCalls))
		for _, tc := range msg.ToolCalls {
			names = append(names, tc.Function.Name)
		}
		text = fmt.Sprintf("[chamadas de ferramenta: %s]", strings.Join(names, ", "))
	}
	if len(text) > 400 {
		text = text[:400] + "[...]"
	}
	fmt.Printf("[%s] %s\n", label, text)
}
