package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const appName = "[Ami]"

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	flagConfig string
	flagDebug  bool
)

func main() {
	if err := buildRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func buildRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "ami",
		Short: "Personal conversational assistant backed by a local inference engine",
		Long: strings.TrimSpace(`ami is a terminal assistant that talks to a local
OpenAI-compatible inference engine, with durable memories, tool calling,
web search, and a sandboxed file area.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, args)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to config file (default: <workspace>/config.json)")
	root.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "Enable debug logging")

	root.AddCommand(newChatCommand())
	root.AddCommand(newHistoryCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  ami version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("ami %s (built %s)\n", version, buildTime)
			return nil
		},
	}
}
