// Command kbctl maintains the knowledge corpus offline.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kbretrieval/knowledge-service/internal/config"
	"github.com/kbretrieval/knowledge-service/internal/observability/logging"
)

var (
	cfg        = config.Load()
	corpusPath string
)

var rootCmd = &cobra.Command{
	Use:   "kbctl",
	Short: "Knowledge corpus maintenance tool",
	Long: `Seeds, enriches and inspects the knowledge corpus used by the retrieval API.

Environment variables are read the same way as the API (a .env file in the
working directory is loaded first).`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// stdout belongs to command output and the MCP protocol.
		slog.SetDefault(logging.NewLogger(os.Stderr, "kbctl", cfg.LogLevel))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&corpusPath, "path", cfg.KnowledgePath, "corpus file")
	rootCmd.AddCommand(seedCmd, enrichCmd, statsCmd, mcpCmd, reindexCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
