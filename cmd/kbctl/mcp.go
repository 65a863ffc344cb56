package main

import (
	"github.com/spf13/cobra"

	mcpadapter "github.com/kbretrieval/knowledge-service/internal/adapters/mcp"
	"github.com/kbretrieval/knowledge-service/internal/bootstrap"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the search_knowledge tool over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		serveCfg := cfg
		serveCfg.KnowledgePath = corpusPath
		serveCfg.NATSURL = ""

		app, err := bootstrap.New(cmd.Context(), serveCfg)
		if err != nil {
			return err
		}
		defer app.Close()

		return mcpadapter.NewServer(app.RetrievalUC).ServeStdio()
	},
}
