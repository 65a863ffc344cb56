package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kbretrieval/knowledge-service/internal/core/usecase"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/corpus/jsonfile"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count corpus documents per source prefix",
	RunE: func(cmd *cobra.Command, args []string) error {
		docs, err := jsonfile.New(corpusPath).Load(cmd.Context())
		if err != nil {
			return err
		}
		stats := usecase.SummarizeCorpus(docs, 0)

		prefixes := make([]string, 0, len(stats.Sources))
		for p := range stats.Sources {
			prefixes = append(prefixes, p)
		}
		sort.Slice(prefixes, func(i, j int) bool {
			if stats.Sources[prefixes[i]] != stats.Sources[prefixes[j]] {
				return stats.Sources[prefixes[i]] > stats.Sources[prefixes[j]]
			}
			return prefixes[i] < prefixes[j]
		})

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "total: %d\n", stats.TotalEntries)
		for _, p := range prefixes {
			fmt.Fprintf(out, "  %-24s %d\n", p, stats.Sources[p])
		}
		return nil
	},
}
