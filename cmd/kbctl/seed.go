package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/kbretrieval/knowledge-service/internal/infrastructure/corpus/jsonfile"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/corpus/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Write the starter corpus if none exists",
	RunE:  runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(corpusPath); err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s already exists, leaving it untouched\n", corpusPath)
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", corpusPath, err)
	}

	docs := seed.Documents()
	if err := jsonfile.New(corpusPath).Create(docs); err != nil {
		return fmt.Errorf("write starter corpus: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d documents to %s\n", len(docs), corpusPath)
	return nil
}
