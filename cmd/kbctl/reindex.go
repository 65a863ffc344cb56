package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var reindexAPI string

// The semantic index lives in the API process, so reindexing goes through
// its admin endpoint.
var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Embed documents whose vectors are missing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
		defer cancel()

		endpoint := strings.TrimRight(reindexAPI, "/") + "/admin/reindex"
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("call %s: %w", endpoint, err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("reindex failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
		}
		var out struct {
			Filled int `json:"filled"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return fmt.Errorf("decode reindex response: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "filled %d vectors\n", out.Filled)
		return nil
	},
}

func init() {
	reindexCmd.Flags().StringVar(&reindexAPI, "api", "http://localhost:"+cfg.APIPort, "retrieval API base URL")
}
