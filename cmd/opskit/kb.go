package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atuld8/opskit/internal/ragindex"
)

func newKBCmd() *cobra.Command {
	kbCmd := &cobra.Command{
		Use:   "kb",
		Short: "Index and search the operational knowledge base",
	}

	indexCmd := &cobra.Command{
		Use:   "index <dir>",
		Short: "Chunk, embed and index every .md/.txt document under dir",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := ragindex.Bootstrap(cmd.Context(), cfg.WeaviateURL); err != nil {
				return fmt.Errorf("bootstrap index: %w", err)
			}
			idx, err := ragindex.NewWeaviateIndex(cfg.WeaviateURL)
			if err != nil {
				return err
			}
			embed := ragindex.NewOllamaProvider(cfg.OllamaURL, cfg.EmbedModel)
			ix := ragindex.NewIndexer(embed, idx, newLogger("ragindex"))

			n, err := ix.IndexDir(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("indexed %d chunks\n", n)
			return nil
		},
	}

	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Search indexed documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, _ := cmd.Flags().GetString("query")
			topK, _ := cmd.Flags().GetInt("topk")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			idx, err := ragindex.NewWeaviateIndex(cfg.WeaviateURL)
			if err != nil {
				return err
			}
			embed := ragindex.NewOllamaProvider(cfg.OllamaURL, cfg.EmbedModel)
			ix := ragindex.NewIndexer(embed, idx, newLogger("ragindex"))

			hits, err := ix.SearchDocuments(cmd.Context(), query, topK, cfg.SearchAlpha)
			if err != nil {
				return err
			}
			for _, h := range hits {
				fmt.Printf("%.3f  %s\n    %s\n", h.Score, h.Source, firstLine(h.Text))
			}
			return nil
		},
	}
	searchCmd.Flags().StringP("query", "q", "", "search query text (required)")
	searchCmd.Flags().IntP("topk", "k", 5, "number of top results to return")
	_ = searchCmd.MarkFlagRequired("query")

	kbCmd.AddCommand(indexCmd, searchCmd)
	return kbCmd
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
		if i > 160 {
			return s[:i] + "..."
		}
	}
	return s
}
