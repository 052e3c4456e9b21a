package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/skaldlabs/skald-sub002/internal/rag"
	"github.com/skaldlabs/skald-sub002/internal/retrieval"
	"github.com/skaldlabs/skald-sub002/pkg/types"
)

var (
	searchProject   string
	searchLimit     int
	searchThreshold float64
	searchFilters   string
	searchRAGConfig string
	searchNoRerank  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Retrieve ranked passages for a query",
	Long: `Runs the retrieval pipeline for a project and prints the results as JSON.
With --rag-config the query goes through the chat context builder instead and
the numbered context block is printed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cfg, logger, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		if searchProject == "" {
			return fmt.Errorf("--project is required")
		}

		filters, err := parseFilters(searchFilters)
		if err != nil {
			return err
		}

		a, err := openApp(ctx, cfg, logger, true)
		if err != nil {
			return err
		}
		defer a.Close()

		graph, gen, err := a.newGraph()
		if err != nil {
			return err
		}

		query := strings.Join(args, " ")
		out := cmd.OutOrStdout()

		if searchRAGConfig != "" {
			ragCfg, err := loadRAGConfig(searchRAGConfig)
			if err != nil {
				return err
			}
			res, err := rag.NewRetriever(graph, gen, logger).Context(ctx, searchProject, query, ragCfg, filters)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "query: %s\n\n%s\n", res.Query, res.Block)
			return nil
		}

		limit := searchLimit
		if limit <= 0 {
			limit = cfg.Retrieval.DefaultLimit
		}
		req := retrieval.Request{
			ProjectUUID:         searchProject,
			Query:               query,
			Limit:               limit,
			Filters:             filters,
			SimilarityThreshold: searchThreshold,
		}

		var results []types.RetrievalResult
		if searchNoRerank {
			results, err = graph.VectorSearch(ctx, req)
		} else {
			results, err = graph.Retrieve(ctx, req)
		}
		if err != nil {
			return err
		}

		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

// parseFilters decodes a JSON array of memo filters.
func parseFilters(raw string) ([]types.MemoFilter, error) {
	if raw == "" {
		return nil, nil
	}
	var filters []types.MemoFilter
	if err := json.Unmarshal([]byte(raw), &filters); err != nil {
		return nil, fmt.Errorf("invalid --filters: %w", err)
	}
	for _, f := range filters {
		if err := f.Validate(); err != nil {
			return nil, err
		}
	}
	return filters, nil
}

// loadRAGConfig reads a YAML RAG configuration over the defaults.
func loadRAGConfig(path string) (types.RAGConfig, error) {
	cfg := types.DefaultRAGConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read rag config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse rag config: %w", err)
	}
	return cfg, cfg.Validate()
}

func init() {
	searchCmd.Flags().StringVarP(&searchProject, "project", "p", "", "project UUID")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum results (default RETRIEVAL_DEFAULT_LIMIT)")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0, "minimum similarity in (0,1] (default RETRIEVAL_SIMILARITY_THRESHOLD)")
	searchCmd.Flags().StringVar(&searchFilters, "filters", "", "JSON array of memo filters")
	searchCmd.Flags().StringVar(&searchRAGConfig, "rag-config", "", "YAML RAG configuration; prints chat context instead of results")
	searchCmd.Flags().BoolVar(&searchNoRerank, "no-rerank", false, "skip reranking and keep vector search order")
	rootCmd.AddCommand(searchCmd)
}
