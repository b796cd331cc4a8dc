package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/upb/rag-retrieval/services/retrieval"
	"github.com/upb/rag-retrieval/services/search"
)

var (
	searchTopK      int
	searchThreshold float64
	searchOptional  bool
	searchJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search ingested documents",
	Long: `Embeds the query and ranks chunks by cosine similarity. Each chunk
scores by the best of its content, notes and details embeddings.`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{"services": "true"},
	RunE:        runSearch,
}

var (
	answerTopK      int
	answerMaxTokens int
)

var answerCmd = &cobra.Command{
	Use:         "answer [question]",
	Short:       "Answer a question from the retrieved chunks",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{"services": "true"},
	RunE:        runAnswer,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", retrieval.DefaultTopK, "maximum number of results")
	searchCmd.Flags().Float64VarP(&searchThreshold, "threshold", "t", retrieval.DefaultThreshold, "minimum similarity score")
	searchCmd.Flags().BoolVar(&searchOptional, "include-optional", false, "also match notes and details")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)

	answerCmd.Flags().IntVarP(&answerTopK, "top-k", "k", retrieval.DefaultTopK, "number of chunks given as context")
	answerCmd.Flags().IntVar(&answerMaxTokens, "max-tokens", 0, "completion token limit (0 uses the backend default)")
	rootCmd.AddCommand(answerCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searcher == nil {
		return errors.New("search service not configured")
	}

	threshold := searchThreshold
	resp, err := searcher.Search(cmd.Context(), retrieval.SearchRequest{
		Query:                 args[0],
		TopK:                  searchTopK,
		Threshold:             &threshold,
		IncludeOptionalFields: searchOptional,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputJSON(cmd, resp)
	}
	outputResults(cmd, resp.Results)
	if resp.Pseudo {
		cmd.Println("Warning: pseudo embeddings were used, scores are not meaningful.")
	}
	return nil
}

func runAnswer(cmd *cobra.Command, args []string) error {
	if searcher == nil {
		return errors.New("search service not configured")
	}

	resp, err := searcher.Answer(cmd.Context(), retrieval.AnswerRequest{
		Query:     args[0],
		TopK:      answerTopK,
		MaxTokens: answerMaxTokens,
	})
	if err != nil {
		return fmt.Errorf("answer failed: %w", err)
	}

	cmd.Println(resp.Answer)
	if len(resp.Sources) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for i := range resp.Sources {
			cmd.Printf("  [%d] %s #%d\n", i+1, resp.Sources[i].FileName, resp.Sources[i].ChunkIndex)
		}
	}
	return nil
}

func outputJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputResults(cmd *cobra.Command, results []search.Result) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		r := results[i]
		cmd.Printf("  [%d] %s #%d (%.3f)\n", i+1, r.FileName, r.ChunkIndex, r.Score)
		if r.HeaderContext != "" {
			cmd.Printf("      %s\n", r.HeaderContext)
		}
		cmd.Printf("      %s\n", snippet(r.Content, 160))
		cmd.Println()
	}
}

// snippet flattens whitespace and cuts s to at most n runes
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
