package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/upb/rag-retrieval/services/ingestion"
)

var (
	ingestNotes   string
	ingestDetails string
	ingestPath    string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Chunk and embed a document",
	Long: `Reads a plain text, Markdown or PDF file, splits it into chunks and
embeds every chunk field. The command waits until all chunks are processed.`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{"services": "true"},
	RunE:        runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestNotes, "notes", "", "notes attached to every chunk")
	ingestCmd.Flags().StringVar(&ingestDetails, "details", "", "details attached to every chunk")
	ingestCmd.Flags().StringVar(&ingestPath, "path", "", "logical path stored with the document (defaults to the file's directory)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if documents == nil {
		return errors.New("document service not configured")
	}

	file := args[0]
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file, err)
	}

	path := ingestPath
	if path == "" {
		path = filepath.Dir(file)
	}

	result, err := documents.Ingest(cmd.Context(), ingestion.IngestRequest{
		FileName: filepath.Base(file),
		Path:     path,
		Data:     data,
		Notes:    ingestNotes,
		Details:  ingestDetails,
	})
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	cmd.Printf("Document %s\n", result.DocumentID)
	cmd.Printf("  Status: %s\n", result.Status)
	cmd.Printf("  Chunks: %d\n", result.ChunkCount)
	if result.FieldFailures > 0 {
		cmd.Printf("  Failed fields: %d\n", result.FieldFailures)
	}
	if result.Pseudo {
		cmd.Println("  Warning: pseudo embeddings were used")
	}
	return nil
}
