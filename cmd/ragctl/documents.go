package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var listLimit int

var listCmd = &cobra.Command{
	Use:         "list",
	Short:       "List ingested documents",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{"services": "true"},
	RunE:        runList,
}

var deleteCmd = &cobra.Command{
	Use:         "delete [document-id]",
	Short:       "Delete a document with its chunks and embeddings",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{"services": "true"},
	RunE:        runDelete,
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "maximum number of documents")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
}

func runList(cmd *cobra.Command, _ []string) error {
	if documents == nil {
		return errors.New("document service not configured")
	}

	docs, err := documents.List(cmd.Context(), listLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if len(docs) == 0 {
		cmd.Println("No documents found.")
		return nil
	}

	for _, doc := range docs {
		cmd.Printf("%s  %-8s %4d chunks  %s\n", doc.ID, doc.Status, doc.ChunkCount, doc.FileName)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	if store == nil {
		return errors.New("chunk store not configured")
	}

	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid document id %q: %w", args[0], err)
	}

	if err := store.DeleteDocument(cmd.Context(), id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	cmd.Printf("Deleted document %s\n", id)
	return nil
}
