// Command ragctl ingests documents and queries the retrieval engine from a
// terminal, using the same configuration and database as rag-server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/upb/rag-retrieval/app"
	"github.com/upb/rag-retrieval/config"
	"github.com/upb/rag-retrieval/models"
	"github.com/upb/rag-retrieval/services/ingestion"
	"github.com/upb/rag-retrieval/services/retrieval"
)

// documentService is implemented by *ingestion.Service
type documentService interface {
	Ingest(ctx context.Context, req ingestion.IngestRequest) (*ingestion.IngestResult, error)
	List(ctx context.Context, limit, offset int) ([]*models.Document, error)
}

// searchService is implemented by *retrieval.Service
type searchService interface {
	Search(ctx context.Context, req retrieval.SearchRequest) (*retrieval.SearchResponse, error)
	Answer(ctx context.Context, req retrieval.AnswerRequest) (*retrieval.AnswerResponse, error)
}

// chunkStore is implemented by *embedding.Store
type chunkStore interface {
	DeleteDocument(ctx context.Context, documentID uuid.UUID) error
}

// Services used by the commands. They are set from app.Dependencies before
// a command runs unless a test already installed fakes.
var (
	documents documentService
	searcher  searchService
	store     chunkStore

	deps *app.Dependencies
	cfg  *config.Config
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "ragctl",
	Short:         "Manage and query the retrieval engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if !needsServices(cmd) {
			return nil
		}
		return setupServices(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level to stderr")
}

// needsServices reports whether cmd talks to the database
func needsServices(cmd *cobra.Command) bool {
	return cmd.Annotations["services"] == "true"
}

func setupServices(ctx context.Context) error {
	if documents != nil && searcher != nil && store != nil {
		return nil
	}

	c, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}

	d, err := app.NewDependencies(ctx, c, logger)
	if err != nil {
		return err
	}

	deps = d
	documents = d.Ingestion
	searcher = d.Retrieval
	store = d.Embeddings
	return nil
}

func loadConfig(ctx context.Context) (*config.Config, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := config.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg = c
	return c, nil
}

func newLogger() (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	zc.OutputPaths = []string{"stderr"}
	if !verbose {
		zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return zc.Build()
}

func main() {
	ctx := context.Background()
	rootCmd.SetOut(os.Stdout)
	err := rootCmd.ExecuteContext(ctx)
	if deps != nil {
		if cerr := deps.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
