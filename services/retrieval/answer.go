package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/rag-retrieval/internal/prompt"
	"github.com/upb/rag-retrieval/services"
	"github.com/upb/rag-retrieval/services/providers"
	"github.com/upb/rag-retrieval/services/search"
)

// NoContextAnswer is returned without calling the backend when nothing passes the threshold
const NoContextAnswer = "No relevant context was found in the indexed documents."

const (
	defaultAnswerTokens      = 512
	defaultAnswerTemperature = 0.2
	sourceSeparator          = "\n---\n"

	// sources are rewritten only for findings at or above this confidence
	guardConfidence = 0.8
)

const systemPromptTemplate = `You answer questions using only the numbered sources below.
Cite the sources you use as [n]. If the sources do not contain the answer, say so.

%s`

// AnswerRequest asks for a grounded answer
type AnswerRequest struct {
	Query       string   `json:"query" validate:"required,max=4000"`
	TopK        int      `json:"top_k,omitempty" validate:"omitempty,min=1,max=20"`
	Threshold   *float64 `json:"threshold,omitempty" validate:"omitempty,min=-1,max=1"`
	MaxTokens   int      `json:"max_tokens,omitempty" validate:"omitempty,min=1,max=8192"`
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,min=0,max=2"`
}

// AnswerResponse is a completion with the chunks it was grounded on
type AnswerResponse struct {
	Answer  string          `json:"answer"`
	Sources []search.Result `json:"sources"`
	Model   string          `json:"model,omitempty"`
	Pseudo  bool            `json:"pseudo"`
}

// Answer retrieves context for the query and asks the completion backend to
// answer from it
func (s *Service) Answer(ctx context.Context, req AnswerRequest) (*AnswerResponse, error) {
	found, err := s.Search(ctx, SearchRequest{
		Query:                 req.Query,
		TopK:                  req.TopK,
		Threshold:             req.Threshold,
		IncludeOptionalFields: true,
	})
	if err != nil {
		return nil, err
	}

	if len(found.Results) == 0 {
		return &AnswerResponse{Answer: NoContextAnswer, Sources: found.Results, Pseudo: found.Pseudo}, nil
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnswerTokens
	}
	temperature := defaultAnswerTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	messages := []providers.Message{
		{Role: "system", Content: fmt.Sprintf(systemPromptTemplate, formatSources(s.guardSources(found.Results)))},
		{Role: "user", Content: found.Query},
	}

	completion, err := s.gateway.Complete(ctx, messages, maxTokens, temperature, providers.TaskCompletion)
	if err != nil {
		s.logger.Error("answer generation failed", zap.Error(err))
		return nil, err
	}
	if strings.TrimSpace(completion.Content) == "" {
		return nil, services.WrapInternal("backend returned an empty answer", nil)
	}

	s.logger.Info("answer generated",
		zap.String("model", completion.Model),
		zap.Int("sources", len(found.Results)),
		zap.Int("prompt_tokens", completion.PromptTokens),
		zap.Int("completion_tokens", completion.CompletionTokens),
		zap.Duration("latency", completion.Latency),
	)

	return &AnswerResponse{
		Answer:  strings.TrimSpace(completion.Content),
		Sources: found.Results,
		Model:   completion.Model,
		Pseudo:  found.Pseudo,
	}, nil
}

// guardSources returns copies of results whose texts have chat delimiters and
// injected instructions neutralised. The caller still receives the originals.
func (s *Service) guardSources(results []search.Result) []search.Result {
	guarded := make([]search.Result, len(results))
	for i, r := range results {
		var found []prompt.FindingType
		for _, text := range []*string{&r.Content, &r.Notes, &r.Details} {
			clean, types := prompt.Neutralize(*text, guardConfidence)
			*text = clean
			found = append(found, types...)
		}
		if len(found) > 0 {
			s.logger.Warn("neutralised suspicious text in answer source",
				zap.String("chunk_id", r.ChunkID.String()),
				zap.Any("findings", found))
		}
		guarded[i] = r
	}
	return guarded
}

func formatSources(results []search.Result) string {
	parts := make([]string, len(results))
	for i, r := range results {
		var b strings.Builder
		fmt.Fprintf(&b, "[%d] %s", i+1, r.FileName)
		if r.HeaderContext != "" {
			fmt.Fprintf(&b, " > %s", r.HeaderContext)
		}
		if len(r.MatchedFields) > 0 {
			labels := make([]string, len(r.MatchedFields))
			for j, f := range r.MatchedFields {
				labels[j] = fieldLabel(f)
			}
			fmt.Fprintf(&b, " (matched on %s)", strings.Join(labels, ", "))
		}
		b.WriteString("\n")
		b.WriteString(r.Content)
		if r.Notes != "" {
			b.WriteString("\nNotes: ")
			b.WriteString(r.Notes)
		}
		if r.Details != "" {
			b.WriteString("\nDetails: ")
			b.WriteString(r.Details)
		}
		parts[i] = b.String()
	}
	return strings.Join(parts, sourceSeparator)
}
