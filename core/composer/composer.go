package composer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/siherrmann/docrag/model"
)

// Generator produces an answer from a system prompt and a user prompt.
// Generation runs with temperature zero so grounded answers stay reproducible.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// InsufficientContextAnswer is returned verbatim when no retrieved chunk fits
// the context budget. No generation call is made in that case.
const InsufficientContextAnswer = "I don't know. The indexed documents contain no relevant context for this question."

// systemPrompt frames the generation model as a grounded assistant.
const systemPrompt = "You are a legal assistant. Use the following context to answer the question. If you don't know, say you don't know."

// DefaultContextBudget bounds the total characters of chunk content placed
// into one generation prompt.
const DefaultContextBudget = 6000

// Composer turns retrieved chunks into a grounded answer. Chunks are packed
// into the prompt best first until the context budget is exhausted; chunks
// are never truncated, a chunk that does not fit whole is dropped.
type Composer struct {
	generator Generator
	budget    int
	logger    *slog.Logger
}

// NewComposer creates an answer composer. budget values below one fall back
// to DefaultContextBudget.
func NewComposer(generator Generator, budget int, logger *slog.Logger) (*Composer, error) {
	if generator == nil {
		return nil, fmt.Errorf("generator must not be nil")
	}
	if budget < 1 {
		budget = DefaultContextBudget
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Composer{
		generator: generator,
		budget:    budget,
		logger:    logger,
	}, nil
}

// Answer composes a grounded answer for the query from the retrieved chunks.
// With no usable context it returns the fixed insufficient-context answer,
// marked ungrounded, without calling the generator.
func (c *Composer) Answer(ctx context.Context, query string, results []*model.RetrievalResult) (*model.Answer, error) {
	packed, cited := c.pack(results)
	if len(packed) == 0 {
		c.logger.Info("No context within budget, returning fixed answer", "hits", len(results))
		return &model.Answer{
			Text:     InsufficientContextAnswer,
			Grounded: false,
		}, nil
	}

	var prompt strings.Builder
	prompt.WriteString("Context:\n")
	for i, content := range packed {
		fmt.Fprintf(&prompt, "Document %d:\n%s\n\n", i+1, content)
	}
	fmt.Fprintf(&prompt, "Question: %s", query)

	text, err := c.generator.Generate(ctx, systemPrompt, prompt.String())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, model.NewStageError(model.StageGenerate, fmt.Errorf("%w: %v", model.ErrGenerationTimeout, err), true)
		}
		return nil, model.NewStageError(model.StageGenerate, err, true)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, model.NewStageError(model.StageGenerate, model.ErrGenerationRejected, false)
	}

	return &model.Answer{
		Text:          text,
		CitedChunkIDs: cited,
		Grounded:      true,
	}, nil
}

// pack selects chunk contents best first within the context budget and
// returns them with the IDs of the chunks they came from.
func (c *Composer) pack(results []*model.RetrievalResult) ([]string, []string) {
	var packed []string
	var cited []string
	used := 0

	for _, result := range results {
		if result.Chunk == nil || result.Chunk.Content == "" {
			continue
		}
		length := len(result.Chunk.Content)
		if used+length > c.budget {
			continue
		}
		used += length
		packed = append(packed, result.Chunk.Content)
		cited = append(cited, result.Chunk.ID())
	}

	return packed, cited
}
