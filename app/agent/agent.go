// Package agent composes retrieval, generation and web search into the
// answering operations exposed by the API.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"ragassist/model"
	"ragassist/retriever"
	"ragassist/types"
)

// State is a step of the web-augmented answering flow.
type State string

const (
	StateInitialAnswer  State = "initial_answer"
	StateWebSearch      State = "web_search"
	StateEnhancedAnswer State = "enhanced_answer"
	StateDone           State = "done"
)

type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) (retriever.Result, error)
}

// Answer is a retrieval-augmented answer and the chunks it was built from.
type Answer struct {
	Text    string
	Sources []types.Chunk
}

// WebAnswer records the path taken through the web-augmented flow.
type WebAnswer struct {
	Text          string
	InitialAnswer string
	LowConfidence bool
	Snippet       string
	States        []State
}

func (w WebAnswer) WebSearchUsed() bool { return w.LowConfidence }

type Agent struct {
	retriever Retriever
	generator model.Generator
	searcher  model.WebSearcher
	logger    *slog.Logger
}

func New(r Retriever, g model.Generator, s model.WebSearcher, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{retriever: r, generator: g, searcher: s, logger: logger}
}

func (a *Agent) CompleteCode(ctx context.Context, code, language string) (string, error) {
	return a.generate(ctx, completeCodePrompt(language, code))
}

func (a *Agent) SuggestImprovements(ctx context.Context, code, language string) (string, error) {
	return a.generate(ctx, suggestImprovementsPrompt(language, code))
}

func (a *Agent) GenerateCode(ctx context.Context, description, language string) (string, error) {
	return a.generate(ctx, generateCodePrompt(language, description))
}

// QueryRAG answers query from the nearest stored chunks.
func (a *Agent) QueryRAG(ctx context.Context, query string) (Answer, error) {
	res, err := a.retriever.Retrieve(ctx, query, 0)
	if err != nil {
		return Answer{}, err
	}

	text, err := a.generate(ctx, ragPrompt(res.Context, query))
	if err != nil {
		return Answer{}, err
	}
	return Answer{Text: text, Sources: res.Chunks}, nil
}

// QueryWithWebSearch answers query directly and, when the answer fails the
// confidence gate, asks again with a web search snippet. A failed search is
// treated as an empty one.
func (a *Agent) QueryWithWebSearch(ctx context.Context, query string) (WebAnswer, error) {
	out := WebAnswer{States: []State{StateInitialAnswer}}

	initial, err := a.generate(ctx, query)
	if err != nil {
		return WebAnswer{}, err
	}
	out.InitialAnswer = initial
	out.Text = initial

	if !IsLowConfidence(initial) {
		out.States = append(out.States, StateDone)
		return out, nil
	}
	out.LowConfidence = true

	out.States = append(out.States, StateWebSearch)
	snippet, err := a.searcher.Search(ctx, query)
	if err != nil {
		if !errors.Is(err, types.ErrSearch) {
			return WebAnswer{}, err
		}
		a.logger.Warn("web search failed, continuing without results", "error", err)
		snippet = model.NotFoundSnippet
	}
	out.Snippet = snippet

	out.States = append(out.States, StateEnhancedAnswer)
	enhanced, err := a.generate(ctx, enhancedPrompt(query, snippet))
	if err != nil {
		return WebAnswer{}, err
	}
	out.Text = enhanced
	out.States = append(out.States, StateDone)
	return out, nil
}

// SearchWeb runs a bare web search. Search failures are returned.
func (a *Agent) SearchWeb(ctx context.Context, query string) (string, error) {
	return a.searcher.Search(ctx, query)
}

func (a *Agent) generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	if a.logger.Enabled(ctx, slog.LevelDebug) {
		if n, err := CountTokens(prompt); err == nil {
			a.logger.Debug("sending prompt", "tokens", n, "chars", len(prompt))
		}
	}

	out, err := a.generator.Generate(ctx, prompt)
	if err != nil {
		if !errors.Is(err, types.ErrGeneration) {
			err = fmt.Errorf("%w: %w", types.ErrGeneration, err)
		}
		return "", err
	}
	a.logger.Debug("llm answer", "took", time.Since(start))
	return out, nil
}

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

// CountTokens approximates the prompt size in model tokens.
func CountTokens(text string) (int, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.EncodingForModel("gpt-3.5-turbo")
	})
	if encErr != nil {
		return 0, encErr
	}
	return len(enc.Encode(text, nil, nil)), nil
}
