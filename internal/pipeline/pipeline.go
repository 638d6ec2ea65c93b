// Package pipeline is the retrieval-augmented answer path for one turn:
// classify the utterance, retrieve evidence, assemble the instruction block
// and stream the completion.
package pipeline

import (
	"context"

	"gopherai-search/internal/ai"
)

// JSONCompleter backs the small structured calls (intent fallback,
// sub-query planning).
type JSONCompleter interface {
	CompleteJSON(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, out any) error
}

type StreamCompleter interface {
	StreamComplete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, onChunk func(chunk string) error) (string, error)
}
