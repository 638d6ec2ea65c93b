package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

var (
	ErrEmptyChoices  = errors.New("empty llm choices")
	ErrEmptyMessages = errors.New("llm request has no messages")
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatConfig struct {
	Model       string
	Temperature float64
}

type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// OpenAICompatibleClient speaks the OpenAI REST dialect, so the same type
// serves Groq, OpenAI and any other compatible endpoint.
type OpenAICompatibleClient struct {
	client *openai.Client
}

func NewOpenAICompatibleClient(cfg ClientConfig) *OpenAICompatibleClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if baseURL := strings.TrimRight(cfg.BaseURL, "/"); baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAICompatibleClient{client: openai.NewClientWithConfig(clientCfg)}
}

func toOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func (c *OpenAICompatibleClient) chatRequest(cfg ChatConfig, messages []ChatMessage, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       cfg.Model,
		Messages:    toOpenAIMessages(messages),
		Temperature: float32(cfg.Temperature),
		Stream:      stream,
	}
}

func (c *OpenAICompatibleClient) Complete(ctx context.Context, cfg ChatConfig, messages []ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", ErrEmptyMessages
	}
	resp, err := c.client.CreateChatCompletion(ctx, c.chatRequest(cfg, messages, false))
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyChoices
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteJSON asks for a json_object response and decodes it into out.
func (c *OpenAICompatibleClient) CompleteJSON(ctx context.Context, cfg ChatConfig, messages []ChatMessage, out any) error {
	if len(messages) == 0 {
		return ErrEmptyMessages
	}
	req := c.chatRequest(cfg, messages, false)
	req.ResponseFormat = &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return fmt.Errorf("llm json request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ErrEmptyChoices
	}
	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("parse llm json failed: %w", err)
	}
	return nil
}

// StreamComplete calls onChunk for every non-empty delta and returns the
// concatenated text. An error from onChunk stops the stream.
func (c *OpenAICompatibleClient) StreamComplete(
	ctx context.Context,
	cfg ChatConfig,
	messages []ChatMessage,
	onChunk func(chunk string) error,
) (string, error) {
	if len(messages) == 0 {
		return "", ErrEmptyMessages
	}
	stream, err := c.client.CreateChatCompletionStream(ctx, c.chatRequest(cfg, messages, true))
	if err != nil {
		return "", fmt.Errorf("llm stream request failed: %w", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return full.String(), fmt.Errorf("read llm stream failed: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		text := chunk.Choices[0].Delta.Content
		if text == "" {
			continue
		}

		full.WriteString(text)
		if err := onChunk(text); err != nil {
			return full.String(), err
		}
	}
	return full.String(), nil
}
