package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

var (
	ErrEmptyAudio      = errors.New("audio payload is empty")
	ErrEmptySpeechText = errors.New("speech text is empty")
)

type SpeechConfig struct {
	TranscribeModel string
	TTSModel        string
	Voice           string
}

// Transcribe turns recorded audio into text. filename carries the format
// hint (for example "clip.webm").
func (c *OpenAICompatibleClient) Transcribe(ctx context.Context, cfg SpeechConfig, audio []byte, filename, language string) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	if filename == "" {
		filename = "audio.wav"
	}
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    cfg.TranscribeModel,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
		Language: language,
	})
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Synthesize renders text to mp3 bytes.
func (c *OpenAICompatibleClient) Synthesize(ctx context.Context, cfg SpeechConfig, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptySpeechText
	}
	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(cfg.TTSModel),
		Input:          text,
		Voice:          openai.SpeechVoice(cfg.Voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read speech audio failed: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}
	return data, nil
}
