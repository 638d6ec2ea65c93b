package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gopherai-search/internal/model"
	"gopherai-search/internal/pkg/extract"
	"gopherai-search/internal/session"
)

var (
	ErrFileTooLarge    = errors.New("uploaded file is too large")
	ErrUnsupportedFile = errors.New("unsupported file type, use .pdf, .txt, .md or .csv")
)

// UploadService ingests a file into a conversation's auxiliary context.
// Each upload replaces the previous context wholesale.
type UploadService struct {
	store    session.Store
	maxBytes int64
}

type UploadResult struct {
	Kind    string   `json:"kind"`
	Name    string   `json:"name"`
	Chars   int      `json:"chars,omitempty"`
	Rows    int      `json:"rows,omitempty"`
	Columns []string `json:"columns,omitempty"`
	Preview string   `json:"preview,omitempty"`
}

func NewUploadService(store session.Store, maxBytes int64) *UploadService {
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	return &UploadService{store: store, maxBytes: maxBytes}
}

func (s *UploadService) MaxBytes() int64 {
	return s.maxBytes
}

func (s *UploadService) Upload(ctx context.Context, ownerID, conversationID, filename string, data []byte) (*UploadResult, error) {
	if strings.TrimSpace(ownerID) == "" || strings.TrimSpace(conversationID) == "" || strings.TrimSpace(filename) == "" {
		return nil, ErrInvalidInput
	}
	if int64(len(data)) > s.maxBytes {
		return nil, ErrFileTooLarge
	}
	if !extract.Supported(filename) {
		return nil, ErrUnsupportedFile
	}
	if _, err := s.store.Get(ctx, ownerID, conversationID); err != nil {
		return nil, err
	}

	aux, err := extract.File(filename, data)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedType) {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedFile, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := s.store.SetAux(ctx, ownerID, conversationID, *aux); err != nil {
		return nil, err
	}
	return summarize(aux), nil
}

func summarize(aux *model.AuxContext) *UploadResult {
	if aux.HasDataset() {
		return &UploadResult{
			Kind:    "dataset",
			Name:    aux.Dataset.Name,
			Rows:    len(aux.Dataset.Rows),
			Columns: aux.Dataset.Columns,
		}
	}
	preview := []rune(aux.DocumentText)
	if len(preview) > 200 {
		preview = preview[:200]
	}
	return &UploadResult{
		Kind:    "document",
		Name:    aux.DocumentName,
		Chars:   len([]rune(aux.DocumentText)),
		Preview: string(preview),
	}
}
