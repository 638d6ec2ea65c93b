package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"gopherai-search/internal/model"
)

type memoryConversation struct {
	meta  model.Conversation
	turns []model.Turn
	aux   *model.AuxContext
}

// MemoryStore keeps everything in process memory. It backs local runs and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[string]*memoryConversation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string]*memoryConversation)}
}

func (s *MemoryStore) Create(_ context.Context, ownerID, title string) (*model.Conversation, error) {
	conv, err := newConversation(ownerID, title)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.convs[conv.ID] = &memoryConversation{meta: *conv}
	s.mu.Unlock()
	return conv, nil
}

func (s *MemoryStore) lookup(ownerID, conversationID string) (*memoryConversation, error) {
	conv, ok := s.convs[conversationID]
	if !ok || conv.meta.OwnerID != ownerID {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

func (s *MemoryStore) Get(_ context.Context, ownerID, conversationID string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, err := s.lookup(ownerID, conversationID)
	if err != nil {
		return nil, err
	}
	meta := conv.meta
	return &meta, nil
}

func (s *MemoryStore) List(_ context.Context, ownerID string) ([]model.Conversation, error) {
	s.mu.RLock()
	list := make([]model.Conversation, 0)
	for _, conv := range s.convs {
		if conv.meta.OwnerID == ownerID {
			list = append(list, conv.meta)
		}
	}
	s.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
	return list, nil
}

func (s *MemoryStore) Delete(_ context.Context, ownerID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookup(ownerID, conversationID); err != nil {
		return err
	}
	delete(s.convs, conversationID)
	return nil
}

func (s *MemoryStore) Append(_ context.Context, ownerID, conversationID string, turn model.Turn) (*model.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.lookup(ownerID, conversationID)
	if err != nil {
		return nil, err
	}
	prepared, err := prepareTurn(conversationID, len(conv.turns), turn)
	if err != nil {
		return nil, err
	}
	conv.turns = append(conv.turns, prepared)
	conv.meta.UpdatedAt = time.Now()
	return &prepared, nil
}

func (s *MemoryStore) Turns(_ context.Context, ownerID, conversationID string) ([]model.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, err := s.lookup(ownerID, conversationID)
	if err != nil {
		return nil, err
	}
	out := make([]model.Turn, len(conv.turns))
	copy(out, conv.turns)
	return out, nil
}

func (s *MemoryStore) SetAux(_ context.Context, ownerID, conversationID string, aux model.AuxContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.lookup(ownerID, conversationID)
	if err != nil {
		return err
	}
	aux.ConversationID = conversationID
	aux.UpdatedAt = time.Now()
	conv.aux = &aux
	return nil
}

func (s *MemoryStore) Aux(_ context.Context, ownerID, conversationID string) (*model.AuxContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, err := s.lookup(ownerID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.aux == nil {
		return nil, nil
	}
	aux := *conv.aux
	return &aux, nil
}
